package ruleset_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reconcile-engine/reconcile"
	"github.com/warp/reconcile-engine/ruleset"
	"github.com/warp/reconcile-engine/store/sqlite"
)

func newTestRegistry(t *testing.T) *ruleset.Registry {
	t.Helper()
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return ruleset.NewRegistry(st)
}

func TestPut_RejectsInvalidParams(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Put(context.Background(), "", reconcile.RulesetParams{
		AmountTolerance: decimal.NewFromFloat(-1),
		DateWindowDays:  1,
		ScoreThreshold:  0.5,
	})
	require.Error(t, err)
	assert.True(t, reconcile.IsValidation(err))
}

func TestPut_GeneratesVersionAndActivates(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	version, err := r.Put(ctx, "", reconcile.RulesetParams{
		AmountTolerance: decimal.NewFromFloat(1.0), DateWindowDays: 1, ScoreThreshold: 0.75,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, version)

	active, err := r.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, version, active.Version)
}

func TestPut_SecondCallDeactivatesFirst(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	v1, err := r.Put(ctx, "v1", reconcile.RulesetParams{AmountTolerance: decimal.NewFromFloat(1), DateWindowDays: 1, ScoreThreshold: 0.7})
	require.NoError(t, err)
	_, err = r.Put(ctx, "v2", reconcile.RulesetParams{AmountTolerance: decimal.NewFromFloat(2), DateWindowDays: 1, ScoreThreshold: 0.7})
	require.NoError(t, err)

	all, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	active, err := r.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", active.Version)
	assert.NotEqual(t, v1, active.Version)
}
