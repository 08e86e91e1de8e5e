package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reconcile-engine/analytics"
	"github.com/warp/reconcile-engine/orchestrator"
	"github.com/warp/reconcile-engine/reconcile"
	"github.com/warp/reconcile-engine/ruleset"
	"github.com/warp/reconcile-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSourceBalance_ReadyAndSkew(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	date := reconcile.NewBusinessDate(2026, 3, 1)

	seed := func(id string, side reconcile.Side) {
		require.NoError(t, st.InsertTxn(ctx, reconcile.Txn{
			ID: reconcile.TxnID(id), Side: side, BusinessDate: date, RRN: id,
			Amount: decimal.NewFromFloat(10), Currency: "USD",
			TxnTime: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), OpType: reconcile.OpPurchase,
			IngestFileID: "f1", CreatedAt: time.Now().UTC(),
		}))
	}

	svc := analytics.NewService(st)
	empty, err := svc.SourceBalance(ctx, date)
	require.NoError(t, err)
	assert.False(t, empty.ReadyForMatching)

	seed("l1", reconcile.SideLeft)
	seed("r1", reconcile.SideRight)
	for i := 0; i < 4; i++ {
		seed("l-extra-"+string(rune('a'+i)), reconcile.SideLeft)
	}

	balance, err := svc.SourceBalance(ctx, date)
	require.NoError(t, err)
	assert.True(t, balance.ReadyForMatching)
	assert.True(t, balance.SkewWarning, "5 left vs 1 right is a 5x skew, outside [0.3, 3.0]")
}

func TestAnalytics_ComputesMatchRateAndVariance(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	date := reconcile.NewBusinessDate(2026, 3, 1)

	_, err := ruleset.NewRegistry(st).Put(ctx, "v1", reconcile.RulesetParams{
		AmountTolerance: decimal.NewFromFloat(1), DateWindowDays: 1, ScoreThreshold: 0.7,
	})
	require.NoError(t, err)

	seed := func(id string, side reconcile.Side, rrn string, amount float64) {
		require.NoError(t, st.InsertTxn(ctx, reconcile.Txn{
			ID: reconcile.TxnID(id), Side: side, BusinessDate: date, RRN: rrn,
			Amount: decimal.NewFromFloat(amount), Currency: "USD",
			TxnTime: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), OpType: reconcile.OpPurchase,
			IngestFileID: "f1", CreatedAt: time.Now().UTC(),
		}))
	}
	seed("l1", reconcile.SideLeft, "100001", 42.50)
	seed("r1", reconcile.SideRight, "100001", 42.50)
	seed("l2", reconcile.SideLeft, "100002", 10.00)

	o := orchestrator.NewOrchestrator(st)
	_, err = o.Run(ctx, "alice", []string{"admin"}, date, "")
	require.NoError(t, err)

	svc := analytics.NewService(st)
	stats, err := svc.Analytics(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalLeft)
	assert.Equal(t, 1, stats.TotalRight)
	assert.Equal(t, 1, stats.MatchedUniqueLeft)
	assert.InDelta(t, 50.0, stats.MatchRatePct, 0.01)
	assert.True(t, stats.Variance.Equal(decimal.Zero))
	assert.Equal(t, 1, stats.OpenExceptionCount)
}

func TestAnalytics_NoRunYet(t *testing.T) {
	st := newTestStore(t)
	svc := analytics.NewService(st)
	_, err := svc.Analytics(context.Background(), reconcile.NewBusinessDate(2026, 3, 1))
	require.Error(t, err)
	assert.True(t, reconcile.IsNotFound(err))
}
