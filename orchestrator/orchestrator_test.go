package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reconcile-engine/authz"
	"github.com/warp/reconcile-engine/orchestrator"
	"github.com/warp/reconcile-engine/reconcile"
	"github.com/warp/reconcile-engine/ruleset"
	"github.com/warp/reconcile-engine/store/sqlite"
)

func newTestOrchestrator(t *testing.T) (*orchestrator.Orchestrator, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return orchestrator.NewOrchestrator(st), st
}

func defaultParams() reconcile.RulesetParams {
	return reconcile.RulesetParams{
		AmountTolerance: decimal.NewFromFloat(0.5),
		DateWindowDays:  1,
		ScoreThreshold:  0.7,
	}
}

func seedTxn(t *testing.T, st *sqlite.Store, id string, side reconcile.Side, date reconcile.BusinessDate, rrn string, amount float64) {
	t.Helper()
	err := st.InsertTxn(context.Background(), reconcile.Txn{
		ID: reconcile.TxnID(id), Side: side, BusinessDate: date, RRN: rrn,
		Amount: decimal.NewFromFloat(amount), Currency: "USD",
		TxnTime: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), OpType: reconcile.OpPurchase,
		IngestFileID: "f1", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestRun_ProducesFinishedRunWithMatchesAndExceptions(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()
	date := reconcile.NewBusinessDate(2026, 3, 1)

	_, err := ruleset.NewRegistry(st).Put(ctx, "v1", defaultParams())
	require.NoError(t, err)

	seedTxn(t, st, "l1", reconcile.SideLeft, date, "100001", 42.50)
	seedTxn(t, st, "r1", reconcile.SideRight, date, "100001", 42.50)
	seedTxn(t, st, "l2", reconcile.SideLeft, date, "100002", 10.00)

	run, err := o.Run(ctx, "alice", []string{string(authz.RoleAdmin)}, date, "")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, reconcile.RunFinished, run.Status)
	assert.NotNil(t, run.FinishedAt)

	results, err := st.ResultsByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	exceptions, err := st.ExceptionsByDate(ctx, date, "")
	require.NoError(t, err)
	assert.Len(t, exceptions, 1)
	assert.Equal(t, reconcile.CategoryMissingInRight, exceptions[0].Category)
}

func TestRun_NoActiveRuleset(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()
	date := reconcile.NewBusinessDate(2026, 3, 1)
	seedTxn(t, st, "l1", reconcile.SideLeft, date, "100001", 42.50)
	seedTxn(t, st, "r1", reconcile.SideRight, date, "100001", 42.50)

	_, err := o.Run(ctx, "alice", []string{string(authz.RoleAdmin)}, date, "")
	require.ErrorIs(t, err, reconcile.ErrNoActiveRuleset)
}

func TestRun_NoTransactions(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()
	date := reconcile.NewBusinessDate(2026, 3, 1)
	_, err := ruleset.NewRegistry(st).Put(ctx, "v1", defaultParams())
	require.NoError(t, err)

	_, err = o.Run(ctx, "alice", []string{string(authz.RoleAdmin)}, date, "")
	require.ErrorIs(t, err, reconcile.ErrNoTransactions)
}

func TestRun_OneSidedCohort(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()
	date := reconcile.NewBusinessDate(2026, 3, 1)
	_, err := ruleset.NewRegistry(st).Put(ctx, "v1", defaultParams())
	require.NoError(t, err)
	seedTxn(t, st, "l1", reconcile.SideLeft, date, "100001", 42.50)

	_, err = o.Run(ctx, "alice", []string{string(authz.RoleAdmin)}, date, "")
	require.ErrorIs(t, err, reconcile.ErrOneSidedCohort)
}

func TestRun_PermissionDenied(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()
	date := reconcile.NewBusinessDate(2026, 3, 1)
	_, err := ruleset.NewRegistry(st).Put(ctx, "v1", defaultParams())
	require.NoError(t, err)

	_, err = o.Run(ctx, "bob", []string{string(authz.RoleFinanceViewer)}, date, "")
	require.Error(t, err)
	assert.True(t, reconcile.IsForbidden(err))
}
