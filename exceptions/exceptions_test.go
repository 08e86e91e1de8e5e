package exceptions_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reconcile-engine/exceptions"
	"github.com/warp/reconcile-engine/orchestrator"
	"github.com/warp/reconcile-engine/reconcile"
	"github.com/warp/reconcile-engine/ruleset"
	"github.com/warp/reconcile-engine/store/sqlite"
)

func seedCase(t *testing.T) (*sqlite.Store, *reconcile.ExceptionCase) {
	t.Helper()
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()
	date := reconcile.NewBusinessDate(2026, 3, 1)

	_, err = ruleset.NewRegistry(st).Put(ctx, "v1", reconcile.RulesetParams{
		AmountTolerance: decimal.NewFromFloat(0.5), DateWindowDays: 1, ScoreThreshold: 0.7,
	})
	require.NoError(t, err)

	require.NoError(t, st.InsertTxn(ctx, reconcile.Txn{
		ID: "l1", Side: reconcile.SideLeft, BusinessDate: date, RRN: "100001",
		Amount: decimal.NewFromFloat(42.50), Currency: "USD",
		TxnTime: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), OpType: reconcile.OpPurchase,
		IngestFileID: "f1", CreatedAt: time.Now().UTC(),
	}))
	// A right-side row is needed for the run to accept the cohort; r0 shares
	// no rrn, currency, amount or op type with l1.
	require.NoError(t, st.InsertTxn(ctx, reconcile.Txn{
		ID: "r0", Side: reconcile.SideRight, BusinessDate: date, RRN: "999999",
		Amount: decimal.NewFromFloat(1000.00), Currency: "EUR",
		TxnTime: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), OpType: reconcile.OpRefund,
		IngestFileID: "f0", CreatedAt: time.Now().UTC(),
	}))

	o := orchestrator.NewOrchestrator(st)
	run, err := o.Run(ctx, "alice", []string{"admin"}, date, "")
	require.NoError(t, err)

	cases, err := st.ExceptionsByDate(ctx, date, "")
	require.NoError(t, err)
	require.Len(t, cases, 2)
	for i := range cases {
		if cases[i].PrimaryTxnID == "l1" {
			require.Equal(t, run.ID, cases[i].RunID)
			return st, &cases[i]
		}
	}
	t.Fatal("no exception case for l1")
	return nil, nil
}

func TestAssign_RequiresActiveOwner(t *testing.T) {
	st, c := seedCase(t)
	w := exceptions.NewWorkflow(st)
	ctx := context.Background()

	require.NoError(t, st.UpsertUser(ctx, sqlite.User{ID: "u1", DisplayName: "Operator One", Status: sqlite.UserInactive}))
	_, err := w.Assign(ctx, "alice", c.ID, "u1")
	require.Error(t, err)
	assert.True(t, reconcile.IsValidation(err))

	require.NoError(t, st.UpsertUser(ctx, sqlite.User{ID: "u2", DisplayName: "Operator Two", Status: sqlite.UserActive}))
	updated, err := w.Assign(ctx, "alice", c.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, reconcile.CaseTriaged, updated.Status)
	assert.Equal(t, "u2", updated.OwnerUserID)
}

func TestStatusChange_FreeTransition(t *testing.T) {
	st, c := seedCase(t)
	w := exceptions.NewWorkflow(st)
	ctx := context.Background()

	updated, err := w.StatusChange(ctx, "alice", c.ID, reconcile.CaseInProgress)
	require.NoError(t, err)
	assert.Equal(t, reconcile.CaseInProgress, updated.Status)

	_, err = w.StatusChange(ctx, "alice", c.ID, "BOGUS")
	require.Error(t, err)
	assert.True(t, reconcile.IsValidation(err))
}

func TestComment_RequiresNonEmptyAndLeavesStatusUnchanged(t *testing.T) {
	st, c := seedCase(t)
	w := exceptions.NewWorkflow(st)
	ctx := context.Background()

	_, err := w.Comment(ctx, "alice", c.ID, "   ")
	require.Error(t, err)

	_, err = w.Comment(ctx, "alice", c.ID, strings.Repeat("x", 1001))
	require.Error(t, err)

	updated, err := w.Comment(ctx, "alice", c.ID, "looks like a late settlement")
	require.NoError(t, err)
	assert.Equal(t, c.Status, updated.Status)

	actions, err := st.ActionsByCase(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, reconcile.ActionComment, actions[0].ActionType)
}

func TestClose_RequiresResolutionCodeAndStampsClosedAt(t *testing.T) {
	st, c := seedCase(t)
	w := exceptions.NewWorkflow(st)
	ctx := context.Background()

	_, err := w.Close(ctx, "alice", c.ID, "")
	require.Error(t, err)

	updated, err := w.Close(ctx, "alice", c.ID, "WRITE_OFF")
	require.NoError(t, err)
	assert.Equal(t, reconcile.CaseClosed, updated.Status)
	assert.Equal(t, "WRITE_OFF", updated.ResolutionCode)
	require.NotNil(t, updated.ClosedAt)
}

func TestDiagnose_NoRRNHit(t *testing.T) {
	st, c := seedCase(t)
	w := exceptions.NewWorkflow(st)
	ctx := context.Background()

	primary, err := st.GetTxn(ctx, c.PrimaryTxnID)
	require.NoError(t, err)

	diag, err := w.Diagnose(ctx, *primary, c.BusinessDate)
	require.NoError(t, err)
	assert.Contains(t, diag.Reasons, exceptions.ReasonNoRRNHit)
	assert.Empty(t, diag.Candidates)
}

func TestDiagnose_MinAmountDeltaComparesNumerically(t *testing.T) {
	st, c := seedCase(t)
	w := exceptions.NewWorkflow(st)
	ctx := context.Background()

	// Deltas of "10.00" and "9.50": a lexical string comparison would
	// treat "10.00" as smaller, so this pins the numeric comparison.
	require.NoError(t, st.InsertTxn(ctx, reconcile.Txn{
		ID: "r1", Side: reconcile.SideRight, BusinessDate: c.BusinessDate, RRN: "100001",
		Amount: decimal.NewFromFloat(52.50), Currency: "USD",
		TxnTime: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), OpType: reconcile.OpPurchase,
		IngestFileID: "f2", CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, st.InsertTxn(ctx, reconcile.Txn{
		ID: "r2", Side: reconcile.SideRight, BusinessDate: c.BusinessDate, RRN: "100001",
		Amount: decimal.NewFromFloat(52.00), Currency: "USD",
		TxnTime: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), OpType: reconcile.OpPurchase,
		IngestFileID: "f2", CreatedAt: time.Now().UTC(),
	}))

	primary, err := st.GetTxn(ctx, c.PrimaryTxnID)
	require.NoError(t, err)

	diag, err := w.Diagnose(ctx, *primary, c.BusinessDate)
	require.NoError(t, err)
	require.NotNil(t, diag.MinAmountDelta)
	assert.True(t, decimal.RequireFromString(*diag.MinAmountDelta).Equal(decimal.NewFromFloat(9.50)))
}

func TestDiagnose_AmountOutsideTolerancePicksCandidate(t *testing.T) {
	st, c := seedCase(t)
	w := exceptions.NewWorkflow(st)
	ctx := context.Background()

	require.NoError(t, st.InsertTxn(ctx, reconcile.Txn{
		ID: "r1", Side: reconcile.SideRight, BusinessDate: c.BusinessDate, RRN: "100001",
		Amount: decimal.NewFromFloat(50.00), Currency: "USD",
		TxnTime: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), OpType: reconcile.OpPurchase,
		IngestFileID: "f2", CreatedAt: time.Now().UTC(),
	}))

	primary, err := st.GetTxn(ctx, c.PrimaryTxnID)
	require.NoError(t, err)

	diag, err := w.Diagnose(ctx, *primary, c.BusinessDate)
	require.NoError(t, err)
	assert.Contains(t, diag.Reasons, exceptions.ReasonAmountOutOfTol)
	require.Len(t, diag.Candidates, 1)
	assert.Equal(t, reconcile.TxnID("r1"), diag.Candidates[0].Txn.ID)
	require.NotNil(t, diag.ActiveRuleset)
}
