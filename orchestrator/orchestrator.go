/*
Package orchestrator drives one execution of the matching engine end to
end: load cohorts, run the engine, persist outputs, finalize run state.
The two-phase commit - a standalone RUNNING checkpoint, then a second
transaction for the actual work - commits a pending run row before doing
any work so external pollers observe progress even if the worker
crashes mid-run.
*/
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/reconcile-engine/authz"
	"github.com/warp/reconcile-engine/reconcile"
	"github.com/warp/reconcile-engine/store/sqlite"
)

// Orchestrator runs the matching engine against persisted cohorts.
type Orchestrator struct {
	store *sqlite.Store
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(store *sqlite.Store) *Orchestrator {
	return &Orchestrator{store: store}
}

// Run executes one matching pass over businessDate, persisting a
// MatchRun plus every MatchResult and ExceptionCase it produces.
func (o *Orchestrator) Run(ctx context.Context, actor string, roles []string, businessDate reconcile.BusinessDate, scopeFilter string) (*reconcile.MatchRun, error) {
	if err := authz.Check(actor, roles, authz.PermMatchExecute); err != nil {
		return nil, err
	}
	if businessDate.IsZero() {
		return nil, &reconcile.ValidationError{Field: "businessDate", Message: "required"}
	}

	activeRuleset, err := o.store.ActiveRuleset(ctx)
	if err != nil {
		return nil, err
	}

	left, err := o.store.TxnsByDateSide(ctx, businessDate, reconcile.SideLeft)
	if err != nil {
		return nil, err
	}
	right, err := o.store.TxnsByDateSide(ctx, businessDate, reconcile.SideRight)
	if err != nil {
		return nil, err
	}
	if len(left) == 0 && len(right) == 0 {
		return nil, reconcile.ErrNoTransactions
	}
	if len(left) == 0 || len(right) == 0 {
		return nil, reconcile.ErrOneSidedCohort
	}

	runID := uuid.New().String()
	startedAt := time.Now().UTC()
	run := reconcile.MatchRun{
		ID: runID, BusinessDate: businessDate, ScopeFilter: scopeFilter,
		RulesetVersion: activeRuleset.Version, StartedAt: startedAt, Status: reconcile.RunRunning, CreatedBy: actor,
	}
	// Committed as a standalone statement, outside any open transaction,
	// so a poller can observe RUNNING even if the unit of work below fails.
	if err := o.store.InsertRun(ctx, run); err != nil {
		return nil, err
	}

	var output reconcile.EngineOutput
	execErr := o.store.WithTx(ctx, func(tx sqlite.Store) error {
		output = reconcile.Match(left, right, activeRuleset.Params)
		for _, m := range output.Matches {
			if err := tx.InsertMatchResult(ctx, runID, m); err != nil {
				return err
			}
		}
		for _, e := range output.Exceptions {
			e.RunID = runID
			if err := tx.InsertExceptionCase(ctx, runID, e); err != nil {
				return err
			}
		}
		finishedAt := time.Now().UTC()
		if err := tx.FinalizeRun(ctx, runID, reconcile.RunFinished, finishedAt); err != nil {
			return err
		}
		return tx.InsertAuditEvent(ctx, sqlite.AuditEvent{
			ID: uuid.New().String(), At: finishedAt, Actor: actor,
			ObjectType: "match_run", ObjectID: runID, Action: "MATCH_RUN_EXECUTE", Result: "SUCCESS",
			Details: map[string]interface{}{
				"matches":    len(output.Matches),
				"exceptions": len(output.Exceptions),
			},
		})
	})
	if execErr != nil {
		finishedAt := time.Now().UTC()
		// The failed transaction above was already rolled back; this is a
		// fresh, second unit of work that commits only the failure state.
		_ = o.store.WithTx(ctx, func(tx sqlite.Store) error {
			if err := tx.FinalizeRun(ctx, runID, reconcile.RunFailed, finishedAt); err != nil {
				return err
			}
			return tx.InsertAuditEvent(ctx, sqlite.AuditEvent{
				ID: uuid.New().String(), At: finishedAt, Actor: actor,
				ObjectType: "match_run", ObjectID: runID, Action: "MATCH_RUN_EXECUTE", Result: "FAILURE",
				Details: map[string]interface{}{"error": execErr.Error()},
			})
		})
		return nil, fmt.Errorf("run %s failed: %w", runID, execErr)
	}

	return o.store.GetRun(ctx, runID)
}
