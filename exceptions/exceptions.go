/*
Package exceptions drives the ExceptionCase workflow: assigning an
owner, changing status, leaving a comment, and closing a case, each
appending an audit trail row in the same transaction so the case state
and its history can never drift apart.
*/
package exceptions

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/reconcile-engine/reconcile"
	"github.com/warp/reconcile-engine/ruleset"
	"github.com/warp/reconcile-engine/store/sqlite"
)

// Workflow drives ExceptionCase lifecycle transitions.
type Workflow struct {
	store    *sqlite.Store
	rulesets *ruleset.Registry
}

// NewWorkflow builds a Workflow.
func NewWorkflow(store *sqlite.Store) *Workflow {
	return &Workflow{store: store, rulesets: ruleset.NewRegistry(store)}
}

var validStatuses = map[reconcile.CaseStatus]bool{
	reconcile.CaseNew: true, reconcile.CaseTriaged: true,
	reconcile.CaseInProgress: true, reconcile.CaseClosed: true,
}

// Assign sets a case's owner and moves it to TRIAGED. The owner must
// exist and be ACTIVE.
func (w *Workflow) Assign(ctx context.Context, actor, caseID, ownerUserID string) (*reconcile.ExceptionCase, error) {
	owner, err := w.store.GetUser(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}
	if owner.Status != sqlite.UserActive {
		return nil, &reconcile.ValidationError{Field: "ownerUserId", Message: "owner is not active"}
	}
	return w.apply(ctx, actor, caseID, reconcile.ActionAssign, map[string]string{"ownerUserId": ownerUserID}, func(c *reconcile.ExceptionCase) error {
		c.OwnerUserID = ownerUserID
		c.Status = reconcile.CaseTriaged
		return nil
	})
}

// StatusChange moves a case to any of the four lifecycle statuses.
func (w *Workflow) StatusChange(ctx context.Context, actor, caseID string, status reconcile.CaseStatus) (*reconcile.ExceptionCase, error) {
	if !validStatuses[status] {
		return nil, &reconcile.ValidationError{Field: "status", Message: "unrecognized case status"}
	}
	return w.apply(ctx, actor, caseID, reconcile.ActionStatusChange, map[string]string{"status": string(status)}, func(c *reconcile.ExceptionCase) error {
		c.Status = status
		return nil
	})
}

// Comment appends a trimmed, non-empty note without changing status.
func (w *Workflow) Comment(ctx context.Context, actor, caseID, comment string) (*reconcile.ExceptionCase, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, &reconcile.ValidationError{Field: "comment", Message: "required"}
	}
	if len(comment) > 1000 {
		return nil, &reconcile.ValidationError{Field: "comment", Message: "must be 1000 characters or fewer"}
	}
	return w.apply(ctx, actor, caseID, reconcile.ActionComment, map[string]string{"comment": comment}, func(*reconcile.ExceptionCase) error {
		return nil
	})
}

// Close requires a resolution code and moves the case to CLOSED.
func (w *Workflow) Close(ctx context.Context, actor, caseID, resolutionCode string) (*reconcile.ExceptionCase, error) {
	resolutionCode = strings.TrimSpace(resolutionCode)
	if resolutionCode == "" {
		return nil, &reconcile.ValidationError{Field: "resolutionCode", Message: "required"}
	}
	return w.apply(ctx, actor, caseID, reconcile.ActionClose, map[string]string{"resolutionCode": resolutionCode}, func(c *reconcile.ExceptionCase) error {
		now := time.Now().UTC()
		c.Status = reconcile.CaseClosed
		c.ResolutionCode = resolutionCode
		c.ClosedAt = &now
		return nil
	})
}

// apply loads the case, mutates it via fn, and persists the mutation,
// the action row, and an audit event inside one transaction.
func (w *Workflow) apply(ctx context.Context, actor, caseID string, actionType reconcile.ExceptionActionType, payload map[string]string, fn func(*reconcile.ExceptionCase) error) (*reconcile.ExceptionCase, error) {
	var result reconcile.ExceptionCase
	err := w.store.WithTx(ctx, func(tx sqlite.Store) error {
		c, err := tx.GetExceptionCase(ctx, caseID)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		if err := tx.UpdateExceptionCase(ctx, *c); err != nil {
			return err
		}
		if err := tx.InsertExceptionAction(ctx, reconcile.ExceptionAction{
			ID: uuid.New().String(), CaseID: caseID, Actor: actor,
			ActionAt: time.Now().UTC(), ActionType: actionType, Payload: payload,
		}); err != nil {
			return err
		}
		if err := tx.InsertAuditEvent(ctx, sqlite.AuditEvent{
			ID: uuid.New().String(), At: time.Now().UTC(), Actor: actor,
			ObjectType: "exception_case", ObjectID: caseID,
			Action: "EXCEPTION_" + strings.ToUpper(string(actionType)), Result: "SUCCESS",
			Details: map[string]interface{}{"payload": payload},
		}); err != nil {
			return err
		}
		result = *c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Reason names why a candidate on the opposite side didn't match.
type Reason string

const (
	ReasonNoRRNHit        Reason = "no rows with the same rrn"
	ReasonMultipleRRNHits Reason = "several rows share the same rrn"
	ReasonWrongCurrency   Reason = "rrn matched but currency differs"
	ReasonAmountOutOfTol  Reason = "rrn and currency matched but amount is outside tolerance"
	ReasonDateOutOfWindow Reason = "rrn and currency matched but date is outside the window"
)

// Candidate is a scored opposite-side transaction offered as a probable
// counterpart during triage.
type Candidate struct {
	Txn   reconcile.Txn
	Side  reconcile.Side
	Score int
}

// Diagnostics bundles the triage context for one exception case.
type Diagnostics struct {
	Reasons        []Reason
	MinAmountDelta *string
	Candidates     []Candidate
	ActiveRuleset  *reconcile.Ruleset

	minAmountDelta *decimal.Decimal
}

// Diagnose explains why primary failed to match and surfaces the best
// candidates from the opposite cohort.
func (w *Workflow) Diagnose(ctx context.Context, primary reconcile.Txn, businessDate reconcile.BusinessDate) (*Diagnostics, error) {
	opposite := primary.Side.Opposite()
	pool, err := w.store.TxnsByDateSide(ctx, businessDate, opposite)
	if err != nil {
		return nil, err
	}
	activeRuleset, err := w.rulesets.Active(ctx)
	if err != nil && err != reconcile.ErrNoActiveRuleset {
		return nil, err
	}

	var sameRRN []reconcile.Txn
	for _, t := range pool {
		if t.RRN == primary.RRN {
			sameRRN = append(sameRRN, t)
		}
	}

	diag := &Diagnostics{}
	switch len(sameRRN) {
	case 0:
		diag.Reasons = append(diag.Reasons, ReasonNoRRNHit)
	case 1:
		annotateReasons(diag, primary, sameRRN[0], activeRuleset)
	default:
		diag.Reasons = append(diag.Reasons, ReasonMultipleRRNHits)
		for _, t := range sameRRN {
			annotateReasons(diag, primary, t, activeRuleset)
		}
	}

	diag.Candidates = TopCandidates(primary, opposite, pool, 3)
	if activeRuleset != nil {
		diag.ActiveRuleset = activeRuleset
	}
	return diag, nil
}

func annotateReasons(diag *Diagnostics, primary, candidate reconcile.Txn, rules *reconcile.Ruleset) {
	if candidate.Currency != primary.Currency {
		diag.Reasons = append(diag.Reasons, ReasonWrongCurrency)
		return
	}
	delta := candidate.Amount.Sub(primary.Amount).Abs()
	tolerance := decimal.Zero
	if rules != nil {
		tolerance = rules.Params.AmountTolerance
	}
	if delta.GreaterThan(tolerance) {
		diag.Reasons = append(diag.Reasons, ReasonAmountOutOfTol)
		if diag.minAmountDelta == nil || delta.LessThan(*diag.minAmountDelta) {
			d := delta
			diag.minAmountDelta = &d
			s := d.String()
			diag.MinAmountDelta = &s
		}
		return
	}
	windowDays := 1
	if rules != nil {
		windowDays = rules.Params.DateWindowDays
	}
	window := time.Duration(windowDays) * 24 * time.Hour
	diffTime := candidate.TxnTime.Sub(primary.TxnTime)
	if diffTime < 0 {
		diffTime = -diffTime
	}
	if diffTime > window {
		diag.Reasons = append(diag.Reasons, ReasonDateOutOfWindow)
	}
}

// TopCandidates scores pool against primary and returns the n best
// candidates, highest score first. Used both by Diagnose and directly
// by the result view's exception row detail resolver.
func TopCandidates(primary reconcile.Txn, side reconcile.Side, pool []reconcile.Txn, n int) []Candidate {
	scored := make([]Candidate, 0, len(pool))
	for _, t := range pool {
		score := 0
		if t.RRN == primary.RRN {
			score += 50
		}
		if t.Currency == primary.Currency {
			score += 20
		}
		delta := int(t.Amount.Sub(primary.Amount).Abs().IntPart())
		proximity := 20 - delta
		if proximity > 0 {
			score += proximity
		}
		if t.OpType == primary.OpType {
			score += 10
		}
		if score > 0 {
			scored = append(scored, Candidate{Txn: t, Side: side, Score: score})
		}
	}
	sortCandidatesDesc(scored)
	if len(scored) > n {
		scored = scored[:n]
	}
	return scored
}

func sortCandidatesDesc(c []Candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].Score > c[j-1].Score; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}
