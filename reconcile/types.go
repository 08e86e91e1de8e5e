/*
Package reconcile provides the domain-agnostic core of the card-payment
reconciliation engine: the normalized transaction shape, the matching
algorithm, and the ruleset parameters that tune it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Side: which of the two independent sources a Txn came from
  - Txn: an immutable normalized transaction record
  - MatchResult / ExceptionCase: the two possible outputs of a run
  - MatchRun: one execution of the engine over a business date

DESIGN PRINCIPLES:
  1. Immutability: Txn rows are never modified once ingested.
  2. Precision: uses decimal.Decimal for amounts, never float64.
  3. Auditability: every match row carries a reason code and explain blob;
     every exception row carries a category and severity.

SEE ALSO:
  - engine.go: the pure matching algorithm
  - scoring.go: fuzzy scoring helpers used by the engine
  - errors.go: sentinel and structured error types
*/
package reconcile

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SIDE - which independent source a transaction came from
// =============================================================================

type Side string

const (
	SideLeft  Side = "LEFT"
	SideRight Side = "RIGHT"
)

func (s Side) Opposite() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

func (s Side) Valid() bool {
	return s == SideLeft || s == SideRight
}

// =============================================================================
// OPERATION TYPES
// =============================================================================

type OpType string

const (
	OpPurchase    OpType = "PURCHASE"
	OpClearing    OpType = "CLEARING"
	OpSettlement  OpType = "SETTLEMENT"
	OpRefund      OpType = "REFUND"
	OpReversal    OpType = "REVERSAL"
	OpChargeback  OpType = "CHARGEBACK"
	OpAdjustment  OpType = "ADJUSTMENT"
)

// ParseOpType maps a raw string to a known OpType, falling back to PURCHASE
// for anything unrecognized (per the ingest normalization contract).
func ParseOpType(raw string) OpType {
	switch OpType(raw) {
	case OpPurchase, OpClearing, OpSettlement, OpRefund, OpReversal, OpChargeback, OpAdjustment:
		return OpType(raw)
	default:
		return OpPurchase
	}
}

// =============================================================================
// TXN - a normalized transaction record from one side
// =============================================================================

type TxnID string

// Txn is an immutable, normalized transaction record ingested from either
// the issuer ledger (LEFT) or the network clearing file (RIGHT).
type Txn struct {
	ID           TxnID
	Side         Side
	BusinessDate BusinessDate
	RRN          string
	ARN          string // empty when absent
	PANMasked    string
	PANHash      string
	Amount       decimal.Decimal
	Currency     string
	TxnTime      time.Time
	OpType       OpType
	MerchantID   string
	ChannelID    string
	StatusNorm   string
	FeeAmount    decimal.Decimal
	FeeCurrency  string

	IngestFileID string
	CreatedAt    time.Time
}

// =============================================================================
// MATCH RUN - one execution of the engine over a business date
// =============================================================================

type RunStatus string

const (
	RunRunning  RunStatus = "RUNNING"
	RunFinished RunStatus = "FINISHED"
	RunFailed   RunStatus = "FAILED"
)

type MatchRun struct {
	ID             string
	BusinessDate   BusinessDate
	ScopeFilter    string
	RulesetVersion string
	StartedAt      time.Time
	FinishedAt     *time.Time
	Status         RunStatus
	CreatedBy      string
}

// =============================================================================
// MATCH RESULT
// =============================================================================

type MatchType string

const (
	MatchMatched           MatchType = "MATCHED"
	MatchPartial           MatchType = "PARTIAL_MATCH"
	MatchDuplicateSuspect  MatchType = "DUPLICATE_SUSPECT"
)

// MatchResult links a LEFT transaction to an (optional) RIGHT counterpart.
type MatchResult struct {
	ID          string
	RunID       string
	LeftTxnID   TxnID
	RightTxnID  TxnID // empty for partial categories without a single counterpart
	MatchType   MatchType
	Score       float64
	ReasonCode  string
	Explain     ExplainBlob
}

// ExplainBlob carries the scoring breakdown behind a match decision.
// Stored as JSON text; exposed to callers as this typed struct.
type ExplainBlob struct {
	AmountPenalty float64           `json:"amount_penalty,omitempty"`
	DatePenalty   float64           `json:"date_penalty,omitempty"`
	CompatBonus   float64           `json:"compat_bonus,omitempty"`
	ComboSize     int               `json:"combo_size,omitempty"`
	ComboTxnIDs   []string          `json:"combo_txn_ids,omitempty"`
	CandidateIDs  []string          `json:"candidate_ids,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// =============================================================================
// EXCEPTION CASE
// =============================================================================

type ExceptionCategory string

const (
	CategoryMissingInLeft    ExceptionCategory = "MISSING_IN_LEFT"
	CategoryMissingInRight   ExceptionCategory = "MISSING_IN_RIGHT"
	CategoryDuplicate        ExceptionCategory = "DUPLICATE"
	CategoryAmountMismatch   ExceptionCategory = "AMOUNT_MISMATCH"
	CategoryDateMismatch     ExceptionCategory = "DATE_MISMATCH"
	CategoryStatusMismatch   ExceptionCategory = "STATUS_MISMATCH"
	CategoryOpTypeMismatch   ExceptionCategory = "OPTYPE_MISMATCH"
)

type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

type CaseStatus string

const (
	CaseNew        CaseStatus = "NEW"
	CaseTriaged    CaseStatus = "TRIAGED"
	CaseInProgress CaseStatus = "IN_PROGRESS"
	CaseClosed     CaseStatus = "CLOSED"
)

// ExceptionCase is a persisted unmatched or ambiguous item carrying a
// category and a lifecycle managed by the exception workflow.
type ExceptionCase struct {
	ID             string
	RunID          string
	BusinessDate   BusinessDate
	Category       ExceptionCategory
	Severity       Severity
	Status         CaseStatus
	PrimaryTxnID   TxnID
	PrimarySide    Side
	OwnerUserID    string // empty when unassigned
	AgingDays      int
	ResolutionCode string // empty until closed
	CreatedAt      time.Time
	ClosedAt       *time.Time
}

// ExceptionActionType enumerates the permitted workflow actions.
type ExceptionActionType string

const (
	ActionAssign       ExceptionActionType = "assign"
	ActionComment      ExceptionActionType = "comment"
	ActionStatusChange ExceptionActionType = "status_change"
	ActionClose        ExceptionActionType = "close"
)

// ExceptionAction is an append-only record of a workflow action on a case.
type ExceptionAction struct {
	ID         string
	CaseID     string
	Actor      string
	ActionAt   time.Time
	ActionType ExceptionActionType
	Payload    map[string]string
}

// =============================================================================
// ENGINE OUTPUT
// =============================================================================

// EngineOutput is the pure result of one matching pass over a cohort pair.
type EngineOutput struct {
	Matches    []MatchResult
	Exceptions []ExceptionCase
}
