package api

import (
	"time"

	"github.com/warp/reconcile-engine/analytics"
	"github.com/warp/reconcile-engine/exceptions"
	"github.com/warp/reconcile-engine/ingest"
	"github.com/warp/reconcile-engine/reconcile"
	"github.com/warp/reconcile-engine/resultview"
	"github.com/warp/reconcile-engine/store/sqlite"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// FieldErrorResponse is one entry of a BulkValidationError's Errors.
type FieldErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// IngestFileRequest is the body of POST /api/v1/ingest/files.
type IngestFileRequest struct {
	Source        string          `json:"source"`
	BusinessDate  string          `json:"businessDate"`
	FileName      string          `json:"fileName"`
	Checksum      string          `json:"checksum"`
	ParserProfile string          `json:"parserProfile"`
	Records       []ingest.Record `json:"records"`
}

// IngestFileResponse reports the outcome of an ingest call.
type IngestFileResponse struct {
	IngestFileID string `json:"ingestFileId"`
	Duplicate    bool   `json:"duplicate"`
	RecordCount  int    `json:"recordCount"`
}

// IngestStatusResponse is the body of GET /ingest/files/{id}/status.
type IngestStatusResponse struct {
	ID            string `json:"id"`
	SourceSide    string `json:"sourceSide"`
	BusinessDate  string `json:"businessDate"`
	FileName      string `json:"fileName"`
	Status        string `json:"status"`
	RecordCount   int    `json:"recordCount"`
	ReceivedAt    string `json:"receivedAt"`
	ParserProfile string `json:"parserProfile"`
}

func toIngestStatusResponse(f *sqlite.IngestFile) IngestStatusResponse {
	return IngestStatusResponse{
		ID: f.ID, SourceSide: string(f.SourceSide), BusinessDate: f.BusinessDate.String(),
		FileName: f.FileName, Status: f.Status, RecordCount: f.RecordCount,
		ReceivedAt: f.ReceivedAt.Format(time.RFC3339), ParserProfile: f.ParserProfile,
	}
}

// StartRunRequest is the body of POST /api/v1/match/runs.
type StartRunRequest struct {
	BusinessDate string `json:"businessDate"`
	ScopeFilter  string `json:"scopeFilter"`
}

// MatchRunResponse describes one run, optionally with per-type counts.
type MatchRunResponse struct {
	ID             string         `json:"id"`
	BusinessDate   string         `json:"businessDate"`
	ScopeFilter    string         `json:"scopeFilter,omitempty"`
	RulesetVersion string         `json:"rulesetVersion"`
	StartedAt      string         `json:"startedAt"`
	FinishedAt     *string        `json:"finishedAt,omitempty"`
	Status         string         `json:"status"`
	CreatedBy      string         `json:"createdBy"`
	MatchCounts    map[string]int `json:"matchCounts,omitempty"`
	ExceptionCounts map[string]int `json:"exceptionCounts,omitempty"`
}

func toMatchRunResponse(r reconcile.MatchRun) MatchRunResponse {
	resp := MatchRunResponse{
		ID: r.ID, BusinessDate: r.BusinessDate.String(), ScopeFilter: r.ScopeFilter,
		RulesetVersion: r.RulesetVersion, StartedAt: r.StartedAt.Format(time.RFC3339),
		Status: string(r.Status), CreatedBy: r.CreatedBy,
	}
	if r.FinishedAt != nil {
		s := r.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &s
	}
	return resp
}

// ResultRowResponse is one unified result-view row.
type ResultRowResponse struct {
	RowID       string  `json:"rowId"`
	Status      string  `json:"status"`
	RRN         string  `json:"rrn"`
	ARN         string  `json:"arn,omitempty"`
	TxnTime     string  `json:"txnTime,omitempty"`
	AmountLeft  *string `json:"amountLeft,omitempty"`
	AmountRight *string `json:"amountRight,omitempty"`
	Delta       *string `json:"delta,omitempty"`
	Currency    string  `json:"currency,omitempty"`
	MatchScore  float64 `json:"matchScore,omitempty"`
	ReasonCode  string  `json:"reasonCode,omitempty"`
	PANMasked   string  `json:"panMasked,omitempty"`
}

func toResultRowResponse(r resultview.Row) ResultRowResponse {
	resp := ResultRowResponse{
		RowID: r.RowID, Status: string(r.Status), RRN: r.RRN, ARN: r.ARN,
		Currency: r.Currency, MatchScore: r.MatchScore, ReasonCode: r.ReasonCode, PANMasked: r.PANMasked,
	}
	if !r.TxnTime.IsZero() {
		resp.TxnTime = r.TxnTime.Format(time.RFC3339)
	}
	if r.AmountLeft != nil {
		s := r.AmountLeft.String()
		resp.AmountLeft = &s
	}
	if r.AmountRight != nil {
		s := r.AmountRight.String()
		resp.AmountRight = &s
	}
	if r.Delta != nil {
		s := r.Delta.String()
		resp.Delta = &s
	}
	return resp
}

// ResultListResponse is the body of the Result View list endpoints.
type ResultListResponse struct {
	Run        MatchRunResponse    `json:"run"`
	Summary    resultview.Summary  `json:"summary"`
	Items      []ResultRowResponse `json:"items"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"pageSize"`
	Total      int                 `json:"total"`
	TotalPages int                 `json:"totalPages"`
}

func toResultListResponse(l *resultview.ListResult) ResultListResponse {
	items := make([]ResultRowResponse, len(l.Items))
	for i, r := range l.Items {
		items[i] = toResultRowResponse(r)
	}
	return ResultListResponse{
		Run: toMatchRunResponse(l.Run), Summary: l.Summary, Items: items,
		Page: l.Page, PageSize: l.PageSize, Total: l.Total, TotalPages: l.TotalPages,
	}
}

// DifferenceResponse mirrors resultview.Difference.
type DifferenceResponse struct {
	Field    string `json:"field"`
	Left     string `json:"left"`
	Right    string `json:"right"`
	Severity string `json:"severity"`
}

// RowDetailResponse is the body of the detail resolver endpoint.
type RowDetailResponse struct {
	RowID       string                 `json:"rowId"`
	Left        *reconcile.Txn         `json:"left,omitempty"`
	Right       *reconcile.Txn         `json:"right,omitempty"`
	Differences []DifferenceResponse   `json:"differences,omitempty"`
	Explain     reconcile.ExplainBlob  `json:"explain"`
	Candidates  []exceptions.Candidate `json:"candidates,omitempty"`
}

func toRowDetailResponse(d *resultview.RowDetail) RowDetailResponse {
	diffs := make([]DifferenceResponse, len(d.Differences))
	for i, diff := range d.Differences {
		diffs[i] = DifferenceResponse{Field: diff.Field, Left: diff.Left, Right: diff.Right, Severity: string(diff.Severity)}
	}
	return RowDetailResponse{
		RowID: d.RowID, Left: d.Left, Right: d.Right,
		Differences: diffs, Explain: d.Explain, Candidates: d.Candidates,
	}
}

// ExceptionCaseResponse describes one ExceptionCase.
type ExceptionCaseResponse struct {
	ID             string  `json:"id"`
	RunID          string  `json:"runId"`
	BusinessDate   string  `json:"businessDate"`
	Category       string  `json:"category"`
	Severity       string  `json:"severity"`
	Status         string  `json:"status"`
	PrimaryTxnID   string  `json:"primaryTxnId"`
	PrimarySide    string  `json:"primarySide"`
	OwnerUserID    string  `json:"ownerUserId,omitempty"`
	AgingDays      int     `json:"agingDays"`
	ResolutionCode string  `json:"resolutionCode,omitempty"`
	CreatedAt      string  `json:"createdAt"`
	ClosedAt       *string `json:"closedAt,omitempty"`
}

func toExceptionCaseResponse(c reconcile.ExceptionCase) ExceptionCaseResponse {
	resp := ExceptionCaseResponse{
		ID: c.ID, RunID: c.RunID, BusinessDate: c.BusinessDate.String(),
		Category: string(c.Category), Severity: string(c.Severity), Status: string(c.Status),
		PrimaryTxnID: string(c.PrimaryTxnID), PrimarySide: string(c.PrimarySide),
		OwnerUserID: c.OwnerUserID, AgingDays: c.AgingDays, ResolutionCode: c.ResolutionCode,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
	if c.ClosedAt != nil {
		s := c.ClosedAt.Format(time.RFC3339)
		resp.ClosedAt = &s
	}
	return resp
}

// ExceptionDetailResponse bundles a case with its txn, actions, and diagnostics.
type ExceptionDetailResponse struct {
	Case        ExceptionCaseResponse          `json:"case"`
	Txn         *reconcile.Txn                 `json:"txn,omitempty"`
	Actions     []reconcile.ExceptionAction    `json:"actions"`
	Diagnostics *exceptions.Diagnostics        `json:"diagnostics,omitempty"`
}

// ExceptionActionRequest is the body of POST /exceptions/{id}/actions.
type ExceptionActionRequest struct {
	Type           string `json:"type"`
	OwnerUserID    string `json:"ownerUserId,omitempty"`
	Status         string `json:"status,omitempty"`
	Comment        string `json:"comment,omitempty"`
	ResolutionCode string `json:"resolutionCode,omitempty"`
}

// RulesetRequest is the body of PUT /api/v1/admin/rulesets.
type RulesetRequest struct {
	Version string                  `json:"version,omitempty"`
	Params  reconcile.RulesetParams `json:"params"`
}

// RulesetResponse describes one ruleset version.
type RulesetResponse struct {
	Version   string                  `json:"version"`
	IsActive  bool                    `json:"isActive"`
	Params    reconcile.RulesetParams `json:"params"`
	CreatedAt string                  `json:"createdAt"`
}

func toRulesetResponse(r reconcile.Ruleset) RulesetResponse {
	return RulesetResponse{Version: r.Version, IsActive: r.IsActive, Params: r.Params, CreatedAt: r.CreatedAt.Format(time.RFC3339)}
}

// UserResponse describes one seed user.
type UserResponse struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Roles       []string `json:"roles"`
	Status      string   `json:"status"`
}

func toUserResponse(u sqlite.User) UserResponse {
	return UserResponse{ID: u.ID, DisplayName: u.DisplayName, Roles: u.Roles, Status: string(u.Status)}
}

// AuditEventResponse describes one audit trail row.
type AuditEventResponse struct {
	ID         string                 `json:"id"`
	At         string                 `json:"at"`
	Actor      string                 `json:"actor"`
	SourceIP   string                 `json:"sourceIp,omitempty"`
	ObjectType string                 `json:"objectType"`
	ObjectID   string                 `json:"objectId"`
	Action     string                 `json:"action"`
	Result     string                 `json:"result"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

func toAuditEventResponse(e sqlite.AuditEvent) AuditEventResponse {
	return AuditEventResponse{
		ID: e.ID, At: e.At.Format(time.RFC3339), Actor: e.Actor, SourceIP: e.SourceIP,
		ObjectType: e.ObjectType, ObjectID: e.ObjectID, Action: e.Action, Result: e.Result, Details: e.Details,
	}
}

// SourceBalanceResponse mirrors analytics.SourceBalance.
type SourceBalanceResponse struct {
	BusinessDate     string `json:"businessDate"`
	LeftTxnCount     int    `json:"leftTxnCount"`
	RightTxnCount    int    `json:"rightTxnCount"`
	LeftFileCount    int    `json:"leftFileCount"`
	RightFileCount   int    `json:"rightFileCount"`
	ReadyForMatching bool   `json:"readyForMatching"`
	SkewWarning      bool   `json:"skewWarning"`
}

func toSourceBalanceResponse(b *analytics.SourceBalance) SourceBalanceResponse {
	return SourceBalanceResponse{
		BusinessDate: b.BusinessDate.String(), LeftTxnCount: b.LeftTxnCount, RightTxnCount: b.RightTxnCount,
		LeftFileCount: b.LeftFileCount, RightFileCount: b.RightFileCount,
		ReadyForMatching: b.ReadyForMatching, SkewWarning: b.SkewWarning,
	}
}

// AnalyticsResponse mirrors analytics.Stats.
type AnalyticsResponse struct {
	RunID              string  `json:"runId"`
	BusinessDate       string  `json:"businessDate"`
	TotalLeft          int     `json:"totalLeft"`
	TotalRight         int     `json:"totalRight"`
	MatchedUniqueLeft  int     `json:"matchedUniqueLeft"`
	PartialCount       int     `json:"partialCount"`
	OpenExceptionCount int     `json:"openExceptionCount"`
	MeanAgingDays      float64 `json:"meanAgingDays"`
	Variance           string  `json:"variance"`
	MatchRatePct       float64 `json:"matchRatePct"`
}

func toAnalyticsResponse(s *analytics.Stats) AnalyticsResponse {
	return AnalyticsResponse{
		RunID: s.RunID, BusinessDate: s.BusinessDate.String(), TotalLeft: s.TotalLeft, TotalRight: s.TotalRight,
		MatchedUniqueLeft: s.MatchedUniqueLeft, PartialCount: s.PartialCount, OpenExceptionCount: s.OpenExceptionCount,
		MeanAgingDays: s.MeanAgingDays, Variance: s.Variance.String(), MatchRatePct: s.MatchRatePct,
	}
}
