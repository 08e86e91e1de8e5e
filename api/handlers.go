/*
Package api exposes the reconciliation engine over HTTP. Handlers parse
the request, run a permission check, delegate to the relevant package,
and serialize the result.
*/
package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/go-chi/chi/v5"

	"github.com/warp/reconcile-engine/analytics"
	"github.com/warp/reconcile-engine/authz"
	"github.com/warp/reconcile-engine/exceptions"
	"github.com/warp/reconcile-engine/ingest"
	"github.com/warp/reconcile-engine/orchestrator"
	"github.com/warp/reconcile-engine/reconcile"
	"github.com/warp/reconcile-engine/resultview"
	"github.com/warp/reconcile-engine/ruleset"
	"github.com/warp/reconcile-engine/store/sqlite"
)

// Handler holds every dependency HTTP routes delegate to.
type Handler struct {
	Store        *sqlite.Store
	Ingest       *ingest.Coordinator
	Orchestrator *orchestrator.Orchestrator
	Results      *resultview.View
	Exceptions   *exceptions.Workflow
	Rulesets     *ruleset.Registry
	Analytics    *analytics.Service
}

// NewHandler wires a Handler from a single open store.
func NewHandler(store *sqlite.Store, panKey []byte) *Handler {
	return &Handler{
		Store:        store,
		Ingest:       ingest.NewCoordinator(store, panKey),
		Orchestrator: orchestrator.NewOrchestrator(store),
		Results:      resultview.NewView(store),
		Exceptions:   exceptions.NewWorkflow(store),
		Rulesets:     ruleset.NewRegistry(store),
		Analytics:    analytics.NewService(store),
	}
}

// =============================================================================
// REQUEST CONTEXT
// =============================================================================

// actorAndRoles resolves the caller's identity and permissions from the
// X-User header against the seed user table. The unseeded "admin"
// actor is the one built-in bootstrap identity, so a fresh database
// isn't permanently locked out before any users are seeded.
func (h *Handler) actorAndRoles(r *http.Request) (string, []string) {
	actor := r.Header.Get("X-User")
	if actor == "" {
		actor = "admin"
	}
	if actor == "admin" {
		if u, err := h.Store.GetUser(r.Context(), actor); err == nil {
			return actor, u.Roles
		}
		return actor, []string{string(authz.RoleAdmin)}
	}
	u, err := h.Store.GetUser(r.Context(), actor)
	if err != nil {
		return actor, nil
	}
	if u.Status != sqlite.UserActive {
		return actor, nil
	}
	return actor, u.Roles
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) requirePermission(w http.ResponseWriter, r *http.Request, perm authz.Permission) (actor string, roles []string, ok bool) {
	actor, roles = h.actorAndRoles(r)
	if err := authz.Check(actor, roles, perm); err != nil {
		writeError(w, http.StatusForbidden, "forbidden", err)
		return actor, roles, false
	}
	return actor, roles, true
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a reconcile error to its HTTP status, per the
// Validation/Authorization/NotFound/Internal split.
func writeDomainError(w http.ResponseWriter, err error) {
	var bve *reconcile.BulkValidationError
	switch {
	case errors.As(err, &bve):
		fields := make([]FieldErrorResponse, len(bve.Errors))
		for i, fe := range bve.Errors {
			fields[i] = FieldErrorResponse{Field: fe.Field, Message: fe.Message}
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: bve.Message, Details: fields})
	case reconcile.IsValidation(err):
		writeError(w, http.StatusBadRequest, "validation error", err)
	case reconcile.IsForbidden(err):
		writeError(w, http.StatusForbidden, "forbidden", err)
	case reconcile.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func queryInt(r *http.Request, name string, def, min, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func parseDecimalPtr(s string) (*decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseBusinessDateParam(r *http.Request, name string) (*reconcile.BusinessDate, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	d, err := reconcile.ParseBusinessDate(v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// =============================================================================
// INGEST
// =============================================================================

// PostIngestFile handles POST /api/v1/ingest/files.
func (h *Handler) PostIngestFile(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := h.requirePermission(w, r, authz.PermIngestWrite)
	if !ok {
		return
	}

	var req IngestFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	date, err := reconcile.ParseBusinessDate(req.BusinessDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid businessDate", err)
		return
	}
	side := reconcile.Side(strings.ToUpper(req.Source))
	if !side.Valid() {
		writeError(w, http.StatusBadRequest, "source must be LEFT or RIGHT", nil)
		return
	}

	result, err := h.Ingest.Ingest(r.Context(), actor, clientIP(r), ingest.Payload{
		Source: side, BusinessDate: date, FileName: req.FileName, Checksum: req.Checksum,
		ParserProfile: req.ParserProfile, Records: req.Records, ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, IngestFileResponse{
		IngestFileID: result.IngestFileID, Duplicate: result.Duplicate, RecordCount: result.RecordCount,
	})
}

// GetIngestFileStatus handles GET /api/v1/ingest/files/{id}/status.
func (h *Handler) GetIngestFileStatus(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requirePermission(w, r, authz.PermIngestRead); !ok {
		return
	}
	id := chi.URLParam(r, "id")
	f, err := h.Store.GetIngestFile(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIngestStatusResponse(f))
}

// =============================================================================
// MATCH RUNS
// =============================================================================

// PostMatchRun handles POST /api/v1/match/runs.
func (h *Handler) PostMatchRun(w http.ResponseWriter, r *http.Request) {
	actor, roles := h.actorAndRoles(r)

	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	date, err := reconcile.ParseBusinessDate(req.BusinessDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid businessDate", err)
		return
	}

	run, err := h.Orchestrator.Run(r.Context(), actor, roles, date, req.ScopeFilter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMatchRunResponse(*run))
}

// ListMatchRuns handles GET /api/v1/match/runs.
func (h *Handler) ListMatchRuns(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requirePermission(w, r, authz.PermMatchRead); !ok {
		return
	}
	date, err := parseBusinessDateParam(r, "businessDate")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid businessDate", err)
		return
	}
	limit := queryInt(r, "limit", 50, 1, 500)

	runs, err := h.Store.ListRuns(r.Context(), date, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]MatchRunResponse, len(runs))
	for i, run := range runs {
		out[i] = toMatchRunResponse(run)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetMatchRun handles GET /api/v1/match/runs/{id}.
func (h *Handler) GetMatchRun(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requirePermission(w, r, authz.PermMatchRead); !ok {
		return
	}
	id := chi.URLParam(r, "id")
	run, err := h.Store.GetRun(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := toMatchRunResponse(*run)
	resp.MatchCounts, resp.ExceptionCounts = h.countsForRun(r, id)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) countsForRun(r *http.Request, runID string) (map[string]int, map[string]int) {
	matchCounts := make(map[string]int)
	if results, err := h.Store.ResultsByRun(r.Context(), runID); err == nil {
		for _, m := range results {
			matchCounts[string(m.MatchType)]++
		}
	}
	exceptionCounts := make(map[string]int)
	if cases, err := h.Store.QueryExceptions(r.Context(), nil, "", "", runID, 1000); err == nil {
		for _, c := range cases {
			exceptionCounts[string(c.Category)]++
		}
	}
	return matchCounts, exceptionCounts
}

// GetMatchStatus handles GET /api/v1/match/status.
func (h *Handler) GetMatchStatus(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requirePermission(w, r, authz.PermMatchRead); !ok {
		return
	}
	date, err := parseBusinessDateParam(r, "business_date")
	if err != nil || date == nil {
		writeError(w, http.StatusBadRequest, "business_date is required", err)
		return
	}
	runs, err := h.Store.RunsByDate(r.Context(), *date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if len(runs) == 0 {
		writeError(w, http.StatusNotFound, "not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toMatchRunResponse(runs[0]))
}

// =============================================================================
// RESULT VIEW
// =============================================================================

func resultFiltersFromQuery(r *http.Request) resultview.Filters {
	q := r.URL.Query()
	var amountMin, amountMax *string
	if v := q.Get("amountMin"); v != "" {
		amountMin = &v
	}
	if v := q.Get("amountMax"); v != "" {
		amountMax = &v
	}
	filters := resultview.Filters{
		Status:   resultview.Status(q.Get("status")),
		Query:    q.Get("q"),
		Currency: q.Get("currency"),
		Page:     queryInt(r, "page", 1, 1, 1<<30),
		PageSize: queryInt(r, "pageSize", 50, 1, 200),
		SortBy:   q.Get("sortBy"),
		SortDir:  q.Get("sortDir"),
	}
	if amountMin != nil {
		if d, err := parseDecimalPtr(*amountMin); err == nil {
			filters.AmountMin = d
		}
	}
	if amountMax != nil {
		if d, err := parseDecimalPtr(*amountMax); err == nil {
			filters.AmountMax = d
		}
	}
	return filters
}

// GetResultsByRun handles GET /api/v1/results/run/{id}.
func (h *Handler) GetResultsByRun(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requirePermission(w, r, authz.PermMatchRead); !ok {
		return
	}
	id := chi.URLParam(r, "id")
	result, err := h.Results.List(r.Context(), id, resultFiltersFromQuery(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultListResponse(result))
}

// GetLatestResults handles GET /api/v1/results/latest.
func (h *Handler) GetLatestResults(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requirePermission(w, r, authz.PermMatchRead); !ok {
		return
	}
	date, err := parseBusinessDateParam(r, "business_date")
	if err != nil || date == nil {
		writeError(w, http.StatusBadRequest, "business_date is required", err)
		return
	}
	runs, err := h.Store.RunsByDate(r.Context(), *date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if len(runs) == 0 {
		writeError(w, http.StatusNotFound, "not found", nil)
		return
	}
	result, err := h.Results.List(r.Context(), runs[0].ID, resultFiltersFromQuery(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultListResponse(result))
}

// GetResultDetails handles GET /api/v1/results/details/{rowId}.
func (h *Handler) GetResultDetails(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requirePermission(w, r, authz.PermMatchRead); !ok {
		return
	}
	rowID := chi.URLParam(r, "rowId")
	detail, err := h.Results.Details(r.Context(), rowID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRowDetailResponse(detail))
}

// =============================================================================
// EXCEPTIONS
// =============================================================================

// ListExceptions handles GET /api/v1/exceptions.
func (h *Handler) ListExceptions(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requirePermission(w, r, authz.PermExceptionsRead); !ok {
		return
	}
	date, err := parseBusinessDateParam(r, "businessDate")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid businessDate", err)
		return
	}
	q := r.URL.Query()
	cases, err := h.Store.QueryExceptions(r.Context(), date,
		reconcile.ExceptionCategory(q.Get("category")), reconcile.CaseStatus(q.Get("status")), q.Get("runId"), 500)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]ExceptionCaseResponse, len(cases))
	for i, c := range cases {
		out[i] = toExceptionCaseResponse(c)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetException handles GET /api/v1/exceptions/{id}.
func (h *Handler) GetException(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requirePermission(w, r, authz.PermExceptionsRead); !ok {
		return
	}
	id := chi.URLParam(r, "id")
	c, err := h.Store.GetExceptionCase(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	txn, err := h.Store.GetTxn(r.Context(), c.PrimaryTxnID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	actions, err := h.Store.ActionsByCase(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	diag, err := h.Exceptions.Diagnose(r.Context(), *txn, c.BusinessDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExceptionDetailResponse{
		Case: toExceptionCaseResponse(*c), Txn: txn, Actions: actions, Diagnostics: diag,
	})
}

// PostExceptionAction handles POST /api/v1/exceptions/{id}/actions.
func (h *Handler) PostExceptionAction(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := h.requirePermission(w, r, authz.PermExceptionsWrite)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req ExceptionActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var (
		c   *reconcile.ExceptionCase
		err error
	)
	switch req.Type {
	case string(reconcile.ActionAssign):
		c, err = h.Exceptions.Assign(r.Context(), actor, id, req.OwnerUserID)
	case string(reconcile.ActionStatusChange):
		c, err = h.Exceptions.StatusChange(r.Context(), actor, id, reconcile.CaseStatus(req.Status))
	case string(reconcile.ActionComment):
		c, err = h.Exceptions.Comment(r.Context(), actor, id, req.Comment)
	case string(reconcile.ActionClose):
		c, err = h.Exceptions.Close(r.Context(), actor, id, req.ResolutionCode)
	default:
		writeError(w, http.StatusBadRequest, "unrecognized action type", nil)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExceptionCaseResponse(*c))
}

// =============================================================================
// ADMIN: RULESETS AND USERS
// =============================================================================

// GetRulesets handles GET /api/v1/admin/rulesets.
func (h *Handler) GetRulesets(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requirePermission(w, r, authz.PermAdminRules); !ok {
		return
	}
	all, err := h.Rulesets.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]RulesetResponse, len(all))
	for i, rs := range all {
		out[i] = toRulesetResponse(rs)
	}
	writeJSON(w, http.StatusOK, out)
}

// PutRuleset handles PUT /api/v1/admin/rulesets.
func (h *Handler) PutRuleset(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requirePermission(w, r, authz.PermAdminRules); !ok {
		return
	}
	var req RulesetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	version, err := h.Rulesets.Put(r.Context(), req.Version, req.Params)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

// ListUsers handles GET /api/v1/admin/users. Gated by exceptions:write,
// not admin:rules, since its main caller is the case-assignment UI.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requirePermission(w, r, authz.PermExceptionsWrite); !ok {
		return
	}
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]UserResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// AUDIT
// =============================================================================

// ListAuditEvents handles GET /api/v1/audit/events.
func (h *Handler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requirePermission(w, r, authz.PermAuditRead); !ok {
		return
	}
	q := r.URL.Query()
	events, err := h.Store.QueryAuditEvents(r.Context(), q.Get("actor"), q.Get("objectType"), q.Get("action"), q.Get("result"), 1000)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]AuditEventResponse, len(events))
	for i, e := range events {
		out[i] = toAuditEventResponse(e)
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// ANALYTICS
// =============================================================================

// GetSourceBalance handles GET /api/v1/monitor/source-balance.
func (h *Handler) GetSourceBalance(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requirePermission(w, r, authz.PermAnalyticsRead); !ok {
		return
	}
	date, err := parseBusinessDateParam(r, "business_date")
	if err != nil || date == nil {
		writeError(w, http.StatusBadRequest, "business_date is required", err)
		return
	}
	balance, err := h.Analytics.SourceBalance(r.Context(), *date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSourceBalanceResponse(balance))
}

// GetAnalytics handles GET /api/v1/analytics/hardcoded. The route name
// is preserved from the external interface map rather than renamed for
// aesthetics, since it's a contract other clients depend on.
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requirePermission(w, r, authz.PermAnalyticsRead); !ok {
		return
	}
	date, err := parseBusinessDateParam(r, "business_date")
	if err != nil || date == nil {
		writeError(w, http.StatusBadRequest, "business_date is required", err)
		return
	}
	stats, err := h.Analytics.Analytics(r.Context(), *date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnalyticsResponse(stats))
}
