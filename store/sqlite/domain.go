package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/reconcile-engine/reconcile"
)

// =============================================================================
// RULESETS
// =============================================================================

// ActivateRuleset inserts a new ruleset version as the sole active one,
// deactivating every prior row in the same statement group. Callers run
// this inside WithTx so the deactivate+insert is atomic.
func (s *Store) ActivateRuleset(ctx context.Context, version string, params reconcile.RulesetParams) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal ruleset payload: %w", err)
	}

	if _, err := s.q().ExecContext(ctx, `UPDATE rulesets SET is_active = 0 WHERE is_active = 1`); err != nil {
		return fmt.Errorf("deactivate rulesets: %w", err)
	}

	_, err = s.q().ExecContext(ctx, `
		INSERT INTO rulesets (version, is_active, payload_json, created_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(version) DO UPDATE SET is_active = 1, payload_json = excluded.payload_json`,
		version, string(payload), time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert ruleset: %w", err)
	}
	return nil
}

// ActiveRuleset returns the sole active ruleset, or reconcile.ErrNoActiveRuleset.
func (s *Store) ActiveRuleset(ctx context.Context) (*reconcile.Ruleset, error) {
	defer s.rlock()()

	row := s.q().QueryRowContext(ctx, `
		SELECT version, payload_json, created_at FROM rulesets WHERE is_active = 1`)

	var version, payload, createdAt string
	if err := row.Scan(&version, &payload, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, reconcile.ErrNoActiveRuleset
		}
		return nil, fmt.Errorf("query active ruleset: %w", err)
	}

	var params reconcile.RulesetParams
	if err := json.Unmarshal([]byte(payload), &params); err != nil {
		return nil, fmt.Errorf("unmarshal ruleset payload: %w", err)
	}
	created, _ := time.Parse(timeLayout, createdAt)
	return &reconcile.Ruleset{Version: version, IsActive: true, Params: params, CreatedAt: created}, nil
}

// ListRulesets returns every ruleset version, newest first.
func (s *Store) ListRulesets(ctx context.Context) ([]reconcile.Ruleset, error) {
	defer s.rlock()()

	rows, err := s.q().QueryContext(ctx, `
		SELECT version, is_active, payload_json, created_at FROM rulesets ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query rulesets: %w", err)
	}
	defer rows.Close()

	var out []reconcile.Ruleset
	for rows.Next() {
		var version, payload, createdAt string
		var isActive bool
		if err := rows.Scan(&version, &isActive, &payload, &createdAt); err != nil {
			return nil, err
		}
		var params reconcile.RulesetParams
		if err := json.Unmarshal([]byte(payload), &params); err != nil {
			return nil, fmt.Errorf("unmarshal ruleset payload: %w", err)
		}
		created, _ := time.Parse(timeLayout, createdAt)
		out = append(out, reconcile.Ruleset{Version: version, IsActive: isActive, Params: params, CreatedAt: created})
	}
	return out, rows.Err()
}

// =============================================================================
// MATCH RUNS
// =============================================================================

// InsertRun persists a new run, typically immediately after it is created
// in RUNNING status (the orchestrator's checkpoint commit).
func (s *Store) InsertRun(ctx context.Context, r reconcile.MatchRun) error {
	var finishedAt interface{}
	if r.FinishedAt != nil {
		finishedAt = r.FinishedAt.Format(timeLayout)
	}
	_, err := s.q().ExecContext(ctx, `
		INSERT INTO match_runs (id, business_date, scope_filter, ruleset_version, started_at, finished_at, status, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.BusinessDate.String(), r.ScopeFilter, r.RulesetVersion,
		r.StartedAt.Format(timeLayout), finishedAt, string(r.Status), r.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert match run: %w", err)
	}
	return nil
}

// FinalizeRun flips a run's status and stamps finishedAt.
func (s *Store) FinalizeRun(ctx context.Context, id string, status reconcile.RunStatus, finishedAt time.Time) error {
	_, err := s.q().ExecContext(ctx, `
		UPDATE match_runs SET status = ?, finished_at = ? WHERE id = ?`,
		string(status), finishedAt.Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	return nil
}

// GetRun fetches a single run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*reconcile.MatchRun, error) {
	defer s.rlock()()

	row := s.q().QueryRowContext(ctx, `
		SELECT id, business_date, scope_filter, ruleset_version, started_at, finished_at, status, created_by
		FROM match_runs WHERE id = ?`, id,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, &reconcile.NotFoundError{Kind: "match_run", ID: id}
	}
	return r, err
}

// RunsByDate lists every run for a business date, most recent first.
func (s *Store) RunsByDate(ctx context.Context, date reconcile.BusinessDate) ([]reconcile.MatchRun, error) {
	defer s.rlock()()

	rows, err := s.q().QueryContext(ctx, `
		SELECT id, business_date, scope_filter, ruleset_version, started_at, finished_at, status, created_by
		FROM match_runs WHERE business_date = ? ORDER BY started_at DESC`, date.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []reconcile.MatchRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListRuns lists runs across all dates, most recent first, optionally
// filtered to one business date and capped at limit rows.
func (s *Store) ListRuns(ctx context.Context, date *reconcile.BusinessDate, limit int) ([]reconcile.MatchRun, error) {
	defer s.rlock()()

	query := `SELECT id, business_date, scope_filter, ruleset_version, started_at, finished_at, status, created_by FROM match_runs`
	var args []interface{}
	if date != nil {
		query += ` WHERE business_date = ?`
		args = append(args, date.String())
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []reconcile.MatchRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanRun(row rowScanner) (*reconcile.MatchRun, error) {
	var r reconcile.MatchRun
	var businessDate, startedAt, status string
	var finishedAt sql.NullString
	err := row.Scan(&r.ID, &businessDate, &r.ScopeFilter, &r.RulesetVersion, &startedAt, &finishedAt, &status, &r.CreatedBy)
	if err != nil {
		return nil, err
	}
	r.BusinessDate, err = reconcile.ParseBusinessDate(businessDate)
	if err != nil {
		return nil, err
	}
	r.StartedAt, _ = time.Parse(timeLayout, startedAt)
	if finishedAt.Valid {
		t, _ := time.Parse(timeLayout, finishedAt.String)
		r.FinishedAt = &t
	}
	r.Status = reconcile.RunStatus(status)
	return &r, nil
}

// =============================================================================
// MATCH RESULTS
// =============================================================================

// InsertMatchResult persists one engine match output, tagged with its run.
func (s *Store) InsertMatchResult(ctx context.Context, runID string, m reconcile.MatchResult) error {
	explain, err := json.Marshal(m.Explain)
	if err != nil {
		return fmt.Errorf("marshal explain blob: %w", err)
	}
	_, err = s.q().ExecContext(ctx, `
		INSERT INTO match_results (id, run_id, left_txn_id, right_txn_id, match_type, score, reason_code, explain_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, runID, string(m.LeftTxnID), string(m.RightTxnID), string(m.MatchType), m.Score, m.ReasonCode, string(explain),
	)
	if err != nil {
		return fmt.Errorf("insert match result: %w", err)
	}
	return nil
}

// ResultsByRun returns every match result produced by a run.
func (s *Store) ResultsByRun(ctx context.Context, runID string) ([]reconcile.MatchResult, error) {
	defer s.rlock()()

	rows, err := s.q().QueryContext(ctx, `
		SELECT id, run_id, left_txn_id, right_txn_id, match_type, score, reason_code, explain_json
		FROM match_results WHERE run_id = ?`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query match results: %w", err)
	}
	defer rows.Close()

	var out []reconcile.MatchResult
	for rows.Next() {
		var m reconcile.MatchResult
		var leftID, rightID, matchType, explain string
		if err := rows.Scan(&m.ID, &m.RunID, &leftID, &rightID, &matchType, &m.Score, &m.ReasonCode, &explain); err != nil {
			return nil, err
		}
		m.LeftTxnID = reconcile.TxnID(leftID)
		m.RightTxnID = reconcile.TxnID(rightID)
		m.MatchType = reconcile.MatchType(matchType)
		_ = json.Unmarshal([]byte(explain), &m.Explain)
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMatchResult fetches a single match result by id, regardless of run.
func (s *Store) GetMatchResult(ctx context.Context, id string) (*reconcile.MatchResult, error) {
	defer s.rlock()()

	row := s.q().QueryRowContext(ctx, `
		SELECT id, run_id, left_txn_id, right_txn_id, match_type, score, reason_code, explain_json
		FROM match_results WHERE id = ?`, id,
	)
	var m reconcile.MatchResult
	var leftID, rightID, matchType, explain string
	err := row.Scan(&m.ID, &m.RunID, &leftID, &rightID, &matchType, &m.Score, &m.ReasonCode, &explain)
	if err == sql.ErrNoRows {
		return nil, &reconcile.NotFoundError{Kind: "match_result", ID: id}
	}
	if err != nil {
		return nil, err
	}
	m.LeftTxnID = reconcile.TxnID(leftID)
	m.RightTxnID = reconcile.TxnID(rightID)
	m.MatchType = reconcile.MatchType(matchType)
	_ = json.Unmarshal([]byte(explain), &m.Explain)
	return &m, nil
}

// =============================================================================
// EXCEPTION CASES
// =============================================================================

// InsertExceptionCase persists one exception raised by a run.
func (s *Store) InsertExceptionCase(ctx context.Context, runID string, c reconcile.ExceptionCase) error {
	var closedAt interface{}
	if c.ClosedAt != nil {
		closedAt = c.ClosedAt.Format(timeLayout)
	}
	_, err := s.q().ExecContext(ctx, `
		INSERT INTO exception_cases
			(id, run_id, business_date, category, severity, status, primary_txn_id, primary_side,
			 owner_user_id, aging_days, resolution_code, created_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, runID, c.BusinessDate.String(), string(c.Category), string(c.Severity), string(c.Status),
		string(c.PrimaryTxnID), string(c.PrimarySide), c.OwnerUserID, c.AgingDays, c.ResolutionCode,
		c.CreatedAt.Format(timeLayout), closedAt,
	)
	if err != nil {
		return fmt.Errorf("insert exception case: %w", err)
	}
	return nil
}

// UpdateExceptionCase persists the mutable fields of a case after a workflow action.
func (s *Store) UpdateExceptionCase(ctx context.Context, c reconcile.ExceptionCase) error {
	var closedAt interface{}
	if c.ClosedAt != nil {
		closedAt = c.ClosedAt.Format(timeLayout)
	}
	_, err := s.q().ExecContext(ctx, `
		UPDATE exception_cases
		SET status = ?, owner_user_id = ?, aging_days = ?, resolution_code = ?, closed_at = ?
		WHERE id = ?`,
		string(c.Status), c.OwnerUserID, c.AgingDays, c.ResolutionCode, closedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("update exception case: %w", err)
	}
	return nil
}

// GetExceptionCase fetches a single case by id.
func (s *Store) GetExceptionCase(ctx context.Context, id string) (*reconcile.ExceptionCase, error) {
	defer s.rlock()()

	row := s.q().QueryRowContext(ctx, `
		SELECT id, run_id, business_date, category, severity, status, primary_txn_id, primary_side,
		       owner_user_id, aging_days, resolution_code, created_at, closed_at
		FROM exception_cases WHERE id = ?`, id,
	)
	c, err := scanExceptionCase(row)
	if err == sql.ErrNoRows {
		return nil, &reconcile.NotFoundError{Kind: "exception_case", ID: id}
	}
	return c, err
}

// ExceptionsByDate lists cases for a business date, optionally filtered by status.
func (s *Store) ExceptionsByDate(ctx context.Context, date reconcile.BusinessDate, status reconcile.CaseStatus) ([]reconcile.ExceptionCase, error) {
	defer s.rlock()()

	query := `
		SELECT id, run_id, business_date, category, severity, status, primary_txn_id, primary_side,
		       owner_user_id, aging_days, resolution_code, created_at, closed_at
		FROM exception_cases WHERE business_date = ?`
	args := []interface{}{date.String()}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exception cases: %w", err)
	}
	defer rows.Close()

	var out []reconcile.ExceptionCase
	for rows.Next() {
		c, err := scanExceptionCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanExceptionCase(row rowScanner) (*reconcile.ExceptionCase, error) {
	var c reconcile.ExceptionCase
	var businessDate, category, severity, status, primaryTxnID, primarySide, createdAt string
	var closedAt sql.NullString
	err := row.Scan(&c.ID, &c.RunID, &businessDate, &category, &severity, &status, &primaryTxnID,
		&primarySide, &c.OwnerUserID, &c.AgingDays, &c.ResolutionCode, &createdAt, &closedAt)
	if err != nil {
		return nil, err
	}
	c.BusinessDate, err = reconcile.ParseBusinessDate(businessDate)
	if err != nil {
		return nil, err
	}
	c.Category = reconcile.ExceptionCategory(category)
	c.Severity = reconcile.Severity(severity)
	c.Status = reconcile.CaseStatus(status)
	c.PrimaryTxnID = reconcile.TxnID(primaryTxnID)
	c.PrimarySide = reconcile.Side(primarySide)
	c.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if closedAt.Valid {
		t, _ := time.Parse(timeLayout, closedAt.String)
		c.ClosedAt = &t
	}
	return &c, nil
}

// =============================================================================
// EXCEPTION ACTIONS
// =============================================================================

// QueryExceptions filters cases across all dates, most recent first,
// capped at limit rows. An empty/nil filter is ignored.
func (s *Store) QueryExceptions(ctx context.Context, date *reconcile.BusinessDate, category reconcile.ExceptionCategory, status reconcile.CaseStatus, runID string, limit int) ([]reconcile.ExceptionCase, error) {
	defer s.rlock()()

	query := `
		SELECT id, run_id, business_date, category, severity, status, primary_txn_id, primary_side,
		       owner_user_id, aging_days, resolution_code, created_at, closed_at
		FROM exception_cases WHERE 1=1`
	var args []interface{}
	if date != nil {
		query += ` AND business_date = ?`
		args = append(args, date.String())
	}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, string(category))
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	if runID != "" {
		query += ` AND run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exception cases: %w", err)
	}
	defer rows.Close()

	var out []reconcile.ExceptionCase
	for rows.Next() {
		c, err := scanExceptionCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// InsertExceptionAction persists one workflow action against a case.
func (s *Store) InsertExceptionAction(ctx context.Context, a reconcile.ExceptionAction) error {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return fmt.Errorf("marshal action payload: %w", err)
	}
	_, err = s.q().ExecContext(ctx, `
		INSERT INTO exception_actions (id, case_id, actor, action_at, action_type, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.CaseID, a.Actor, a.ActionAt.Format(timeLayout), string(a.ActionType), string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert exception action: %w", err)
	}
	return nil
}

// ActionsByCase returns a case's action trail in chronological order.
func (s *Store) ActionsByCase(ctx context.Context, caseID string) ([]reconcile.ExceptionAction, error) {
	defer s.rlock()()

	rows, err := s.q().QueryContext(ctx, `
		SELECT id, case_id, actor, action_at, action_type, payload_json
		FROM exception_actions WHERE case_id = ? ORDER BY action_at ASC`, caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query exception actions: %w", err)
	}
	defer rows.Close()

	var out []reconcile.ExceptionAction
	for rows.Next() {
		var a reconcile.ExceptionAction
		var actionAt, actionType, payload string
		if err := rows.Scan(&a.ID, &a.CaseID, &a.Actor, &actionAt, &actionType, &payload); err != nil {
			return nil, err
		}
		a.ActionAt, _ = time.Parse(timeLayout, actionAt)
		a.ActionType = reconcile.ExceptionActionType(actionType)
		_ = json.Unmarshal([]byte(payload), &a.Payload)
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// AUDIT EVENTS
// =============================================================================

// AuditEvent is the persisted row behind every command's audit trail entry.
type AuditEvent struct {
	ID         string
	At         time.Time
	Actor      string
	SourceIP   string
	ObjectType string
	ObjectID   string
	Action     string
	Result     string
	Details    map[string]interface{}
}

// InsertAuditEvent appends one audit row. Called from inside the same
// transaction as the command it records, so a rollback discards both.
func (s *Store) InsertAuditEvent(ctx context.Context, e AuditEvent) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	_, err = s.q().ExecContext(ctx, `
		INSERT INTO audit_events (id, at, actor, source_ip, object_type, object_id, action, result, details_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.At.Format(timeLayout), e.Actor, e.SourceIP, e.ObjectType, e.ObjectID, e.Action, e.Result, string(details),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// AuditEventsByObject returns the audit trail for one object, most recent first.
func (s *Store) AuditEventsByObject(ctx context.Context, objectType, objectID string) ([]AuditEvent, error) {
	defer s.rlock()()

	rows, err := s.q().QueryContext(ctx, `
		SELECT id, at, actor, source_ip, object_type, object_id, action, result, details_json
		FROM audit_events WHERE object_type = ? AND object_id = ? ORDER BY at DESC`,
		objectType, objectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var at, details string
		if err := rows.Scan(&e.ID, &at, &e.Actor, &e.SourceIP, &e.ObjectType, &e.ObjectID, &e.Action, &e.Result, &details); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(timeLayout, at)
		_ = json.Unmarshal([]byte(details), &e.Details)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// USERS (ambient seed table)
// =============================================================================

// UserStatus marks whether a seed user can be assigned exception cases.
type UserStatus string

const (
	UserActive   UserStatus = "ACTIVE"
	UserInactive UserStatus = "INACTIVE"
)

// User is a statically seeded actor carrying zero or more roles.
type User struct {
	ID          string
	DisplayName string
	Roles       []string
	Status      UserStatus
}

// QueryAuditEvents filters the audit trail across all objects, most
// recent first, capped at limit rows. Empty filter strings are ignored.
func (s *Store) QueryAuditEvents(ctx context.Context, actor, objectType, action, result string, limit int) ([]AuditEvent, error) {
	defer s.rlock()()

	query := `SELECT id, at, actor, source_ip, object_type, object_id, action, result, details_json FROM audit_events WHERE 1=1`
	var args []interface{}
	if actor != "" {
		query += ` AND actor = ?`
		args = append(args, actor)
	}
	if objectType != "" {
		query += ` AND object_type = ?`
		args = append(args, objectType)
	}
	if action != "" {
		query += ` AND action = ?`
		args = append(args, action)
	}
	if result != "" {
		query += ` AND result = ?`
		args = append(args, result)
	}
	query += ` ORDER BY at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var at, details string
		if err := rows.Scan(&e.ID, &at, &e.Actor, &e.SourceIP, &e.ObjectType, &e.ObjectID, &e.Action, &e.Result, &details); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(timeLayout, at)
		_ = json.Unmarshal([]byte(details), &e.Details)
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertUser inserts or replaces a seed user row.
func (s *Store) UpsertUser(ctx context.Context, u User) error {
	roles, err := json.Marshal(u.Roles)
	if err != nil {
		return fmt.Errorf("marshal user roles: %w", err)
	}
	status := u.Status
	if status == "" {
		status = UserActive
	}
	_, err = s.q().ExecContext(ctx, `
		INSERT INTO users (id, display_name, roles_json, status) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name, roles_json = excluded.roles_json, status = excluded.status`,
		u.ID, u.DisplayName, string(roles), string(status),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser fetches a single seed user.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	defer s.rlock()()

	row := s.q().QueryRowContext(ctx, `SELECT id, display_name, roles_json, status FROM users WHERE id = ?`, id)
	var u User
	var roles, status string
	if err := row.Scan(&u.ID, &u.DisplayName, &roles, &status); err != nil {
		if err == sql.ErrNoRows {
			return nil, &reconcile.NotFoundError{Kind: "user", ID: id}
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	_ = json.Unmarshal([]byte(roles), &u.Roles)
	u.Status = UserStatus(status)
	return &u, nil
}

// ListUsers returns every seed user.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	defer s.rlock()()

	rows, err := s.q().QueryContext(ctx, `SELECT id, display_name, roles_json, status FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		var roles, status string
		if err := rows.Scan(&u.ID, &u.DisplayName, &roles, &status); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(roles), &u.Roles)
		u.Status = UserStatus(status)
		out = append(out, u)
	}
	return out, rows.Err()
}
