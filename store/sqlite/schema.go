package sqlite

func (s *Store) migrate() error {
	schema := `
	-- Ingest files: one row per accepted upload, unique per (side, date, checksum).
	CREATE TABLE IF NOT EXISTS ingest_files (
		id TEXT PRIMARY KEY,
		source_side TEXT NOT NULL,
		business_date TEXT NOT NULL,
		file_name TEXT NOT NULL,
		checksum TEXT NOT NULL,
		parser_profile TEXT NOT NULL,
		received_at TEXT NOT NULL,
		status TEXT NOT NULL,
		record_count INTEGER NOT NULL DEFAULT 0,
		created_by TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_ingest_files_dedup
		ON ingest_files(source_side, business_date, checksum);

	-- Transactions: immutable, normalized rows from either side.
	CREATE TABLE IF NOT EXISTS txns (
		id TEXT PRIMARY KEY,
		source_side TEXT NOT NULL,
		business_date TEXT NOT NULL,
		rrn TEXT NOT NULL,
		arn TEXT NOT NULL DEFAULT '',
		pan_masked TEXT NOT NULL DEFAULT '',
		pan_hash TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		txn_time TEXT NOT NULL,
		op_type TEXT NOT NULL,
		merchant_id TEXT NOT NULL DEFAULT '',
		channel_id TEXT NOT NULL DEFAULT '',
		status_norm TEXT NOT NULL DEFAULT '',
		fee_amount TEXT NOT NULL DEFAULT '0',
		fee_currency TEXT NOT NULL DEFAULT '',
		ingest_file_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_txns_side_date
		ON txns(source_side, business_date);
	CREATE INDEX IF NOT EXISTS idx_txns_rrn_cur_date
		ON txns(rrn, currency, business_date);
	CREATE INDEX IF NOT EXISTS idx_txns_arn
		ON txns(arn) WHERE arn != '';
	CREATE INDEX IF NOT EXISTS idx_txns_ingest_file
		ON txns(ingest_file_id);

	-- Rulesets: versioned matching parameters, exactly one active at a time.
	CREATE TABLE IF NOT EXISTS rulesets (
		version TEXT PRIMARY KEY,
		is_active INTEGER NOT NULL DEFAULT 0,
		payload_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_rulesets_one_active
		ON rulesets(is_active) WHERE is_active = 1;

	-- Match runs: one execution of the engine over a business date.
	CREATE TABLE IF NOT EXISTS match_runs (
		id TEXT PRIMARY KEY,
		business_date TEXT NOT NULL,
		scope_filter TEXT NOT NULL DEFAULT '',
		ruleset_version TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		status TEXT NOT NULL,
		created_by TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_match_runs_date
		ON match_runs(business_date);

	-- Match results: engine output linking a LEFT txn to its (optional) counterpart.
	CREATE TABLE IF NOT EXISTS match_results (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		left_txn_id TEXT NOT NULL,
		right_txn_id TEXT NOT NULL DEFAULT '',
		match_type TEXT NOT NULL,
		score REAL NOT NULL,
		reason_code TEXT NOT NULL,
		explain_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_match_results_run
		ON match_results(run_id);

	-- Exception cases: unmatched/ambiguous items under human workflow.
	CREATE TABLE IF NOT EXISTS exception_cases (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		business_date TEXT NOT NULL,
		category TEXT NOT NULL,
		severity TEXT NOT NULL,
		status TEXT NOT NULL,
		primary_txn_id TEXT NOT NULL,
		primary_side TEXT NOT NULL,
		owner_user_id TEXT NOT NULL DEFAULT '',
		aging_days INTEGER NOT NULL DEFAULT 0,
		resolution_code TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		closed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_exception_cases_date_status
		ON exception_cases(business_date, status);
	CREATE INDEX IF NOT EXISTS idx_exception_cases_run
		ON exception_cases(run_id);

	-- Exception actions: append-only workflow action trail.
	CREATE TABLE IF NOT EXISTS exception_actions (
		id TEXT PRIMARY KEY,
		case_id TEXT NOT NULL,
		actor TEXT NOT NULL,
		action_at TEXT NOT NULL,
		action_type TEXT NOT NULL,
		payload_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_exception_actions_case
		ON exception_actions(case_id);

	-- Audit events: append-only record of every command.
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		actor TEXT NOT NULL,
		source_ip TEXT NOT NULL DEFAULT '',
		object_type TEXT NOT NULL,
		object_id TEXT NOT NULL,
		action TEXT NOT NULL,
		result TEXT NOT NULL,
		details_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_object
		ON audit_events(object_type, object_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_at
		ON audit_events(at);

	-- Users: static seed table mapping actors to role sets.
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		roles_json TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'ACTIVE'
	);
	`

	_, err := s.db.Exec(schema)
	return err
}
