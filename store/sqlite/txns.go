package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/reconcile-engine/reconcile"
)

const timeLayout = time.RFC3339Nano

// IngestFile is the persisted row behind one accepted (or rejected) upload.
type IngestFile struct {
	ID            string
	SourceSide    reconcile.Side
	BusinessDate  reconcile.BusinessDate
	FileName      string
	Checksum      string
	ParserProfile string
	ReceivedAt    time.Time
	Status        string
	RecordCount   int
	CreatedBy     string
}

// InsertIngestFile records a new upload. Returns reconcile.ErrDuplicateIngestFile
// if (source side, business date, checksum) was already seen.
func (s *Store) InsertIngestFile(ctx context.Context, f IngestFile) error {
	_, err := s.q().ExecContext(ctx, `
		INSERT INTO ingest_files
			(id, source_side, business_date, file_name, checksum, parser_profile,
			 received_at, status, record_count, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, string(f.SourceSide), f.BusinessDate.String(), f.FileName, f.Checksum,
		f.ParserProfile, f.ReceivedAt.Format(timeLayout), f.Status, f.RecordCount, f.CreatedBy,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return reconcile.ErrDuplicateIngestFile
		}
		return fmt.Errorf("insert ingest file: %w", err)
	}
	return nil
}

// FindIngestFileByChecksum looks up a prior upload for idempotent dedup.
// Returns nil, nil when no row matches.
func (s *Store) FindIngestFileByChecksum(ctx context.Context, side reconcile.Side, date reconcile.BusinessDate, checksum string) (*IngestFile, error) {
	defer s.rlock()()

	row := s.q().QueryRowContext(ctx, `
		SELECT id, source_side, business_date, file_name, checksum, parser_profile,
		       received_at, status, record_count, created_by
		FROM ingest_files
		WHERE source_side = ? AND business_date = ? AND checksum = ?`,
		string(side), date.String(), checksum,
	)
	f, err := scanIngestFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// GetIngestFile fetches a single upload by id.
func (s *Store) GetIngestFile(ctx context.Context, id string) (*IngestFile, error) {
	defer s.rlock()()

	row := s.q().QueryRowContext(ctx, `
		SELECT id, source_side, business_date, file_name, checksum, parser_profile,
		       received_at, status, record_count, created_by
		FROM ingest_files WHERE id = ?`, id,
	)
	f, err := scanIngestFile(row)
	if err == sql.ErrNoRows {
		return nil, &reconcile.NotFoundError{Kind: "ingest_file", ID: id}
	}
	return f, err
}

// CountIngestFiles counts accepted uploads for one side on a business date.
func (s *Store) CountIngestFiles(ctx context.Context, side reconcile.Side, date reconcile.BusinessDate) (int, error) {
	defer s.rlock()()

	var n int
	err := s.q().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ingest_files WHERE source_side = ? AND business_date = ?`,
		string(side), date.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count ingest files: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIngestFile(row rowScanner) (*IngestFile, error) {
	var f IngestFile
	var side, businessDate, receivedAt string
	err := row.Scan(&f.ID, &side, &businessDate, &f.FileName, &f.Checksum, &f.ParserProfile,
		&receivedAt, &f.Status, &f.RecordCount, &f.CreatedBy)
	if err != nil {
		return nil, err
	}
	f.SourceSide = reconcile.Side(side)
	f.BusinessDate, err = reconcile.ParseBusinessDate(businessDate)
	if err != nil {
		return nil, err
	}
	f.ReceivedAt, _ = time.Parse(timeLayout, receivedAt)
	return &f, nil
}

// InsertTxn persists one normalized transaction row.
func (s *Store) InsertTxn(ctx context.Context, t reconcile.Txn) error {
	_, err := s.q().ExecContext(ctx, `
		INSERT INTO txns
			(id, source_side, business_date, rrn, arn, pan_masked, pan_hash, amount, currency,
			 txn_time, op_type, merchant_id, channel_id, status_norm, fee_amount, fee_currency,
			 ingest_file_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(t.ID), string(t.Side), t.BusinessDate.String(), t.RRN, t.ARN, t.PANMasked, t.PANHash,
		t.Amount.String(), t.Currency, t.TxnTime.Format(timeLayout), string(t.OpType),
		t.MerchantID, t.ChannelID, t.StatusNorm, t.FeeAmount.String(), t.FeeCurrency,
		t.IngestFileID, t.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert txn: %w", err)
	}
	return nil
}

// TxnsByDateSide returns every txn ingested for one side on a business date.
func (s *Store) TxnsByDateSide(ctx context.Context, date reconcile.BusinessDate, side reconcile.Side) ([]reconcile.Txn, error) {
	defer s.rlock()()

	rows, err := s.q().QueryContext(ctx, `
		SELECT id, source_side, business_date, rrn, arn, pan_masked, pan_hash, amount, currency,
		       txn_time, op_type, merchant_id, channel_id, status_norm, fee_amount, fee_currency,
		       ingest_file_id, created_at
		FROM txns
		WHERE business_date = ? AND source_side = ?
		ORDER BY txn_time ASC`,
		date.String(), string(side),
	)
	if err != nil {
		return nil, fmt.Errorf("query txns: %w", err)
	}
	defer rows.Close()
	return scanTxns(rows)
}

// GetTxn fetches a single txn by id.
func (s *Store) GetTxn(ctx context.Context, id reconcile.TxnID) (*reconcile.Txn, error) {
	defer s.rlock()()

	row := s.q().QueryRowContext(ctx, `
		SELECT id, source_side, business_date, rrn, arn, pan_masked, pan_hash, amount, currency,
		       txn_time, op_type, merchant_id, channel_id, status_norm, fee_amount, fee_currency,
		       ingest_file_id, created_at
		FROM txns WHERE id = ?`, string(id),
	)
	t, err := scanTxn(row)
	if err == sql.ErrNoRows {
		return nil, &reconcile.NotFoundError{Kind: "txn", ID: string(id)}
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTxnsByIDs fetches multiple txns, preserving no particular order.
func (s *Store) GetTxnsByIDs(ctx context.Context, ids []reconcile.TxnID) ([]reconcile.Txn, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	defer s.rlock()()

	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = string(id)
	}
	query := fmt.Sprintf(`
		SELECT id, source_side, business_date, rrn, arn, pan_masked, pan_hash, amount, currency,
		       txn_time, op_type, merchant_id, channel_id, status_norm, fee_amount, fee_currency,
		       ingest_file_id, created_at
		FROM txns WHERE id IN (%s)`, string(placeholders))

	rows, err := s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query txns by ids: %w", err)
	}
	defer rows.Close()
	return scanTxns(rows)
}

func scanTxns(rows *sql.Rows) ([]reconcile.Txn, error) {
	var out []reconcile.Txn
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTxn(row rowScanner) (*reconcile.Txn, error) {
	var t reconcile.Txn
	var side, businessDate, amount, txnTime, opType, feeAmount, createdAt string
	err := row.Scan(&t.ID, &side, &businessDate, &t.RRN, &t.ARN, &t.PANMasked, &t.PANHash,
		&amount, &t.Currency, &txnTime, &opType, &t.MerchantID, &t.ChannelID, &t.StatusNorm,
		&feeAmount, &t.FeeCurrency, &t.IngestFileID, &createdAt)
	if err != nil {
		return nil, err
	}
	t.Side = reconcile.Side(side)
	t.BusinessDate, err = reconcile.ParseBusinessDate(businessDate)
	if err != nil {
		return nil, err
	}
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse txn amount: %w", err)
	}
	t.TxnTime, _ = time.Parse(timeLayout, txnTime)
	t.OpType = reconcile.OpType(opType)
	t.FeeAmount, _ = decimal.NewFromString(feeAmount)
	t.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &t, nil
}
