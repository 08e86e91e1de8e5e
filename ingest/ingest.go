/*
Package ingest validates and persists normalized transaction records,
keyed by (source side, business date, content checksum) for idempotent
whole-file deduplication. Validation is all-or-nothing: either every
record in a payload lands, or none do.
*/
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/reconcile-engine/reconcile"
	"github.com/warp/reconcile-engine/store/sqlite"
)

// Record is one raw, pre-normalization line from an uploaded payload.
type Record struct {
	RRN         string
	ARN         string
	PAN         string
	Amount      string
	Currency    string
	TxnTime     time.Time
	OpType      string
	MerchantID  string
	ChannelID   string
	StatusNorm  string
	FeeAmount   string
	FeeCurrency string
}

// Payload is one upload accepted by the coordinator.
type Payload struct {
	Source        reconcile.Side
	BusinessDate  reconcile.BusinessDate
	FileName      string
	Checksum      string
	ParserProfile string
	ReceivedAt    time.Time
	Records       []Record
}

// Result reports what Ingest did with a payload.
type Result struct {
	IngestFileID string
	Duplicate    bool
	RecordCount  int
}

// Coordinator validates and persists ingest payloads.
type Coordinator struct {
	store  *sqlite.Store
	panKey []byte
}

// NewCoordinator builds a Coordinator. panKey is the server-side HMAC key
// used to fingerprint sanitized PANs; it never leaves the process.
func NewCoordinator(store *sqlite.Store, panKey []byte) *Coordinator {
	return &Coordinator{store: store, panKey: panKey}
}

// Ingest validates payload and, unless it is a duplicate of a
// previously accepted upload, persists the IngestFile and every
// normalized Txn in one transaction, followed by an audit event.
func (c *Coordinator) Ingest(ctx context.Context, actor, sourceIP string, payload Payload) (Result, error) {
	existing, err := c.store.FindIngestFileByChecksum(ctx, payload.Source, payload.BusinessDate, payload.Checksum)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		_ = c.store.InsertAuditEvent(ctx, sqlite.AuditEvent{
			ID: uuid.New().String(), At: time.Now().UTC(), Actor: actor, SourceIP: sourceIP,
			ObjectType: "ingest_file", ObjectID: existing.ID, Action: "ingest", Result: "DUPLICATE",
			Details: map[string]interface{}{"checksum": payload.Checksum},
		})
		return Result{IngestFileID: existing.ID, Duplicate: true, RecordCount: existing.RecordCount}, nil
	}

	normalized, verrs := normalizeAll(payload, c.panKey)
	if len(verrs) > 0 {
		return Result{}, &reconcile.BulkValidationError{
			Message: fmt.Sprintf("ingest payload %q rejected", payload.FileName),
			Errors:  verrs,
		}
	}

	fileID := uuid.New().String()
	now := time.Now().UTC()

	err = c.store.WithTx(ctx, func(tx sqlite.Store) error {
		f := sqlite.IngestFile{
			ID: fileID, SourceSide: payload.Source, BusinessDate: payload.BusinessDate,
			FileName: payload.FileName, Checksum: payload.Checksum, ParserProfile: payload.ParserProfile,
			ReceivedAt: payload.ReceivedAt, Status: "PARSED", RecordCount: len(normalized), CreatedBy: actor,
		}
		if err := tx.InsertIngestFile(ctx, f); err != nil {
			return err
		}
		for i := range normalized {
			normalized[i].IngestFileID = fileID
			if err := tx.InsertTxn(ctx, normalized[i]); err != nil {
				return err
			}
		}
		return tx.InsertAuditEvent(ctx, sqlite.AuditEvent{
			ID: uuid.New().String(), At: now, Actor: actor, SourceIP: sourceIP,
			ObjectType: "ingest_file", ObjectID: fileID, Action: "ingest", Result: "SUCCESS",
			Details: map[string]interface{}{"record_count": len(normalized)},
		})
	})
	if err != nil {
		return Result{}, err
	}
	return Result{IngestFileID: fileID, RecordCount: len(normalized)}, nil
}

func normalizeAll(payload Payload, panKey []byte) ([]reconcile.Txn, []reconcile.ValidationError) {
	out := make([]reconcile.Txn, 0, len(payload.Records))
	var verrs []reconcile.ValidationError

	for i, r := range payload.Records {
		txn, fieldErrs := normalizeRecord(i, r, payload, panKey)
		if len(fieldErrs) > 0 {
			verrs = append(verrs, fieldErrs...)
			continue
		}
		out = append(out, txn)
	}
	if len(verrs) > 0 {
		return nil, verrs
	}
	return out, nil
}

func normalizeRecord(idx int, r Record, payload Payload, panKey []byte) (reconcile.Txn, []reconcile.ValidationError) {
	var errs []reconcile.ValidationError
	field := func(name string) string { return fmt.Sprintf("records[%d].%s", idx, name) }

	if strings.TrimSpace(r.RRN) == "" {
		errs = append(errs, reconcile.ValidationError{Field: field("rrn"), Message: "required"})
	}
	if strings.TrimSpace(r.Amount) == "" {
		errs = append(errs, reconcile.ValidationError{Field: field("amount"), Message: "required"})
	}
	if strings.TrimSpace(r.Currency) == "" {
		errs = append(errs, reconcile.ValidationError{Field: field("currency"), Message: "required"})
	}
	if r.TxnTime.IsZero() {
		errs = append(errs, reconcile.ValidationError{Field: field("txnTime"), Message: "required"})
	}
	if strings.TrimSpace(r.MerchantID) == "" {
		errs = append(errs, reconcile.ValidationError{Field: field("merchantId"), Message: "required"})
	}
	if strings.TrimSpace(r.ChannelID) == "" {
		errs = append(errs, reconcile.ValidationError{Field: field("channelId"), Message: "required"})
	}

	amount, amountErr := decimal.NewFromString(r.Amount)
	if amountErr != nil {
		errs = append(errs, reconcile.ValidationError{Field: field("amount"), Message: "must be a decimal"})
	}

	if len(errs) > 0 {
		return reconcile.Txn{}, errs
	}

	currency := strings.ToUpper(strings.TrimSpace(r.Currency))
	feeCurrency := strings.ToUpper(strings.TrimSpace(r.FeeCurrency))
	if feeCurrency == "" {
		feeCurrency = currency
	}
	feeAmount := decimal.Zero
	if strings.TrimSpace(r.FeeAmount) != "" {
		if parsed, err := decimal.NewFromString(r.FeeAmount); err == nil {
			feeAmount = parsed
		}
	}

	panMasked := reconcile.SanitizePAN(r.PAN)
	panHash := ""
	if panMasked != "" {
		panHash = reconcile.PANHash(panMasked, panKey)
	}

	return reconcile.Txn{
		ID:           reconcile.TxnID(uuid.New().String()),
		Side:         payload.Source,
		BusinessDate: payload.BusinessDate,
		RRN:          strings.ToUpper(strings.TrimSpace(r.RRN)),
		ARN:          strings.ToUpper(strings.TrimSpace(r.ARN)),
		PANMasked:    panMasked,
		PANHash:      panHash,
		Amount:       amount,
		Currency:     currency,
		TxnTime:      r.TxnTime,
		OpType:       reconcile.ParseOpType(r.OpType),
		MerchantID:   r.MerchantID,
		ChannelID:    r.ChannelID,
		StatusNorm:   r.StatusNorm,
		FeeAmount:    feeAmount,
		FeeCurrency:  feeCurrency,
		CreatedAt:    time.Now().UTC(),
	}, nil
}
