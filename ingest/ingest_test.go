package ingest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reconcile-engine/ingest"
	"github.com/warp/reconcile-engine/reconcile"
	"github.com/warp/reconcile-engine/store/sqlite"
)

func newTestCoordinator(t *testing.T) (*ingest.Coordinator, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return ingest.NewCoordinator(st, []byte("test-pan-key")), st
}

func validPayload() ingest.Payload {
	return ingest.Payload{
		Source:        reconcile.SideLeft,
		BusinessDate:  reconcile.NewBusinessDate(2026, 3, 1),
		FileName:      "issuer-2026-03-01.csv",
		Checksum:      "checksum-1",
		ParserProfile: "issuer-v1",
		ReceivedAt:    time.Now().UTC(),
		Records: []ingest.Record{
			{
				RRN: "100001", PAN: "4111111111111111", Amount: "100.00", Currency: "kzt",
				TxnTime: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), OpType: "purchase",
				MerchantID: "m-1", ChannelID: "pos",
			},
		},
	}
}

func TestIngest_PersistsNormalizedTxn(t *testing.T) {
	c, st := newTestCoordinator(t)
	ctx := context.Background()

	res, err := c.Ingest(ctx, "alice", "10.0.0.1", validPayload())
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 1, res.RecordCount)

	txns, err := st.TxnsByDateSide(ctx, reconcile.NewBusinessDate(2026, 3, 1), reconcile.SideLeft)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "100001", txns[0].RRN)
	assert.Equal(t, "KZT", txns[0].Currency)
	assert.Equal(t, reconcile.OpPurchase, txns[0].OpType)
	assert.NotContains(t, txns[0].PANMasked, "1111111111")
	assert.NotEmpty(t, txns[0].PANHash)
}

func TestIngest_DuplicateChecksumIsIdempotent(t *testing.T) {
	c, st := newTestCoordinator(t)
	ctx := context.Background()

	first, err := c.Ingest(ctx, "alice", "10.0.0.1", validPayload())
	require.NoError(t, err)

	second, err := c.Ingest(ctx, "alice", "10.0.0.1", validPayload())
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.IngestFileID, second.IngestFileID)

	txns, err := st.TxnsByDateSide(ctx, reconcile.NewBusinessDate(2026, 3, 1), reconcile.SideLeft)
	require.NoError(t, err)
	assert.Len(t, txns, 1, "duplicate upload must not create a second row")
}

func TestIngest_MissingFieldAbortsWholeFile(t *testing.T) {
	c, st := newTestCoordinator(t)
	ctx := context.Background()

	payload := validPayload()
	payload.Records = append(payload.Records, ingest.Record{
		// missing rrn, amount, currency, merchantId, channelId
		TxnTime: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	})

	_, err := c.Ingest(ctx, "alice", "10.0.0.1", payload)
	require.Error(t, err)
	assert.True(t, reconcile.IsValidation(err))

	txns, err := st.TxnsByDateSide(ctx, reconcile.NewBusinessDate(2026, 3, 1), reconcile.SideLeft)
	require.NoError(t, err)
	assert.Empty(t, txns, "a rejected file must persist nothing")
}

func TestIngest_FeeCurrencyDefaultsToTxnCurrency(t *testing.T) {
	c, st := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Ingest(ctx, "alice", "10.0.0.1", validPayload())
	require.NoError(t, err)

	txns, err := st.TxnsByDateSide(ctx, reconcile.NewBusinessDate(2026, 3, 1), reconcile.SideLeft)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "KZT", txns[0].FeeCurrency)
}
