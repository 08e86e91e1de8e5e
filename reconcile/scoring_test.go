package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAmountClose(t *testing.T) {
	tol := decimal.NewFromFloat(1.0)
	assert.True(t, amountClose(decimal.NewFromFloat(10.00), decimal.NewFromFloat(10.50), tol))
	assert.True(t, amountClose(decimal.NewFromFloat(10.00), decimal.NewFromFloat(9.00), tol))
	assert.False(t, amountClose(decimal.NewFromFloat(10.00), decimal.NewFromFloat(11.01), tol))
}

func TestOpCompat(t *testing.T) {
	assert.Equal(t, 0.2, opCompat(OpPurchase, OpPurchase))
	assert.Equal(t, 0.1, opCompat(OpPurchase, OpClearing))
	assert.Equal(t, 0.1, opCompat(OpClearing, OpPurchase))
	assert.Equal(t, 0.1, opCompat(OpRefund, OpChargeback))
	assert.Equal(t, 0.1, opCompat(OpReversal, OpReversal))
	assert.Equal(t, 0.0, opCompat(OpPurchase, OpRefund))
}

func TestFuzzyScore_IdenticalTxnsScoreOne(t *testing.T) {
	when := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	l := Txn{Amount: decimal.NewFromFloat(10.00), TxnTime: when, OpType: OpPurchase}
	r := Txn{Amount: decimal.NewFromFloat(10.00), TxnTime: when, OpType: OpPurchase}

	sb := fuzzyScore(l, r, RulesetParams{AmountTolerance: decimal.NewFromFloat(1.0), DateWindowDays: 1})

	assert.Equal(t, 1.0, sb.Score)
	assert.Equal(t, 0.0, sb.AmountPenalty)
	assert.Equal(t, 0.0, sb.DatePenalty)
}

func TestFuzzyScore_DegradesWithDistance(t *testing.T) {
	when := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	later := when.Add(20 * time.Hour)
	l := Txn{Amount: decimal.NewFromFloat(10.00), TxnTime: when, OpType: OpPurchase}
	r := Txn{Amount: decimal.NewFromFloat(10.90), TxnTime: later, OpType: OpRefund}

	rules := RulesetParams{AmountTolerance: decimal.NewFromFloat(1.0), DateWindowDays: 1}
	sb := fuzzyScore(l, r, rules)

	assert.Less(t, sb.Score, 1.0)
	assert.Greater(t, sb.AmountPenalty, 0.0)
	assert.Greater(t, sb.DatePenalty, 0.0)
	assert.Equal(t, 0.0, sb.CompatBonus)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.5))
	assert.Equal(t, 1.0, clamp01(1.5))
	assert.Equal(t, 0.5, clamp01(0.5))
}
