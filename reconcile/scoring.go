/*
scoring.go - Pure scoring helpers used by the matching engine passes

These are deliberately tiny and independently testable, isolated from
the services that call them.
*/
package reconcile

import (
	"github.com/shopspring/decimal"
)

// amountClose reports whether two amounts differ by no more than tol.
func amountClose(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}

// opCompat scores how compatible two operation types are: equal types get
// 0.2; pairs that plausibly describe the same underlying event on two sides
// of the pipe (a purchase that later clears, a refund that becomes a
// chargeback) get a partial bonus of 0.1; unrelated types get none.
func opCompat(l, r OpType) float64 {
	if l == r {
		return 0.2
	}
	compatiblePairs := [][2]OpType{
		{OpPurchase, OpClearing},
		{OpRefund, OpChargeback},
		{OpReversal, OpReversal},
	}
	for _, pair := range compatiblePairs {
		if (l == pair[0] && r == pair[1]) || (l == pair[1] && r == pair[0]) {
			return 0.1
		}
	}
	return 0.0
}

// scoreBreakdown is the intermediate result of fuzzyScore, carried into
// the engine's explain blob.
type scoreBreakdown struct {
	Score         float64
	AmountPenalty float64
	DatePenalty   float64
	CompatBonus   float64
}

// fuzzyScore computes a [0,1] confidence that l and r describe the same
// underlying event, given the active ruleset's tolerance and window.
func fuzzyScore(l, r Txn, rules RulesetParams) scoreBreakdown {
	tol := rules.AmountTolerance
	if tol.IsZero() {
		tol = decimal.NewFromFloat(0.01)
	}
	tolFloat, _ := tol.Float64()
	if tolFloat <= 0 {
		tolFloat = 0.01
	}

	deltaAmount, _ := l.Amount.Sub(r.Amount).Abs().Float64()
	amountPenalty := minFloat(deltaAmount/maxFloat(tolFloat, 0.01), 1) * 0.5

	windowDays := rules.DateWindowDays
	if windowDays < 1 {
		windowDays = 1
	}
	deltaDays := DaysBetween(l.TxnTime, r.TxnTime)
	datePenalty := minFloat(deltaDays/maxFloat(float64(windowDays), 1), 1) * 0.3

	compatBonus := opCompat(l.OpType, r.OpType)

	raw := 1 - amountPenalty - datePenalty + compatBonus
	score := clamp01(raw)

	return scoreBreakdown{
		Score:         score,
		AmountPenalty: amountPenalty,
		DatePenalty:   datePenalty,
		CompatBonus:   compatBonus,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
