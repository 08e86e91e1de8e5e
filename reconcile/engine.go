/*
engine.go - The multi-pass deterministic+fuzzy matching engine

PURPOSE:
  Match is a pure function over two cohorts of Txn (one per side) and a
  ruleset. It owns two local mutable working sets - leftRemaining and
  rightRemaining - seeded from the inputs and drained as passes consume
  candidates. Passes run in strict precedence order; each pass only
  considers items still present in both working sets.

PRECEDENCE (a contract, not a hint - see design notes in SPEC_FULL.md):
  1. Exact quadruple match        (rrn, amount, currency, date)
  2. ARN-keyed match with tolerance
  3. Fuzzy rrn+currency within date window, with a uniqueness gap guard
  4. One-to-many sum match (2 or 3 right rows summing to one left row)
  Terminal pass: everything left over becomes an exception.

The engine never touches the Store; the Run Orchestrator is the only
caller and is responsible for all persistence and transactional framing.
*/
package reconcile

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const uniquenessGap = 0.05

// Match runs the full pipeline over left/right and returns every match and
// exception it produced. Matches are in emission order, by pass; exceptions
// are in the order raised: pass-1 DUPLICATE exceptions first, then the
// terminal MISSING_IN_* exceptions.
func Match(left, right []Txn, rules RulesetParams) EngineOutput {
	m := &matcher{
		left:           left,
		right:          right,
		rules:          rules,
		leftRemaining:  makeSet(len(left)),
		rightRemaining: makeSet(len(right)),
	}
	m.buildIndexes()

	m.passExactQuadruple()
	m.passARNWithTolerance()
	m.passFuzzyWindow()
	m.passOneToManySum()
	m.terminal()

	return EngineOutput{Matches: m.matches, Exceptions: m.exceptions}
}

type matcher struct {
	left, right    []Txn
	rules          RulesetParams
	leftRemaining  map[int]bool
	rightRemaining map[int]bool

	exactIdx  map[quadKey][]int
	arnIdx    map[string][]int
	rrnCurIdx map[rrnCurKey][]int

	matches    []MatchResult
	exceptions []ExceptionCase
}

type quadKey struct {
	rrn, currency string
	amountCents   int64
	date          string
}

type rrnCurKey struct {
	rrn, currency string
}

func makeSet(n int) map[int]bool {
	s := make(map[int]bool, n)
	for i := 0; i < n; i++ {
		s[i] = true
	}
	return s
}

func (m *matcher) buildIndexes() {
	m.exactIdx = make(map[quadKey][]int)
	m.arnIdx = make(map[string][]int)
	m.rrnCurIdx = make(map[rrnCurKey][]int)

	for i, r := range m.right {
		qk := quadKey{rrn: r.RRN, currency: r.Currency, amountCents: roundCents(r.Amount), date: r.BusinessDate.String()}
		m.exactIdx[qk] = append(m.exactIdx[qk], i)

		rk := rrnCurKey{rrn: r.RRN, currency: r.Currency}
		m.rrnCurIdx[rk] = append(m.rrnCurIdx[rk], i)

		if r.ARN != "" {
			m.arnIdx[r.ARN] = append(m.arnIdx[r.ARN], i)
		}
	}
}

func roundCents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// remainingRight filters a candidate index slice down to what's still in
// rightRemaining, preserving order.
func (m *matcher) remainingRight(idxs []int) []int {
	var out []int
	for _, i := range idxs {
		if m.rightRemaining[i] {
			out = append(out, i)
		}
	}
	return out
}

// =============================================================================
// PASS 1 - exact quadruple
// =============================================================================

func (m *matcher) passExactQuadruple() {
	for li := 0; li < len(m.left); li++ {
		if !m.leftRemaining[li] {
			continue
		}
		l := m.left[li]
		qk := quadKey{rrn: l.RRN, currency: l.Currency, amountCents: roundCents(l.Amount), date: l.BusinessDate.String()}
		candidates := m.remainingRight(m.exactIdx[qk])

		switch len(candidates) {
		case 0:
			continue
		case 1:
			ri := candidates[0]
			m.emitMatch(li, ri, MatchMatched, 1.0, "EXACT_RRN_AMOUNT_CURR_DATE", ExplainBlob{Notes: "exact quadruple"})
			m.leftRemaining[li] = false
			m.rightRemaining[ri] = false
		default:
			m.emitException(l, SideLeft, CategoryDuplicate, SeverityHigh)
			// Deliberately NOT removed from leftRemaining: a DUPLICATE
			// exception at this stage does not consume the left row, so
			// later fuzzy passes may still match it (see design notes).
		}
	}
}

// =============================================================================
// PASS 2 - ARN-keyed with tolerance
// =============================================================================

func (m *matcher) passARNWithTolerance() {
	for li := 0; li < len(m.left); li++ {
		if !m.leftRemaining[li] {
			continue
		}
		l := m.left[li]
		if l.ARN == "" {
			continue
		}
		candidates := m.remainingRight(m.arnIdx[l.ARN])
		if len(candidates) != 1 {
			continue
		}
		ri := candidates[0]
		r := m.right[ri]

		sb := fuzzyScore(l, r, m.rules)
		if sb.Score < m.rules.ScoreThreshold {
			continue
		}

		mt := MatchPartial
		if l.Amount.Equal(r.Amount) {
			mt = MatchMatched
		}
		m.emitMatch(li, ri, mt, sb.Score, "ARN_MATCH_WITH_TOLERANCE", explainFromBreakdown(sb))
		m.leftRemaining[li] = false
		m.rightRemaining[ri] = false
	}
}

// =============================================================================
// PASS 3 - fuzzy rrn+currency within date window, uniqueness gap guard
// =============================================================================

func (m *matcher) passFuzzyWindow() {
	for li := 0; li < len(m.left); li++ {
		if !m.leftRemaining[li] {
			continue
		}
		l := m.left[li]
		rk := rrnCurKey{rrn: l.RRN, currency: l.Currency}
		candidates := m.remainingRight(m.rrnCurIdx[rk])

		type scored struct {
			ri int
			sb scoreBreakdown
		}
		var within []scored
		for _, ri := range candidates {
			r := m.right[ri]
			if DaysBetween(l.TxnTime, r.TxnTime) > float64(m.rules.DateWindowDays) {
				continue
			}
			within = append(within, scored{ri: ri, sb: fuzzyScore(l, r, m.rules)})
		}
		if len(within) == 0 {
			continue
		}
		sort.Slice(within, func(i, j int) bool { return within[i].sb.Score > within[j].sb.Score })

		top := within[0]
		second := -1.0
		if len(within) > 1 {
			second = within[1].sb.Score
		}
		if top.sb.Score < m.rules.ScoreThreshold || top.sb.Score-second <= uniquenessGap {
			continue
		}

		r := m.right[top.ri]
		mt := MatchPartial
		if l.Amount.Equal(r.Amount) {
			mt = MatchMatched
		}
		m.emitMatch(li, top.ri, mt, top.sb.Score, "FUZZY_SCORE", explainFromBreakdown(top.sb))
		m.leftRemaining[li] = false
		m.rightRemaining[top.ri] = false
	}
}

// =============================================================================
// PASS 4 - one-to-many sum
// =============================================================================

func (m *matcher) passOneToManySum() {
	for li := 0; li < len(m.left); li++ {
		if !m.leftRemaining[li] {
			continue
		}
		l := m.left[li]

		var candidates []int
		for ri := range m.rightRemaining {
			if !m.rightRemaining[ri] {
				continue
			}
			r := m.right[ri]
			if r.RRN == l.RRN && r.Currency == l.Currency && r.MerchantID == l.MerchantID {
				candidates = append(candidates, ri)
			}
		}
		sort.Ints(candidates)
		if len(candidates) < 2 {
			continue
		}

		if combo := m.findSummingCombo(candidates, l, 2); combo != nil {
			m.emitSumMatch(li, combo)
			continue
		}
		if combo := m.findSummingCombo(candidates, l, 3); combo != nil {
			m.emitSumMatch(li, combo)
		}
	}
}

// findSummingCombo enumerates r-combinations of candidates and returns the
// first whose amounts sum within tolerance of l.Amount, or nil.
func (m *matcher) findSummingCombo(candidates []int, l Txn, r int) []int {
	if len(candidates) < r {
		return nil
	}
	combo := make([]int, r)
	var result []int

	var recurse func(start, depth int)
	recurse = func(start, depth int) {
		if result != nil {
			return
		}
		if depth == r {
			sum := m.right[combo[0]].Amount
			for k := 1; k < r; k++ {
				sum = sum.Add(m.right[combo[k]].Amount)
			}
			if amountClose(sum, l.Amount, m.rules.AmountTolerance) {
				result = append([]int(nil), combo...)
			}
			return
		}
		for i := start; i < len(candidates); i++ {
			combo[depth] = candidates[i]
			recurse(i+1, depth+1)
			if result != nil {
				return
			}
		}
	}
	recurse(0, 0)
	return result
}

func (m *matcher) emitSumMatch(li int, combo []int) {
	ids := make([]string, len(combo))
	for k, ri := range combo {
		ids[k] = string(m.right[ri].ID)
	}
	for _, ri := range combo {
		m.emitMatch(li, ri, MatchPartial, 0.8, "ONE_TO_MANY_SUM_MATCH", ExplainBlob{
			ComboSize:   len(combo),
			ComboTxnIDs: ids,
		})
		m.rightRemaining[ri] = false
	}
	m.leftRemaining[li] = false
}

// =============================================================================
// TERMINAL PASS - everything left over becomes an exception
// =============================================================================

func (m *matcher) terminal() {
	for li := 0; li < len(m.left); li++ {
		if m.leftRemaining[li] {
			m.emitException(m.left[li], SideLeft, CategoryMissingInRight, SeverityMedium)
		}
	}
	for ri := 0; ri < len(m.right); ri++ {
		if m.rightRemaining[ri] {
			m.emitException(m.right[ri], SideRight, CategoryMissingInLeft, SeverityMedium)
		}
	}
}

// =============================================================================
// EMISSION HELPERS
// =============================================================================

func (m *matcher) emitMatch(li, ri int, mt MatchType, score float64, reason string, explain ExplainBlob) {
	l, r := m.left[li], m.right[ri]
	m.matches = append(m.matches, MatchResult{
		ID:         uuid.New().String(),
		LeftTxnID:  l.ID,
		RightTxnID: r.ID,
		MatchType:  mt,
		Score:      score,
		ReasonCode: reason,
		Explain:    explain,
	})
}

func (m *matcher) emitException(txn Txn, side Side, category ExceptionCategory, severity Severity) {
	m.exceptions = append(m.exceptions, ExceptionCase{
		ID:           uuid.New().String(),
		BusinessDate: txn.BusinessDate,
		Category:     category,
		Severity:     severity,
		Status:       CaseNew,
		PrimaryTxnID: txn.ID,
		PrimarySide:  side,
	})
}

func explainFromBreakdown(sb scoreBreakdown) ExplainBlob {
	return ExplainBlob{
		AmountPenalty: sb.AmountPenalty,
		DatePenalty:   sb.DatePenalty,
		CompatBonus:   sb.CompatBonus,
	}
}
