/*
Package resultview collates a MatchRun's raw MatchResult/ExceptionCase
rows with their underlying transactions into one unified, filterable,
paginated stream. The unification happens in Go rather than SQL because
matched rows and exception rows don't share one row shape.
*/
package resultview

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/reconcile-engine/exceptions"
	"github.com/warp/reconcile-engine/reconcile"
	"github.com/warp/reconcile-engine/store/sqlite"
)

// Status is the unified row status shown to callers.
type Status string

const (
	StatusMatched        Status = "MATCHED"
	StatusPartial        Status = "PARTIAL"
	StatusDuplicate      Status = "DUPLICATE"
	StatusMissingInLeft  Status = "MISSING_IN_LEFT"
	StatusMissingInRight Status = "MISSING_IN_RIGHT"
	StatusMismatch       Status = "MISMATCH"
)

// Row is one unified result-view entry.
type Row struct {
	RowID       string
	Status      Status
	RRN         string
	ARN         string
	TxnTime     time.Time
	AmountLeft  *decimal.Decimal
	AmountRight *decimal.Decimal
	Delta       *decimal.Decimal
	Currency    string
	MatchScore  float64
	ReasonCode  string
	PANMasked   string
}

// Filters narrows and orders List's output.
type Filters struct {
	Status      Status
	Query       string
	Currency    string
	AmountMin   *decimal.Decimal
	AmountMax   *decimal.Decimal
	Page        int
	PageSize    int
	SortBy      string // txnTime | delta | matchScore
	SortDir     string // asc | desc
}

// Summary aggregates counts across every row of the run, independent
// of any filter, so callers always see the run's full shape alongside
// a filtered page.
type Summary struct {
	Matched        int
	UnmatchedLeft  int
	UnmatchedRight int
	Partial        int
	Duplicates     int
	AmountDelta    decimal.Decimal
}

// ListResult is the paginated response from List.
type ListResult struct {
	Run        reconcile.MatchRun
	Summary    Summary
	Items      []Row
	Page       int
	PageSize   int
	Total      int
	TotalPages int
}

// Difference describes one business field that differs between the
// left and right sides of a row.
type Difference struct {
	Field    string
	Left     string
	Right    string
	Severity reconcile.Severity
}

// RowDetail is the drill-down view for a single row.
type RowDetail struct {
	RowID       string
	Left        *reconcile.Txn
	Right       *reconcile.Txn
	Differences []Difference
	Explain     reconcile.ExplainBlob
	Candidates  []exceptions.Candidate
}

// View builds unified result rows over a store.
type View struct {
	store *sqlite.Store
}

// NewView builds a View.
func NewView(store *sqlite.Store) *View {
	return &View{store: store}
}

var (
	highFields   = map[string]bool{"rrn": true, "arn": true, "amount": true, "currency": true}
	mediumFields = map[string]bool{"txnTime": true, "statusNorm": true, "opType": true, "merchantId": true, "channelId": true}
)

func severityFor(field string) reconcile.Severity {
	if highFields[field] {
		return reconcile.SeverityHigh
	}
	if mediumFields[field] {
		return reconcile.SeverityMedium
	}
	return reconcile.SeverityLow
}

func mapMatchType(t reconcile.MatchType) Status {
	switch t {
	case reconcile.MatchMatched:
		return StatusMatched
	case reconcile.MatchPartial:
		return StatusPartial
	case reconcile.MatchDuplicateSuspect:
		return StatusDuplicate
	default:
		return StatusMismatch
	}
}

func mapExceptionCategory(c reconcile.ExceptionCategory) Status {
	switch c {
	case reconcile.CategoryMissingInLeft:
		return StatusMissingInLeft
	case reconcile.CategoryMissingInRight:
		return StatusMissingInRight
	case reconcile.CategoryDuplicate:
		return StatusDuplicate
	default:
		return StatusMismatch
	}
}

// List returns a filtered, sorted, paginated view over one run.
func (v *View) List(ctx context.Context, runID string, filters Filters) (*ListResult, error) {
	run, err := v.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	results, err := v.store.ResultsByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	allExceptions, err := v.store.ExceptionsByDate(ctx, run.BusinessDate, "")
	if err != nil {
		return nil, err
	}
	exceptions := allExceptions[:0]
	for _, e := range allExceptions {
		if e.RunID == runID {
			exceptions = append(exceptions, e)
		}
	}

	ids := make([]reconcile.TxnID, 0, len(results)*2+len(exceptions))
	for _, m := range results {
		ids = append(ids, m.LeftTxnID)
		if m.RightTxnID != "" {
			ids = append(ids, m.RightTxnID)
		}
	}
	for _, e := range exceptions {
		ids = append(ids, e.PrimaryTxnID)
	}
	txns, err := v.store.GetTxnsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[reconcile.TxnID]reconcile.Txn, len(txns))
	for _, t := range txns {
		byID[t.ID] = t
	}

	rows := make([]Row, 0, len(results)+len(exceptions))
	for _, m := range results {
		rows = append(rows, rowFromMatch(m, byID))
	}
	for _, e := range exceptions {
		rows = append(rows, rowFromException(e, byID))
	}

	summary := summarize(rows)
	filtered := applyFilters(rows, filters)

	sortBy := filters.SortBy
	if sortBy == "" {
		sortBy = "txnTime"
	}
	sortDir := filters.SortDir
	if sortDir == "" {
		sortDir = "asc"
	}
	sortRows(filtered, sortBy, sortDir)

	page := filters.Page
	if page < 1 {
		page = 1
	}
	pageSize := filters.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	total := len(filtered)
	totalPages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &ListResult{
		Run: *run, Summary: summary, Items: filtered[start:end],
		Page: page, PageSize: pageSize, Total: total, TotalPages: totalPages,
	}, nil
}

func rowFromMatch(m reconcile.MatchResult, byID map[reconcile.TxnID]reconcile.Txn) Row {
	left, hasLeft := byID[m.LeftTxnID]
	right, hasRight := byID[m.RightTxnID]
	row := Row{
		RowID: "M:" + m.ID, Status: mapMatchType(m.MatchType),
		MatchScore: m.Score, ReasonCode: m.ReasonCode,
	}
	if hasLeft {
		row.RRN, row.ARN, row.TxnTime, row.Currency, row.PANMasked = left.RRN, left.ARN, left.TxnTime, left.Currency, left.PANMasked
		amt := left.Amount
		row.AmountLeft = &amt
	}
	if hasRight && m.RightTxnID != "" {
		amt := right.Amount
		row.AmountRight = &amt
		if row.RRN == "" {
			row.RRN, row.ARN, row.TxnTime, row.Currency, row.PANMasked = right.RRN, right.ARN, right.TxnTime, right.Currency, right.PANMasked
		}
	}
	if row.AmountLeft != nil && row.AmountRight != nil {
		d := row.AmountRight.Sub(*row.AmountLeft).Round(2)
		row.Delta = &d
	}
	return row
}

func rowFromException(e reconcile.ExceptionCase, byID map[reconcile.TxnID]reconcile.Txn) Row {
	row := Row{
		RowID: "E:" + e.ID, Status: mapExceptionCategory(e.Category),
		ReasonCode: string(e.Category),
	}
	primary, ok := byID[e.PrimaryTxnID]
	if !ok {
		return row
	}
	row.RRN, row.ARN, row.TxnTime, row.Currency, row.PANMasked = primary.RRN, primary.ARN, primary.TxnTime, primary.Currency, primary.PANMasked
	amt := primary.Amount
	if e.PrimarySide == reconcile.SideLeft {
		row.AmountLeft = &amt
	} else {
		row.AmountRight = &amt
	}
	return row
}

func summarize(rows []Row) Summary {
	var s Summary
	total := decimal.Zero
	for _, r := range rows {
		switch r.Status {
		case StatusMatched:
			s.Matched++
		case StatusPartial:
			s.Partial++
		case StatusDuplicate:
			s.Duplicates++
		case StatusMissingInLeft:
			s.UnmatchedLeft++
		case StatusMissingInRight:
			s.UnmatchedRight++
		}
		if r.Delta != nil {
			total = total.Add(r.Delta.Abs())
		}
	}
	s.AmountDelta = total
	return s
}

func applyFilters(rows []Row, f Filters) []Row {
	out := make([]Row, 0, len(rows))
	q := strings.ToLower(strings.TrimSpace(f.Query))
	for _, r := range rows {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Currency != "" && !strings.EqualFold(r.Currency, f.Currency) {
			continue
		}
		if q != "" {
			hay := strings.ToLower(r.RRN + " " + r.ARN + " " + r.PANMasked)
			if !strings.Contains(hay, q) {
				continue
			}
		}
		if f.AmountMin != nil || f.AmountMax != nil {
			amt := primaryAmount(r)
			if amt == nil {
				continue
			}
			if f.AmountMin != nil && amt.LessThan(*f.AmountMin) {
				continue
			}
			if f.AmountMax != nil && amt.GreaterThan(*f.AmountMax) {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func primaryAmount(r Row) *decimal.Decimal {
	if r.AmountLeft != nil {
		return r.AmountLeft
	}
	return r.AmountRight
}

func sortRows(rows []Row, sortBy, sortDir string) {
	less := func(i, j int) bool {
		a, b := rows[i], rows[j]
		var cmp int
		switch sortBy {
		case "delta":
			cmp = compareDecimalPtr(a.Delta, b.Delta)
		case "matchScore":
			cmp = compareFloat(a.MatchScore, b.MatchScore)
		default:
			cmp = compareTime(a.TxnTime, b.TxnTime)
		}
		if cmp == 0 {
			return a.RowID > b.RowID // stable secondary sort: row_id DESC
		}
		if sortDir == "desc" {
			return cmp > 0
		}
		return cmp < 0
	}
	sort.SliceStable(rows, less)
}

func compareDecimalPtr(a, b *decimal.Decimal) int {
	av, bv := decimal.Zero, decimal.Zero
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av.Cmp(bv)
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

// Details resolves the drill-down view for one row.
func (v *View) Details(ctx context.Context, rowID string) (*RowDetail, error) {
	switch {
	case strings.HasPrefix(rowID, "M:"):
		return v.matchDetails(ctx, strings.TrimPrefix(rowID, "M:"))
	case strings.HasPrefix(rowID, "E:"):
		return v.exceptionDetails(ctx, strings.TrimPrefix(rowID, "E:"))
	default:
		return nil, &reconcile.ValidationError{Field: "rowId", Message: "must be prefixed M: or E:"}
	}
}

func (v *View) matchDetails(ctx context.Context, matchID string) (*RowDetail, error) {
	m, err := v.store.GetMatchResult(ctx, matchID)
	if err != nil {
		return nil, err
	}

	left, err := v.store.GetTxn(ctx, m.LeftTxnID)
	if err != nil {
		return nil, err
	}
	var right *reconcile.Txn
	if m.RightTxnID != "" {
		right, err = v.store.GetTxn(ctx, m.RightTxnID)
		if err != nil {
			return nil, err
		}
	}
	detail := &RowDetail{RowID: "M:" + matchID, Left: stripPANHash(left), Right: stripPANHash(right), Explain: m.Explain}
	if right != nil {
		detail.Differences = diff(left, right)
	}
	return detail, nil
}

func (v *View) exceptionDetails(ctx context.Context, caseID string) (*RowDetail, error) {
	c, err := v.store.GetExceptionCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	primary, err := v.store.GetTxn(ctx, c.PrimaryTxnID)
	if err != nil {
		return nil, err
	}
	opposite := c.PrimarySide.Opposite()
	pool, err := v.store.TxnsByDateSide(ctx, c.BusinessDate, opposite)
	if err != nil {
		return nil, err
	}

	detail := &RowDetail{RowID: "E:" + caseID, Candidates: exceptions.TopCandidates(*primary, opposite, pool, 3)}
	if c.PrimarySide == reconcile.SideLeft {
		detail.Left = stripPANHash(primary)
	} else {
		detail.Right = stripPANHash(primary)
	}
	return detail, nil
}

func stripPANHash(t *reconcile.Txn) *reconcile.Txn {
	if t == nil {
		return nil
	}
	cp := *t
	cp.PANHash = ""
	return &cp
}

func diff(left, right *reconcile.Txn) []Difference {
	var out []Difference
	add := func(field string, l, r string) {
		if l != r {
			out = append(out, Difference{Field: field, Left: l, Right: r, Severity: severityFor(field)})
		}
	}
	add("rrn", left.RRN, right.RRN)
	add("arn", left.ARN, right.ARN)
	add("amount", left.Amount.String(), right.Amount.String())
	add("currency", left.Currency, right.Currency)
	add("txnTime", left.TxnTime.Format(time.RFC3339), right.TxnTime.Format(time.RFC3339))
	add("statusNorm", left.StatusNorm, right.StatusNorm)
	add("opType", string(left.OpType), string(right.OpType))
	add("merchantId", left.MerchantID, right.MerchantID)
	add("channelId", left.ChannelID, right.ChannelID)
	add("panMasked", left.PANMasked, right.PANMasked)
	add("feeAmount", left.FeeAmount.String(), right.FeeAmount.String())
	add("feeCurrency", left.FeeCurrency, right.FeeCurrency)
	return out
}
