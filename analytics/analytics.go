/*
Package analytics reports source-balance readiness and per-run match
statistics: per-side record and ingest-file counts, a skew ratio
flagging lopsided cohorts before a run, and aggregate match/exception
counts once one has finished.
*/
package analytics

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/reconcile-engine/reconcile"
	"github.com/warp/reconcile-engine/store/sqlite"
)

const (
	skewWarnLow  = 0.3
	skewWarnHigh = 3.0
)

// SourceBalance reports how many rows each side has ingested for a date.
type SourceBalance struct {
	BusinessDate     reconcile.BusinessDate
	LeftTxnCount     int
	RightTxnCount    int
	LeftFileCount    int
	RightFileCount   int
	ReadyForMatching bool
	SkewWarning      bool
}

// Stats reports on the latest run for a business date.
type Stats struct {
	RunID              string
	BusinessDate       reconcile.BusinessDate
	TotalLeft          int
	TotalRight         int
	MatchedUniqueLeft  int
	PartialCount       int
	OpenExceptionCount int
	MeanAgingDays      float64
	Variance           decimal.Decimal
	MatchRatePct       float64
}

// Service computes balance and match statistics over a store.
type Service struct {
	store *sqlite.Store
}

// NewService builds a Service.
func NewService(store *sqlite.Store) *Service {
	return &Service{store: store}
}

// SourceBalance counts ingested rows per side for a business date.
func (s *Service) SourceBalance(ctx context.Context, date reconcile.BusinessDate) (*SourceBalance, error) {
	left, err := s.store.TxnsByDateSide(ctx, date, reconcile.SideLeft)
	if err != nil {
		return nil, err
	}
	right, err := s.store.TxnsByDateSide(ctx, date, reconcile.SideRight)
	if err != nil {
		return nil, err
	}
	leftFiles, err := s.store.CountIngestFiles(ctx, reconcile.SideLeft, date)
	if err != nil {
		return nil, err
	}
	rightFiles, err := s.store.CountIngestFiles(ctx, reconcile.SideRight, date)
	if err != nil {
		return nil, err
	}

	balance := &SourceBalance{
		BusinessDate: date, LeftTxnCount: len(left), RightTxnCount: len(right),
		LeftFileCount: leftFiles, RightFileCount: rightFiles,
		ReadyForMatching: len(left) > 0 && len(right) > 0,
	}
	if len(left) > 0 && len(right) > 0 {
		ratio := float64(len(left)) / float64(len(right))
		balance.SkewWarning = ratio < skewWarnLow || ratio > skewWarnHigh
	}
	return balance, nil
}

// Analytics computes statistics for the latest run on a business date.
func (s *Service) Analytics(ctx context.Context, date reconcile.BusinessDate) (*Stats, error) {
	runs, err := s.store.RunsByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, &reconcile.NotFoundError{Kind: "match_run", ID: date.String()}
	}
	run := runs[0] // RunsByDate orders started_at DESC

	left, err := s.store.TxnsByDateSide(ctx, date, reconcile.SideLeft)
	if err != nil {
		return nil, err
	}
	right, err := s.store.TxnsByDateSide(ctx, date, reconcile.SideRight)
	if err != nil {
		return nil, err
	}
	results, err := s.store.ResultsByRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	exceptions, err := s.store.ExceptionsByDate(ctx, date, "")
	if err != nil {
		return nil, err
	}

	stats := &Stats{RunID: run.ID, BusinessDate: date, TotalLeft: len(left), TotalRight: len(right)}

	matchedLeft := make(map[reconcile.TxnID]bool)
	variance := decimal.Zero
	for _, m := range results {
		switch m.MatchType {
		case reconcile.MatchMatched:
			matchedLeft[m.LeftTxnID] = true
		case reconcile.MatchPartial:
			stats.PartialCount++
			matchedLeft[m.LeftTxnID] = true
		}
	}
	stats.MatchedUniqueLeft = len(matchedLeft)

	leftByID := make(map[reconcile.TxnID]reconcile.Txn, len(left))
	for _, t := range left {
		leftByID[t.ID] = t
	}
	rightByID := make(map[reconcile.TxnID]reconcile.Txn, len(right))
	for _, t := range right {
		rightByID[t.ID] = t
	}
	for _, m := range results {
		if m.RightTxnID == "" {
			continue
		}
		l, okL := leftByID[m.LeftTxnID]
		r, okR := rightByID[m.RightTxnID]
		if okL && okR {
			variance = variance.Add(l.Amount.Sub(r.Amount).Abs())
		}
	}
	stats.Variance = variance

	var agingTotal, openCount int
	for _, e := range exceptions {
		if e.RunID != run.ID {
			continue
		}
		if e.Status != reconcile.CaseClosed {
			openCount++
			agingTotal += e.AgingDays
		}
	}
	stats.OpenExceptionCount = openCount
	if openCount > 0 {
		stats.MeanAgingDays = float64(agingTotal) / float64(openCount)
	}

	if stats.TotalLeft > 0 {
		stats.MatchRatePct = float64(stats.MatchedUniqueLeft) / float64(stats.TotalLeft) * 100
	}
	return stats, nil
}
