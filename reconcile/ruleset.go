/*
ruleset.go - Versioned matching parameters

PURPOSE:
  A Ruleset tunes the matching engine: how close two amounts must be to
  call them equal, how many days apart two events may fall, and the
  minimum score a fuzzy candidate must clear. Exactly one ruleset is
  active at any instant; registry.Put deactivates all prior versions and
  inserts the new one atomically, mirroring the single-active-policy-
  version discipline the rest of this codebase follows for configuration.
*/
package reconcile

import (
	"time"

	"github.com/shopspring/decimal"
)

// RulesetParams is the typed payload of a Ruleset row. It is stored as
// JSON text and exposed to callers as this struct.
type RulesetParams struct {
	AmountTolerance decimal.Decimal `json:"amount_tolerance"`
	DateWindowDays  int             `json:"date_window_days"`
	ScoreThreshold  float64         `json:"score_threshold"`
}

// Validate checks the invariants from the data model: tolerance >= 0,
// window >= 1 day, threshold in [0,1].
func (p RulesetParams) Validate() error {
	if p.AmountTolerance.IsNegative() {
		return &ValidationError{Field: "amount_tolerance", Message: "must be >= 0"}
	}
	if p.DateWindowDays < 1 {
		return &ValidationError{Field: "date_window_days", Message: "must be >= 1"}
	}
	if p.ScoreThreshold < 0 || p.ScoreThreshold > 1 {
		return &ValidationError{Field: "score_threshold", Message: "must be in [0,1]"}
	}
	return nil
}

// Ruleset is one versioned snapshot of matching parameters.
type Ruleset struct {
	Version   string
	IsActive  bool
	Params    RulesetParams
	CreatedAt time.Time
}

// DefaultRulesetParams returns conservative defaults: generous enough to
// catch clock skew between the two sides without masking real
// discrepancies.
func DefaultRulesetParams() RulesetParams {
	return RulesetParams{
		AmountTolerance: decimal.NewFromFloat(0.01),
		DateWindowDays:  1,
		ScoreThreshold:  0.75,
	}
}
