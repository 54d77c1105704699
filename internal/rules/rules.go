// Package rules contains the pure decision functions of the strategy: which
// opening rule a price move maps to and whether a closing rule fires.
package rules

import (
	"errors"

	"levelBot/internal/domain"
	"levelBot/internal/ladder"
)

// Params holds the numeric thresholds of the strategy. All distances are in
// quote price units.
type Params struct {
	TickSize           float64
	FirstTouchDistance float64 // max move past a level that counts as a first touch
	MidRetraceDistance float64
	TakeProfitDistance float64 // min level distance from the open level for a take-profit
	TrailArmDistance   float64 // progress that replaces the 3-tick trail with the 50% trail
	Trail50Distance    float64
	Trail3Ticks        int
	StopLossDistance   float64
}

// DefaultParams is tuned for a ladder with 5.0 spacing and 0.1 ticks.
func DefaultParams() Params {
	return Params{
		TickSize:           0.1,
		FirstTouchDistance: 2,
		MidRetraceDistance: 3.5,
		TakeProfitDistance: 10,
		TrailArmDistance:   2.5,
		Trail50Distance:    1.25,
		Trail3Ticks:        3,
		StopLossDistance:   5,
	}
}

// Validate checks that the thresholds are usable.
func (p Params) Validate() error {
	var errs []error
	if p.TickSize <= 0 {
		errs = append(errs, errors.New("tick size must be positive"))
	}
	if p.Trail3Ticks <= 0 {
		errs = append(errs, errors.New("trail ticks must be positive"))
	}
	if p.FirstTouchDistance < 0 || p.MidRetraceDistance < p.FirstTouchDistance {
		errs = append(errs, errors.New("opening distances must satisfy 0 <= first touch <= mid retrace"))
	}
	if p.TakeProfitDistance <= 0 {
		errs = append(errs, errors.New("take profit distance must be positive"))
	}
	if p.TrailArmDistance <= 0 || p.Trail50Distance < 0 || p.Trail50Distance >= p.TrailArmDistance {
		errs = append(errs, errors.New("trail distances must satisfy 0 <= trail 50% < trail arm"))
	}
	if p.StopLossDistance <= 0 {
		errs = append(errs, errors.New("stop loss distance must be positive"))
	}
	return errors.Join(errs...)
}

// Evaluator applies Params to the strategy state. It holds no state of its own.
type Evaluator struct {
	p Params
}

// NewEvaluator creates an evaluator for the given thresholds.
func NewEvaluator(p Params) *Evaluator {
	return &Evaluator{p: p}
}

// Params returns the configured thresholds.
func (e *Evaluator) Params() Params { return e.p }

// NextOpeningRule maps how far price has moved past the level in the trade
// direction to an opening rule. Every input maps to a rule.
func (e *Evaluator) NextOpeningRule(price, levelValue float64, side domain.OrderSide) domain.RuleID {
	d := ladder.Favorable(price, levelValue, side == domain.Sell)
	switch {
	case d <= e.p.FirstTouchDistance:
		return domain.RuleFirstTouch
	case d <= e.p.MidRetraceDistance:
		return domain.RuleMidRetrace
	default:
		return domain.RuleDeepRetrace
	}
}

// IsOpeningRuleAvailable reports whether rule may be used. Without an open
// position every rule is available.
func IsOpeningRuleAvailable(rule domain.RuleID, pos *domain.Position) bool {
	if !pos.IsOpen() {
		return true
	}
	return pos.AvailableOpeningRules.Has(rule)
}

// IsTakeProfit reports whether the level price just crossed lies on the profit
// side of the open level by at least the take-profit distance.
func (e *Evaluator) IsTakeProfit(candidate *domain.Level, openLevel domain.Level, isShort bool) bool {
	if candidate == nil {
		return false
	}
	return ladder.Favorable(candidate.Value, openLevel.Value, isShort) >= e.p.TakeProfitDistance-epsilon
}

// ManageClosingRules prunes the rules whose trigger is out of range at the
// given distance. Pruned rules are never added back.
func (e *Evaluator) ManageClosingRules(distance float64, rules domain.ClosingRuleSet) domain.ClosingRuleSet {
	if rules.Has(domain.CloseTrail3Ticks) && distance >= e.p.TrailArmDistance {
		return rules.Without(domain.CloseTrail3Ticks)
	}
	return rules
}

// IsTrail50Percent fires once the position has been armed by enough progress
// and then gave back at least half of it.
func (e *Evaluator) IsTrail50Percent(rules domain.ClosingRuleSet, distance float64) bool {
	if !rules.Has(domain.CloseTrail50Percent) || rules.Has(domain.CloseTrail3Ticks) {
		return false
	}
	return distance <= e.p.Trail50Distance
}

// IsTrail3Ticks fires when price moved against the position past the open
// level by the configured number of ticks.
func (e *Evaluator) IsTrail3Ticks(rules domain.ClosingRuleSet, openLevel domain.Level, price float64, isShort bool) bool {
	if !CanCloseByTrail3Ticks(rules) {
		return false
	}
	adverse := -ladder.Favorable(price, openLevel.Value, isShort)
	return adverse >= float64(e.p.Trail3Ticks)*e.p.TickSize-epsilon
}

// CanCloseByTrail3Ticks reports whether the 3-tick trail still guards the
// position. While it does, the position is not averaged.
func CanCloseByTrail3Ticks(rules domain.ClosingRuleSet) bool {
	return rules.Has(domain.CloseTrail3Ticks)
}

// IsHardStopLoss fires when price is below the reference level and the loss
// measured from the open level reached the stop distance.
func (e *Evaluator) IsHardStopLoss(rules domain.ClosingRuleSet, profit, distance float64) bool {
	if !rules.Has(domain.CloseHardStopLoss) {
		return false
	}
	return distance < 0 && profit <= -e.p.StopLossDistance+epsilon
}

// NextPositionStatus is OPEN_FULL once every opening rule is consumed.
func NextPositionStatus(available domain.RuleSet) domain.PositionStatus {
	if available.Empty() {
		return domain.StatusOpenFull
	}
	return domain.StatusOpenPartial
}

// CloseInput is the market picture a closing decision is evaluated against.
type CloseInput struct {
	Position  *domain.Position
	Candidate *domain.Level // level price just crossed, may be nil
	Price     float64
	Distance  float64
	IsShort   bool
}

// CloseDecision names the rule that fired and the level data the close carries.
type CloseDecision struct {
	Rule        domain.ClosingRuleID
	ClosedLevel *domain.Level
}

// EvaluateClose checks the closing rules in the fixed order take-profit,
// 50% trail, 3-tick trail, hard stop-loss and returns the first that fires.
func (e *Evaluator) EvaluateClose(in CloseInput) (CloseDecision, bool) {
	pos := in.Position
	if !pos.IsOpen() {
		return CloseDecision{}, false
	}
	if pos.ClosingRules.Has(domain.CloseTakeProfit) && e.IsTakeProfit(in.Candidate, pos.OpenLevel, in.IsShort) {
		lvl := *in.Candidate
		return CloseDecision{Rule: domain.CloseTakeProfit, ClosedLevel: &lvl}, true
	}
	if e.IsTrail50Percent(pos.ClosingRules, in.Distance) {
		lvl := pos.OpenLevel
		return CloseDecision{Rule: domain.CloseTrail50Percent, ClosedLevel: &lvl}, true
	}
	if e.IsTrail3Ticks(pos.ClosingRules, pos.OpenLevel, in.Price, in.IsShort) {
		return CloseDecision{Rule: domain.CloseTrail3Ticks}, true
	}
	// fill slippage does not move the stop
	profit := ladder.Favorable(in.Price, pos.OpenLevel.Value, in.IsShort)
	if e.IsHardStopLoss(pos.ClosingRules, profit, in.Distance) {
		return CloseDecision{Rule: domain.CloseHardStopLoss}, true
	}
	return CloseDecision{}, false
}

// float comparisons on prices like 104.7 - 105 need a little slack
const epsilon = 1e-9
