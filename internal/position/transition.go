// Package position implements the position lifecycle as pure transitions over
// value snapshots. A transition is computed before the order is placed and
// completed with the fill once the order placer confirms it.
package position

import (
	"errors"
	"time"

	"levelBot/internal/domain"
	"levelBot/internal/ladder"
	"levelBot/internal/rules"
)

var (
	ErrAlreadyOpen   = errors.New("position is already open")
	ErrNotOpen       = errors.New("no open position")
	ErrAlreadyClosed = errors.New("position is closed")
	ErrNotPartial    = errors.New("position is fully open and cannot be averaged")
	ErrRuleConsumed  = errors.New("opening rule already used by this position")
	ErrRuleDisabled  = errors.New("closing rule is not enabled for this position")
	ErrMissingLevel  = errors.New("take profit close needs a level")
)

// Kind names the transition.
type Kind string

const (
	KindOpen    Kind = "open"
	KindAverage Kind = "average"
	KindClose   Kind = "close"
)

// Transition is a prepared state change. After holds the position as it will
// be once the order is filled, without that order; Levels is the ladder with
// the transition's side effects applied.
type Transition struct {
	Kind   Kind
	Before *domain.Position
	After  *domain.Position
	Levels []domain.Level
	Rule   string
	Side   domain.OrderSide
}

// Complete returns the final position with the executed order appended.
func (t Transition) Complete(placed *domain.PlacedOrder) *domain.Position {
	pos := t.After.Clone()
	executedAt := placed.ExecutedAt
	if executedAt.IsZero() {
		executedAt = pos.UpdatedAt
	}
	pos.Orders = append(pos.Orders, domain.Order{
		Ref:             domain.NewProvisionalID(),
		PositionID:      pos.ID,
		ExchangeOrderID: placed.ExchangeOrderID,
		Rule:            t.Rule,
		Side:            placed.Side,
		Quantity:        placed.Quantity,
		ExecutedPrice:   placed.ExecutedPrice,
		CreatedAt:       executedAt,
	})
	return pos
}

// Open starts a new position on level with the given opening rule. prev is the
// last known position and must be absent or closed.
func Open(prev *domain.Position, levels []domain.Level, level domain.Level, rule domain.RuleID, side domain.OrderSide, closing domain.ClosingRuleSet, now time.Time) (Transition, error) {
	if prev.IsOpen() {
		return Transition{}, ErrAlreadyOpen
	}
	available := domain.NewRuleSet(domain.AllOpeningRules...).Without(rule)
	after := &domain.Position{
		Ref:                   domain.NewProvisionalID(),
		OpenLevel:             level,
		Status:                domain.StatusOpenPartial,
		AvailableOpeningRules: available,
		ClosingRules:          closing,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	return Transition{
		Kind:   KindOpen,
		Before: prev.Clone(),
		After:  after,
		Levels: append([]domain.Level(nil), levels...),
		Rule:   string(rule),
		Side:   side,
	}, nil
}

// Average adds to a partially open position using a not yet consumed rule.
// When the rule set empties the position becomes OPEN_FULL and its open level
// is disabled for the rest of the session.
func Average(pos *domain.Position, levels []domain.Level, rule domain.RuleID, side domain.OrderSide, now time.Time) (Transition, error) {
	switch {
	case pos == nil:
		return Transition{}, ErrNotOpen
	case pos.IsClosed():
		return Transition{}, ErrAlreadyClosed
	case !pos.IsOpenPartially():
		return Transition{}, ErrNotPartial
	case !pos.AvailableOpeningRules.Has(rule):
		return Transition{}, ErrRuleConsumed
	}

	after := pos.Clone()
	after.AvailableOpeningRules = pos.AvailableOpeningRules.Without(rule)
	after.Status = rules.NextPositionStatus(after.AvailableOpeningRules)
	after.UpdatedAt = now

	nextLevels := append([]domain.Level(nil), levels...)
	if after.Status == domain.StatusOpenFull {
		after.OpenLevel.Status = domain.LevelDisabledDuringSession
		nextLevels = ladder.WithStatus(levels, pos.OpenLevel.ID, domain.LevelDisabledDuringSession)
	}

	return Transition{
		Kind:   KindAverage,
		Before: pos.Clone(),
		After:  after,
		Levels: nextLevels,
		Rule:   string(rule),
		Side:   side,
	}, nil
}

// Close ends an open position. candidate is the level price just crossed and
// is only used by take-profit closes.
//
// Level side effects by rule:
//   - TAKE_PROFIT: candidate becomes the closed level and is disabled
//   - TRAIL_50PERCENT: the open level becomes the closed level and is disabled
//   - TRAIL_3TICKS, HARD_STOP_LOSS: the open level is enabled again
//   - MARKET_PHASE_END: none, the session reset enables every level
func Close(pos *domain.Position, levels []domain.Level, rule domain.ClosingRuleID, candidate *domain.Level, side domain.OrderSide, now time.Time) (Transition, error) {
	switch {
	case pos == nil:
		return Transition{}, ErrNotOpen
	case pos.IsClosed():
		return Transition{}, ErrAlreadyClosed
	case rule != domain.CloseMarketPhaseEnd && !pos.ClosingRules.Has(rule):
		return Transition{}, ErrRuleDisabled
	case rule == domain.CloseTakeProfit && candidate == nil:
		return Transition{}, ErrMissingLevel
	}

	after := pos.Clone()
	after.Status = domain.StatusClosed
	after.ClosedByRule = &rule
	after.ClosingRules = pos.ClosingRules.Without(rule)
	after.UpdatedAt = now

	nextLevels := append([]domain.Level(nil), levels...)
	switch rule {
	case domain.CloseTakeProfit:
		closed := *candidate
		closed.Status = domain.LevelDisabledDuringSession
		after.ClosedLevel = &closed
		nextLevels = ladder.WithStatus(levels, candidate.ID, domain.LevelDisabledDuringSession)
	case domain.CloseTrail50Percent:
		closed := pos.OpenLevel
		closed.Status = domain.LevelDisabledDuringSession
		after.OpenLevel.Status = domain.LevelDisabledDuringSession
		after.ClosedLevel = &closed
		nextLevels = ladder.WithStatus(levels, pos.OpenLevel.ID, domain.LevelDisabledDuringSession)
	case domain.CloseTrail3Ticks, domain.CloseHardStopLoss:
		after.ClosedLevel = nil
		after.OpenLevel.Status = domain.LevelEnabled
		nextLevels = ladder.WithStatus(levels, pos.OpenLevel.ID, domain.LevelEnabled)
	case domain.CloseMarketPhaseEnd:
		after.ClosedLevel = nil
	}

	return Transition{
		Kind:   KindClose,
		Before: pos.Clone(),
		After:  after,
		Levels: nextLevels,
		Rule:   string(rule),
		Side:   side,
	}, nil
}
