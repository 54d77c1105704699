package engine

import (
	"fmt"

	"levelBot/internal/domain"
	"levelBot/internal/ladder"
	"levelBot/internal/position"
)

func direction(pos *domain.Position) string {
	if isShortPosition(pos) {
		return "SHORT"
	}
	return "LONG"
}

func isShortPosition(pos *domain.Position) bool {
	return pos != nil && len(pos.Orders) > 0 && pos.Orders[0].Side == domain.Sell
}

// closeSide is the side that flattens pos.
func closeSide(pos *domain.Position) domain.OrderSide {
	if isShortPosition(pos) {
		return domain.Buy
	}
	return domain.Sell
}

func lastOrder(pos *domain.Position) domain.Order {
	if pos == nil || len(pos.Orders) == 0 {
		return domain.Order{}
	}
	return pos.Orders[len(pos.Orders)-1]
}

// openQuantity is the quantity bought (long) or sold (short) into the position.
func openQuantity(pos *domain.Position) float64 {
	if pos == nil || len(pos.Orders) == 0 {
		return 0
	}
	var qty float64
	for _, o := range pos.Orders {
		if o.Side == pos.Orders[0].Side {
			qty += o.Quantity
		}
	}
	return qty
}

func (e *Engine) decisionMessage(tr position.Transition, pos *domain.Position) string {
	o := lastOrder(pos)
	switch tr.Kind {
	case position.KindOpen:
		return fmt.Sprintf("Opened %s %s at level %.2f by %s, filled %g @ %.2f",
			direction(pos), e.cfg.Symbol, pos.OpenLevel.Value, tr.Rule, o.Quantity, o.ExecutedPrice)
	case position.KindAverage:
		return fmt.Sprintf("Averaged %s %s at level %.2f by %s, filled %g @ %.2f, now %s",
			direction(pos), e.cfg.Symbol, pos.OpenLevel.Value, tr.Rule, o.Quantity, o.ExecutedPrice, pos.Status)
	default:
		pnl := ladder.Favorable(o.ExecutedPrice, pos.AverageEntryPrice(), isShortPosition(pos)) * openQuantity(pos)
		return fmt.Sprintf("Closed %s %s opened at level %.2f by %s, filled %g @ %.2f, result %.2f",
			direction(pos), e.cfg.Symbol, pos.OpenLevel.Value, tr.Rule, o.Quantity, o.ExecutedPrice, pnl)
	}
}

func (e *Engine) orderFailedMessage(tr position.Transition, err error) string {
	return fmt.Sprintf("Order failed, %s %s %s by %s not executed: %v", tr.Kind, tr.Side, e.cfg.Symbol, tr.Rule, err)
}

func (e *Engine) persistFailedMessage(tr position.Transition, err error) string {
	return fmt.Sprintf("%s %s by %s executed but not recorded, check the store: %v", tr.Kind, e.cfg.Symbol, tr.Rule, err)
}

// lateRecordMessage is empty unless pos carries rows from an earlier decision
// that the store never confirmed.
func (e *Engine) lateRecordMessage(pos *domain.Position) string {
	if len(pos.Orders) < 2 {
		return ""
	}
	late := 0
	for _, o := range pos.Orders[:len(pos.Orders)-1] {
		if !o.IsPersisted() {
			late++
		}
	}
	if pos.IsPersisted() && late == 0 {
		return ""
	}
	return fmt.Sprintf("Recording %s position at level %.2f late: position stored %t, %d earlier order(s) not stored, check for duplicates",
		e.cfg.Symbol, pos.OpenLevel.Value, pos.IsPersisted(), late)
}

func correctionMessage(t domain.Trend) string {
	return fmt.Sprintf("Two stop losses in a row, correction trend %s started", t.Direction)
}

func disabledMessage() string {
	return "Stop loss during a correction trend, engine disabled until re-enabled by the operator"
}
