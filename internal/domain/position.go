package domain

import "time"

// Position is the single active position of the strategy. It is created by an
// opening decision, mutated by averaging and closing decisions, and terminal
// once CLOSED.
type Position struct {
	ID                    int64          `json:"id"` // durable id, 0 until persisted
	Ref                   ProvisionalID  `json:"ref"`
	OpenLevel             Level          `json:"openLevel"`
	ClosedLevel           *Level         `json:"closedLevel,omitempty"`
	Status                PositionStatus `json:"status"`
	Orders                []Order        `json:"orders"`
	AvailableOpeningRules RuleSet        `json:"availableOpeningRules"`
	ClosingRules          ClosingRuleSet `json:"closingRules"`
	ClosedByRule          *ClosingRuleID `json:"closedByRule,omitempty"`
	CreatedAt             time.Time      `json:"createdAt"`
	UpdatedAt             time.Time      `json:"updatedAt"`
}

// IsOpen checks if the position is partially or fully open.
func (p *Position) IsOpen() bool {
	return p != nil && p.Status.IsOpen()
}

// IsClosed checks if the position reached its terminal state.
func (p *Position) IsClosed() bool {
	return p != nil && p.Status == StatusClosed
}

// IsOpenPartially checks if the position may still be averaged.
func (p *Position) IsOpenPartially() bool {
	return p != nil && p.Status == StatusOpenPartial
}

// IsPersisted reports whether the durable store has assigned an id.
func (p *Position) IsPersisted() bool {
	return p != nil && p.ID != 0
}

// ClosedBy returns the closing rule or an empty id while open.
func (p *Position) ClosedBy() ClosingRuleID {
	if p == nil || p.ClosedByRule == nil {
		return ""
	}
	return *p.ClosedByRule
}

// AverageEntryPrice is the quantity weighted executed price of the opening
// and averaging orders.
func (p *Position) AverageEntryPrice() float64 {
	if p == nil || len(p.Orders) == 0 {
		return 0
	}
	openSide := p.Orders[0].Side
	var notional, qty float64
	for _, o := range p.Orders {
		if o.Side != openSide {
			continue
		}
		notional += o.ExecutedPrice * o.Quantity
		qty += o.Quantity
	}
	if qty == 0 {
		return 0
	}
	return notional / qty
}

// Clone returns a deep copy that shares no mutable memory with p.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Orders = append([]Order(nil), p.Orders...)
	if p.ClosedLevel != nil {
		lvl := *p.ClosedLevel
		cp.ClosedLevel = &lvl
	}
	if p.ClosedByRule != nil {
		rule := *p.ClosedByRule
		cp.ClosedByRule = &rule
	}
	return &cp
}
