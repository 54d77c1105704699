package domain

import "time"

// Order is one executed order of a position. Orders are append-only within
// their position and never modified after creation.
type Order struct {
	ID              int64         `json:"id"` // durable id, 0 until persisted
	Ref             ProvisionalID `json:"ref"`
	PositionID      int64         `json:"positionId"`
	ExchangeOrderID string        `json:"exchangeOrderId"`
	Rule            string        `json:"rule"` // RuleID or ClosingRuleID
	Side            OrderSide     `json:"side"`
	Quantity        float64       `json:"quantity"`
	ExecutedPrice   float64       `json:"executedPrice"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// IsPersisted reports whether the durable store has assigned an id.
func (o Order) IsPersisted() bool {
	return o.ID != 0
}

// PlacedOrder is what the order placer reports back after execution.
type PlacedOrder struct {
	ExchangeOrderID string
	Side            OrderSide
	Quantity        float64
	ExecutedPrice   float64
	ExecutedAt      time.Time
}
