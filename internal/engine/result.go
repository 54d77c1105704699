package engine

import (
	"levelBot/internal/domain"
	"levelBot/internal/position"
)

// ResultKind tells how a tick ended.
type ResultKind string

const (
	NoOp           ResultKind = "noop"
	Committed      ResultKind = "committed"
	OrderFailed    ResultKind = "order_failed"
	PersistFailed  ResultKind = "persist_failed" // trade executed, durable record incomplete
	ConfigFault    ResultKind = "config_fault"
	Disabled       ResultKind = "disabled"
	OutsideSession ResultKind = "outside_session"
)

// Result is the outcome of one tick.
type Result struct {
	Kind     ResultKind
	Action   position.Kind // set when a transition was attempted
	Rule     string
	Position *domain.Position // copy of the active position after the tick
	Reason   string           // why a tick was a no-op
	Err      error
}

// Acted reports whether an order was executed on this tick.
func (r Result) Acted() bool {
	return r.Kind == Committed || r.Kind == PersistFailed
}
