package ports

import (
	"context"
	"time"

	"levelBot/internal/domain"
)

// StateStore receives the read-side projection. It gets exactly one call per
// committed decision and never feeds anything back into the engine.
type StateStore interface {
	// Init replaces the whole projection, used at startup and on session reset.
	Init(ctx context.Context, snap domain.Snapshot) error
	// Add announces a newly opened position.
	Add(ctx context.Context, snap domain.Snapshot) error
	// Edit announces a change to the active position, levels, trends or switches.
	Edit(ctx context.Context, snap domain.Snapshot) error
}

// Notifier sends human readable alerts. Send must not block the caller.
type Notifier interface {
	Send(ctx context.Context, message string)
}

// SessionClock decides whether a moment is inside the trading window.
type SessionClock interface {
	InSession(t time.Time) bool
}
