// Package session decides whether a moment falls inside the daily trading
// window.
package session

import (
	"fmt"
	"time"
	_ "time/tzdata" // zones must resolve in minimal containers
)

// Window is a daily trading window in a fixed location. A window whose end is
// before its start wraps past midnight. The zero Window is always open.
type Window struct {
	start, end time.Duration // offsets from midnight
	loc        *time.Location
	always     bool
}

// AlwaysOpen returns a window that never closes.
func AlwaysOpen() *Window {
	return &Window{always: true, loc: time.UTC}
}

// NewWindow parses start and end as HH:MM in the named time zone. Empty start
// and end give an always open window.
func NewWindow(start, end, tz string) (*Window, error) {
	if start == "" && end == "" {
		return AlwaysOpen(), nil
	}
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid session time zone %q: %w", tz, err)
	}
	s, err := parseClock(start)
	if err != nil {
		return nil, fmt.Errorf("invalid session start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return nil, fmt.Errorf("invalid session end: %w", err)
	}
	if s == e {
		return nil, fmt.Errorf("session start and end are both %s", start)
	}
	return &Window{start: s, end: e, loc: loc}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// InSession reports whether t is inside the window. The start is inclusive,
// the end exclusive.
func (w *Window) InSession(t time.Time) bool {
	if w == nil || w.always {
		return true
	}
	local := t.In(w.loc)
	offset := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second
	if w.start < w.end {
		return offset >= w.start && offset < w.end
	}
	return offset >= w.start || offset < w.end
}

func (w *Window) String() string {
	if w == nil || w.always {
		return "always"
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d %s",
		int(w.start.Hours()), int(w.start.Minutes())%60,
		int(w.end.Hours()), int(w.end.Minutes())%60, w.loc)
}
