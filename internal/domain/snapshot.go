package domain

import "time"

// Snapshot is a read-only projection of the engine state handed to readers.
// Every field is a copy; mutating it has no effect on the engine.
type Snapshot struct {
	Levels    []Level   `json:"levels"`
	Trends    []Trend   `json:"trends"`
	Position  *Position `json:"position,omitempty"`
	Disabled  bool      `json:"disabled"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy that shares no memory with s.
func (s Snapshot) Clone() Snapshot {
	cp := s
	cp.Levels = append([]Level(nil), s.Levels...)
	cp.Trends = append([]Trend(nil), s.Trends...)
	cp.Position = s.Position.Clone()
	return cp
}
