package domain

// Level is a fixed reference price of the ladder. Value never changes once
// the level is created; only Status toggles during a session.
type Level struct {
	ID     int64       `json:"id"`
	Value  float64     `json:"value"`
	Status LevelStatus `json:"status"`
}

// IsDisabled reports whether the level is withheld from triggering entries.
func (l Level) IsDisabled() bool {
	return l.Status == LevelDisabledDuringSession
}
