package engine

import (
	"time"

	"levelBot/internal/domain"
	"levelBot/internal/ladder"
)

// State is the strategy state owned by the Engine. Only the committed path
// mutates it; readers get copies through Snapshot.
type State struct {
	Levels   []domain.Level
	Trends   []domain.Trend
	Position *domain.Position   // last position of the session, open or closed
	History  []*domain.Position // closed positions of the session, oldest first
	Disabled bool
}

// InitialState is what the engine starts from after a restart.
type InitialState struct {
	Levels []domain.Level
	Trends []domain.Trend
	// Positions as returned by the store, most recent first.
	Positions []*domain.Position
	Disabled  bool
}

func newState(init InitialState) *State {
	s := &State{
		Levels:   ladder.Sorted(init.Levels),
		Trends:   append([]domain.Trend(nil), init.Trends...),
		Disabled: init.Disabled,
	}
	for i := len(init.Positions) - 1; i >= 0; i-- {
		p := init.Positions[i].Clone()
		if p == nil {
			continue
		}
		if p.IsClosed() {
			s.History = append(s.History, p)
		}
		s.Position = p
	}
	if s.Position.IsOpen() && s.Position.Status == domain.StatusOpenFull {
		s.Levels = ladder.WithStatus(s.Levels, s.Position.OpenLevel.ID, domain.LevelDisabledDuringSession)
	}
	return s
}

// snapshot returns a deep copy of the state.
func (s *State) snapshot(now time.Time) domain.Snapshot {
	return domain.Snapshot{
		Levels:    append([]domain.Level(nil), s.Levels...),
		Trends:    append([]domain.Trend(nil), s.Trends...),
		Position:  s.Position.Clone(),
		Disabled:  s.Disabled,
		UpdatedAt: now,
	}
}

// lastClosedExcept returns the most recently closed position of the session
// other than the one identified by ref.
func (s *State) lastClosedExcept(ref domain.ProvisionalID) *domain.Position {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Ref != ref {
			return s.History[i]
		}
	}
	return nil
}

// resetSession drops the positions of the finished session and enables every
// level again. It reports whether anything changed.
func (s *State) resetSession() bool {
	changed := s.Position != nil || len(s.History) > 0
	for _, l := range s.Levels {
		if l.IsDisabled() {
			changed = true
			break
		}
	}
	s.Position = nil
	s.History = nil
	s.Levels = ladder.EnableAll(s.Levels)
	return changed
}

// reconcile replaces provisional references with the durable ids assigned by
// the store.
func (s *State) reconcile(ref domain.ProvisionalID, positionID int64, orderIDs map[domain.ProvisionalID]int64) {
	apply := func(p *domain.Position) {
		if p == nil || p.Ref != ref {
			return
		}
		p.ID = positionID
		for i := range p.Orders {
			if id, ok := orderIDs[p.Orders[i].Ref]; ok {
				p.Orders[i].ID = id
			}
			p.Orders[i].PositionID = positionID
		}
	}
	apply(s.Position)
	for _, p := range s.History {
		apply(p)
	}
}

// Tx is one prepared decision. Begin records the state and applies the
// optimistic ladder change; Rollback restores it, Commit publishes the
// executed position.
type Tx struct {
	state    *State
	levels   []domain.Level
	position *domain.Position
	done     bool
}

// Begin starts a decision that will change the ladder to levels.
func (s *State) Begin(levels []domain.Level) *Tx {
	tx := &Tx{
		state:    s,
		levels:   s.Levels,
		position: s.Position,
	}
	s.Levels = levels
	return tx
}

// Rollback restores the state captured by Begin.
func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	tx.state.Levels = tx.levels
	tx.state.Position = tx.position
}

// Commit makes pos the active position.
func (tx *Tx) Commit(pos *domain.Position) {
	if tx.done {
		return
	}
	tx.done = true
	tx.state.Position = pos
	if pos.IsClosed() {
		tx.state.History = append(tx.state.History, pos)
	}
}
