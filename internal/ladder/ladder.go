// Package ladder holds the pure queries over the level ladder: the fixed,
// ordered set of price levels the strategy anchors entries and exits to.
package ladder

import (
	"sort"

	"levelBot/internal/domain"
)

// Sorted returns a copy of levels ordered by ascending value.
func Sorted(levels []domain.Level) []domain.Level {
	out := append([]domain.Level(nil), levels...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// NextLevel returns the nearest level the price has just crossed in the
// direction of travel: the highest level strictly below the price for a long
// strategy, the lowest level strictly above it for a short one. Levels must be
// sorted ascending.
func NextLevel(levels []domain.Level, price float64, isShort bool) *domain.Level {
	if isShort {
		for i := range levels {
			if levels[i].Value > price {
				lvl := levels[i]
				return &lvl
			}
		}
		return nil
	}
	for i := len(levels) - 1; i >= 0; i-- {
		if levels[i].Value < price {
			lvl := levels[i]
			return &lvl
		}
	}
	return nil
}

// IsLastLevel reports whether id is the terminal rung in the trade direction:
// the top level for a long strategy, the bottom level for a short one.
func IsLastLevel(levels []domain.Level, id int64, isShort bool) bool {
	if len(levels) == 0 {
		return false
	}
	if isShort {
		return levels[0].ID == id
	}
	return levels[len(levels)-1].ID == id
}

// DistanceToPreviousLevel measures how far the price is from the reference
// level, signed so that progress favorable to the position is positive. The
// reference is openLevel when given, otherwise closedLevel, otherwise the
// level the price has just crossed.
func DistanceToPreviousLevel(levels []domain.Level, price float64, isShort bool, openLevel, closedLevel *domain.Level) float64 {
	ref := openLevel
	if ref == nil {
		ref = closedLevel
	}
	if ref == nil {
		ref = NextLevel(levels, price, isShort)
	}
	if ref == nil {
		return 0
	}
	return Favorable(price, ref.Value, isShort)
}

// Favorable returns price-ref for a long and ref-price for a short.
func Favorable(price, ref float64, isShort bool) float64 {
	if isShort {
		return ref - price
	}
	return price - ref
}

// Find returns the level with the given id.
func Find(levels []domain.Level, id int64) (domain.Level, bool) {
	for _, l := range levels {
		if l.ID == id {
			return l, true
		}
	}
	return domain.Level{}, false
}

// WithStatus returns a copy of levels with the status of id replaced.
func WithStatus(levels []domain.Level, id int64, status domain.LevelStatus) []domain.Level {
	out := append([]domain.Level(nil), levels...)
	for i := range out {
		if out[i].ID == id {
			out[i].Status = status
		}
	}
	return out
}

// EnableAll returns a copy of levels with every level enabled, as at the
// start of a session.
func EnableAll(levels []domain.Level) []domain.Level {
	out := append([]domain.Level(nil), levels...)
	for i := range out {
		out[i].Status = domain.LevelEnabled
	}
	return out
}

// Merge adds the levels from extra that are not already in levels and returns
// the result sorted.
func Merge(levels, extra []domain.Level) []domain.Level {
	out := append([]domain.Level(nil), levels...)
	for _, l := range extra {
		if _, ok := Find(out, l.ID); !ok {
			l.Status = domain.LevelEnabled
			out = append(out, l)
		}
	}
	return Sorted(out)
}
