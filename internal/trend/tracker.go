// Package trend maintains the append-only trend log that decides the trade
// direction of the strategy.
package trend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"levelBot/internal/domain"
	"levelBot/internal/ports"
)

// Polarity decides the direction of an appended correction trend relative to
// the trend it follows.
type Polarity string

const (
	PolarityOpposite Polarity = "opposite"
	PolaritySame     Polarity = "same"
)

// ParsePolarity converts a configuration string into a Polarity.
func ParsePolarity(s string) (Polarity, error) {
	switch Polarity(strings.ToLower(strings.TrimSpace(s))) {
	case PolarityOpposite, "":
		return PolarityOpposite, nil
	case PolaritySame:
		return PolaritySame, nil
	default:
		return "", fmt.Errorf("unknown correction polarity %q", s)
	}
}

// Last returns the current trend, or nil when the log is empty.
func Last(trends []domain.Trend) *domain.Trend {
	if len(trends) == 0 {
		return nil
	}
	t := trends[len(trends)-1]
	return &t
}

// Tracker appends correction trends to the durable log.
type Tracker struct {
	repo     ports.TrendRepository
	polarity Polarity
}

// NewTracker creates a tracker writing to repo.
func NewTracker(repo ports.TrendRepository, polarity Polarity) *Tracker {
	if polarity == "" {
		polarity = PolarityOpposite
	}
	return &Tracker{repo: repo, polarity: polarity}
}

// Correction builds the correction segment that follows after.
func (t *Tracker) Correction(after domain.Trend, now time.Time) domain.Trend {
	dir := after.Direction
	if t.polarity == PolarityOpposite {
		dir = dir.Opposite()
	}
	return domain.Trend{Direction: dir, Kind: domain.TrendCorrection, CreatedAt: now}
}

// AppendCorrection persists a correction trend following after and returns the
// extended log. It is a no-op returning appended=false when the current trend
// already is a correction.
func (t *Tracker) AppendCorrection(ctx context.Context, trends []domain.Trend, after domain.Trend, now time.Time) (out []domain.Trend, appended bool, err error) {
	if cur := Last(trends); cur != nil && cur.IsCorrection() {
		return trends, false, nil
	}
	next := t.Correction(after, now)
	id, err := t.repo.CreateTrend(ctx, &next)
	if err != nil {
		return trends, false, fmt.Errorf("append correction trend: %w", err)
	}
	next.ID = id
	out = append(append([]domain.Trend(nil), trends...), next)
	return out, true, nil
}
