package domain

import "time"

// Trend is one segment of the append-only trend log. The last element of the
// log is the current trend.
type Trend struct {
	ID        int64          `json:"id"`
	Direction TrendDirection `json:"direction"`
	Kind      TrendKind      `json:"kind"`
	CreatedAt time.Time      `json:"createdAt"`
}

// IsCorrection reports whether the segment is a correction segment.
func (t Trend) IsCorrection() bool {
	return t.Kind == TrendCorrection
}

// IsShort reports whether the strategy sells to open under this trend.
func (t Trend) IsShort() bool {
	return t.Direction == TrendDown
}

// OpenSide is the side that opens or averages a position under this trend.
func (t Trend) OpenSide() OrderSide {
	if t.IsShort() {
		return Sell
	}
	return Buy
}

// CloseSide is the side that closes a position under this trend.
func (t Trend) CloseSide() OrderSide {
	return t.OpenSide().Opposite()
}
