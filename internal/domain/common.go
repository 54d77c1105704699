package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite returns the other side of the book.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// TrendDirection is the prevailing direction assumption of a trend segment.
type TrendDirection string

const (
	TrendUp   TrendDirection = "UP"
	TrendDown TrendDirection = "DOWN"
)

// Opposite returns the reversed direction.
func (d TrendDirection) Opposite() TrendDirection {
	if d == TrendUp {
		return TrendDown
	}
	return TrendUp
}

// TrendKind distinguishes regular segments from correction segments.
type TrendKind string

const (
	TrendNormal     TrendKind = "NORMAL"
	TrendCorrection TrendKind = "CORRECTION"
)

// LevelStatus tells whether a level may trigger entries.
type LevelStatus string

const (
	LevelEnabled               LevelStatus = "ENABLED"
	LevelDisabledDuringSession LevelStatus = "DISABLED_DURING_SESSION"
)

// PositionStatus represents the lifecycle state of a position.
type PositionStatus string

const (
	StatusOpenPartial PositionStatus = "OPEN_PARTIAL"
	StatusOpenFull    PositionStatus = "OPEN_FULL"
	StatusClosed      PositionStatus = "CLOSED"
)

// IsOpen reports whether the status is one of the open states.
func (s PositionStatus) IsOpen() bool {
	return s == StatusOpenPartial || s == StatusOpenFull
}

// LogKind classifies durable log entries.
type LogKind string

const (
	LogInfo  LogKind = "info"
	LogError LogKind = "error"
	LogState LogKind = "state" // committed state change
)
