package ports

import (
	"context"

	"levelBot/internal/domain"
)

// PositionRepository defines the interface for storing and retrieving positions.
type PositionRepository interface {
	// CreatePosition saves a new position and returns its assigned ID. Orders are
	// written separately through OrderRepository.
	CreatePosition(ctx context.Context, pos *domain.Position) (int64, error)
	// UpdatePosition writes status, rule sets and closing data of a stored position.
	UpdatePosition(ctx context.Context, pos *domain.Position) error
	// FindRecentPositions returns up to limit positions, most recent first, with their orders.
	FindRecentPositions(ctx context.Context, limit int) ([]*domain.Position, error)
}

// OrderRepository stores executed orders.
type OrderRepository interface {
	// CreateOrder saves an order for the given position and returns its assigned ID.
	CreateOrder(ctx context.Context, positionID int64, order *domain.Order) (int64, error)
}

// LogRepository stores the durable operator log.
type LogRepository interface {
	CreateLog(ctx context.Context, message string, kind domain.LogKind) error
}

// LevelRepository stores ladder levels. Level status is session state and is not persisted.
type LevelRepository interface {
	ListLevels(ctx context.Context) ([]domain.Level, error)
	CreateLevel(ctx context.Context, value float64) (int64, error)
}

// TrendRepository stores the append-only trend log.
type TrendRepository interface {
	ListTrends(ctx context.Context) ([]domain.Trend, error)
	CreateTrend(ctx context.Context, trend *domain.Trend) (int64, error)
}

// SettingsRepository stores engine switches that must survive restarts.
type SettingsRepository interface {
	IsDisabled(ctx context.Context) (bool, error)
	SetDisabled(ctx context.Context, disabled bool) error
}

// Store bundles every repository the engine writes to.
type Store interface {
	PositionRepository
	OrderRepository
	LogRepository
	LevelRepository
	TrendRepository
	SettingsRepository
}
