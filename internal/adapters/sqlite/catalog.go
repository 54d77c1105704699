package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"levelBot/internal/domain"
	"levelBot/internal/ports"
)

const settingDisabled = "disabled"

// --- LevelRepository Implementation ---

// ListLevels returns every stored level ordered by value. Status is session
// state, so all levels come back enabled.
func (r *Repository) ListLevels(ctx context.Context) ([]domain.Level, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, value FROM levels ORDER BY value ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query levels: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	levels := make([]domain.Level, 0)
	for rows.Next() {
		l := domain.Level{Status: domain.LevelEnabled}
		if err := rows.Scan(&l.ID, &l.Value); err != nil {
			return nil, fmt.Errorf("failed to scan level: %w", err)
		}
		levels = append(levels, l)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating level rows: %w", err)
	}
	return levels, nil
}

// CreateLevel stores a level value. Storing a value twice returns the id of
// the existing row.
func (r *Repository) CreateLevel(ctx context.Context, value float64) (int64, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO levels (value, created_at) VALUES (?, ?) ON CONFLICT(value) DO NOTHING`,
		value, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert level %.8f: %w: %w", value, ports.ErrQueryFailed, err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, `SELECT id FROM levels WHERE value = ?`, value).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read back level %.8f: %w", value, err)
	}
	r.logger.Debug(ctx, "Level stored", map[string]interface{}{"levelID": id, "value": value})
	return id, nil
}

// --- TrendRepository Implementation ---

// ListTrends returns the trend log in insertion order; the last element is
// the current trend.
func (r *Repository) ListTrends(ctx context.Context) ([]domain.Trend, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, direction, kind, created_at FROM trends ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trends: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trends := make([]domain.Trend, 0)
	for rows.Next() {
		var (
			t               domain.Trend
			direction, kind string
		)
		if err := rows.Scan(&t.ID, &direction, &kind, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trend: %w", err)
		}
		t.Direction = domain.TrendDirection(direction)
		t.Kind = domain.TrendKind(kind)
		trends = append(trends, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trend rows: %w", err)
	}
	return trends, nil
}

// CreateTrend appends a trend segment and returns its assigned ID.
func (r *Repository) CreateTrend(ctx context.Context, trend *domain.Trend) (int64, error) {
	createdAt := trend.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO trends (direction, kind, created_at) VALUES (?, ?, ?)`,
		string(trend.Direction), string(trend.Kind), createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trend: %w: %w", ports.ErrQueryFailed, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trend: %w", err)
	}
	r.logger.Debug(ctx, "Trend appended", map[string]interface{}{"trendID": id, "direction": trend.Direction, "kind": trend.Kind})
	return id, nil
}

// --- LogRepository Implementation ---

// CreateLog appends an operator log entry.
func (r *Repository) CreateLog(ctx context.Context, message string, kind domain.LogKind) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO logs (kind, message, created_at) VALUES (?, ?, ?)`,
		string(kind), message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert log entry: %w: %w", ports.ErrQueryFailed, err)
	}
	return nil
}

// LogEntry is one row of the operator log.
type LogEntry struct {
	ID        int64
	Kind      domain.LogKind
	Message   string
	CreatedAt time.Time
}

// RecentLogs returns up to limit log entries, most recent first.
func (r *Repository) RecentLogs(ctx context.Context, limit int) ([]LogEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, message, created_at FROM logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	entries := make([]LogEntry, 0)
	for rows.Next() {
		var (
			e    LogEntry
			kind string
		)
		if err := rows.Scan(&e.ID, &kind, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Kind = domain.LogKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- SettingsRepository Implementation ---

// IsDisabled reports whether the engine was switched off. A missing setting
// means enabled.
func (r *Repository) IsDisabled(ctx context.Context) (bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, settingDisabled).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read disabled flag: %w: %w", ports.ErrQueryFailed, err)
	}
	return value == "true", nil
}

// SetDisabled stores the engine switch.
func (r *Repository) SetDisabled(ctx context.Context, disabled bool) error {
	value := "false"
	if disabled {
		value = "true"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		settingDisabled, value)
	if err != nil {
		return fmt.Errorf("failed to store disabled flag: %w: %w", ports.ErrUpdateFailed, err)
	}
	r.logger.Info(ctx, "Engine switch stored", map[string]interface{}{"disabled": disabled})
	return nil
}
