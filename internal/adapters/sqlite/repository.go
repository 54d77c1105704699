package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"levelBot/internal/domain"
	"levelBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.Store using SQLite.
type Repository struct {
	db     *sql.DB
	symbol string
	logger ports.Logger
}

var _ ports.Store = (*Repository)(nil)

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Symbol string // positions are recorded and loaded per symbol
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/levelbot.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY churn
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, symbol: cfg.Symbol, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS levels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		value REAL NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trends (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		direction TEXT NOT NULL,
		kind TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ref TEXT NOT NULL,
		symbol TEXT NOT NULL,
		open_level_id INTEGER NOT NULL,
		open_level_value REAL NOT NULL,
		closed_level_id INTEGER NULL,
		closed_level_value REAL NULL,
		status TEXT NOT NULL,
		available_rules TEXT NOT NULL,
		closing_rules TEXT NOT NULL,
		closed_by_rule TEXT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ref TEXT NOT NULL,
		position_id INTEGER NOT NULL,
		exchange_order_id TEXT NOT NULL,
		rule TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		executed_price REAL NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions (symbol, id);
	CREATE INDEX IF NOT EXISTS idx_orders_position ON orders (position_id);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection. Used by the status health check.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// --- PositionRepository Implementation ---

// CreatePosition saves a new position and returns its assigned ID.
func (r *Repository) CreatePosition(ctx context.Context, pos *domain.Position) (int64, error) {
	const query = `
	INSERT INTO positions (ref, symbol, open_level_id, open_level_value, closed_level_id, closed_level_value,
	                       status, available_rules, closing_rules, closed_by_rule, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	available, closing, err := encodeRules(pos)
	if err != nil {
		return 0, err
	}
	closedID, closedValue := closedLevelArgs(pos.ClosedLevel)

	result, err := r.db.ExecContext(ctx, query,
		pos.Ref.String(), r.symbol, pos.OpenLevel.ID, pos.OpenLevel.Value, closedID, closedValue,
		string(pos.Status), available, closing, closedByArg(pos), pos.CreatedAt, pos.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert position %s: %w: %w", pos.Ref, ports.ErrQueryFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for position %s: %w", pos.Ref, err)
	}
	r.logger.Debug(ctx, "Position created", map[string]interface{}{"positionID": id, "ref": pos.Ref.String()})
	return id, nil
}

// UpdatePosition modifies an existing position based on its ID.
func (r *Repository) UpdatePosition(ctx context.Context, pos *domain.Position) error {
	const query = `
	UPDATE positions
	SET closed_level_id = ?, closed_level_value = ?, status = ?, available_rules = ?,
	    closing_rules = ?, closed_by_rule = ?, updated_at = ?
	WHERE id = ?`

	available, closing, err := encodeRules(pos)
	if err != nil {
		return err
	}
	closedID, closedValue := closedLevelArgs(pos.ClosedLevel)

	result, err := r.db.ExecContext(ctx, query,
		closedID, closedValue, string(pos.Status), available, closing, closedByArg(pos), pos.UpdatedAt,
		pos.ID)
	if err != nil {
		return fmt.Errorf("failed to update position ID %d: %w: %w", pos.ID, ports.ErrUpdateFailed, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for update position ID %d: %w", pos.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("position ID %d not found for update: %w", pos.ID, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Position updated", map[string]interface{}{"positionID": pos.ID, "status": pos.Status})
	return nil
}

// FindRecentPositions retrieves up to limit positions of the configured
// symbol, most recent first, with their orders.
func (r *Repository) FindRecentPositions(ctx context.Context, limit int) ([]*domain.Position, error) {
	const query = `
	SELECT id, ref, open_level_id, open_level_value, closed_level_id, closed_level_value,
	       status, available_rules, closing_rules, closed_by_rule, created_at, updated_at
	FROM positions
	WHERE symbol = ?
	ORDER BY id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, r.symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent positions: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position during FindRecentPositions: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	rows.Close()

	for _, pos := range positions {
		orders, err := r.findOrders(ctx, pos.ID)
		if err != nil {
			return nil, err
		}
		pos.Orders = orders
	}
	return positions, nil
}

// FindPositionByID retrieves a position with its orders. It returns nil, nil
// if the position does not exist.
func (r *Repository) FindPositionByID(ctx context.Context, id int64) (*domain.Position, error) {
	const query = `
	SELECT id, ref, open_level_id, open_level_value, closed_level_id, closed_level_value,
	       status, available_rules, closing_rules, closed_by_rule, created_at, updated_at
	FROM positions
	WHERE id = ?`

	pos, err := scanPosition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Position not found by ID", map[string]interface{}{"positionID": id})
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query position by ID %d: %w", id, err)
	}
	if pos.Orders, err = r.findOrders(ctx, id); err != nil {
		return nil, err
	}
	return pos, nil
}

// --- OrderRepository Implementation ---

// CreateOrder saves an executed order and returns its assigned ID.
func (r *Repository) CreateOrder(ctx context.Context, positionID int64, order *domain.Order) (int64, error) {
	const query = `
	INSERT INTO orders (ref, position_id, exchange_order_id, rule, side, quantity, executed_price, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		order.Ref.String(), positionID, order.ExchangeOrderID, order.Rule, string(order.Side),
		order.Quantity, order.ExecutedPrice, order.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert order for position %d: %w: %w", positionID, ports.ErrQueryFailed, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for order: %w", err)
	}
	r.logger.Debug(ctx, "Order created", map[string]interface{}{"orderID": id, "positionID": positionID, "rule": order.Rule})
	return id, nil
}

func (r *Repository) findOrders(ctx context.Context, positionID int64) ([]domain.Order, error) {
	const query = `
	SELECT id, ref, position_id, exchange_order_id, rule, side, quantity, executed_price, created_at
	FROM orders
	WHERE position_id = ?
	ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, positionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders of position %d: %w", positionID, err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		var (
			o    domain.Order
			ref  string
			side string
		)
		if err := rows.Scan(&o.ID, &ref, &o.PositionID, &o.ExchangeOrderID, &o.Rule, &side,
			&o.Quantity, &o.ExecutedPrice, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Ref = domain.ProvisionalID(ref)
		o.Side = domain.OrderSide(side)
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	return orders, nil
}

// --- Helper Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanPosition scans a row into a domain.Position without its orders.
func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var (
		ref                string
		closedID           sql.NullInt64
		closedValue        sql.NullFloat64
		status             string
		available, closing string
		closedBy           sql.NullString
	)
	err := s.Scan(&p.ID, &ref, &p.OpenLevel.ID, &p.OpenLevel.Value, &closedID, &closedValue,
		&status, &available, &closing, &closedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	p.Ref = domain.ProvisionalID(ref)
	p.Status = domain.PositionStatus(status)
	p.OpenLevel.Status = domain.LevelEnabled
	if closedID.Valid {
		p.ClosedLevel = &domain.Level{ID: closedID.Int64, Value: closedValue.Float64, Status: domain.LevelEnabled}
	}
	if closedBy.Valid {
		rule := domain.ClosingRuleID(closedBy.String)
		p.ClosedByRule = &rule
	}
	if err := json.Unmarshal([]byte(available), &p.AvailableOpeningRules); err != nil {
		return nil, fmt.Errorf("invalid available rules of position %d: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(closing), &p.ClosingRules); err != nil {
		return nil, fmt.Errorf("invalid closing rules of position %d: %w", p.ID, err)
	}
	return p, nil
}

func encodeRules(pos *domain.Position) (available, closing string, err error) {
	a, err := json.Marshal(pos.AvailableOpeningRules)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode opening rules: %w", err)
	}
	c, err := json.Marshal(pos.ClosingRules)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode closing rules: %w", err)
	}
	return string(a), string(c), nil
}

func closedLevelArgs(l *domain.Level) (sql.NullInt64, sql.NullFloat64) {
	if l == nil {
		return sql.NullInt64{}, sql.NullFloat64{}
	}
	return sql.NullInt64{Int64: l.ID, Valid: true}, sql.NullFloat64{Float64: l.Value, Valid: true}
}

func closedByArg(pos *domain.Position) sql.NullString {
	if pos.ClosedByRule == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*pos.ClosedByRule), Valid: true}
}
