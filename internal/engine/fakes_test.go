package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"levelBot/internal/domain"
	"levelBot/internal/rules"
	"levelBot/internal/trend"
)

type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

// mockPlacer fills every order at price unless err is set. onPlace runs while
// the order is in flight; ctxErr holds the context state seen after it.
type mockPlacer struct {
	price   float64
	err     error
	calls   []domain.OrderSide
	onPlace func()
	ctxErr  error
}

func (m *mockPlacer) Place(ctx context.Context, side domain.OrderSide) (*domain.PlacedOrder, error) {
	m.calls = append(m.calls, side)
	if m.onPlace != nil {
		m.onPlace()
	}
	m.ctxErr = ctx.Err()
	if m.err != nil {
		return nil, m.err
	}
	return &domain.PlacedOrder{
		ExchangeOrderID: "ex-1",
		Side:            side,
		Quantity:        1,
		ExecutedPrice:   m.price,
	}, nil
}

type mockStore struct {
	nextID int64

	positions map[int64]*domain.Position
	orders    []domain.Order
	logs      []string
	logKinds  []domain.LogKind
	trends    []domain.Trend
	disabled  bool

	createPositionErr error
	updatePositionErr error
	createOrderErr    error
	createTrendErr    error
}

func newMockStore() *mockStore {
	return &mockStore{nextID: 100, positions: make(map[int64]*domain.Position)}
}

func (m *mockStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *mockStore) CreatePosition(ctx context.Context, pos *domain.Position) (int64, error) {
	if m.createPositionErr != nil {
		return 0, m.createPositionErr
	}
	id := m.id()
	m.positions[id] = pos.Clone()
	return id, nil
}

func (m *mockStore) UpdatePosition(ctx context.Context, pos *domain.Position) error {
	if m.updatePositionErr != nil {
		return m.updatePositionErr
	}
	if _, ok := m.positions[pos.ID]; !ok {
		return errors.New("position not found")
	}
	m.positions[pos.ID] = pos.Clone()
	return nil
}

func (m *mockStore) FindRecentPositions(ctx context.Context, limit int) ([]*domain.Position, error) {
	return nil, nil
}

func (m *mockStore) CreateOrder(ctx context.Context, positionID int64, order *domain.Order) (int64, error) {
	if m.createOrderErr != nil {
		return 0, m.createOrderErr
	}
	o := *order
	o.PositionID = positionID
	m.orders = append(m.orders, o)
	return m.id(), nil
}

func (m *mockStore) CreateLog(ctx context.Context, message string, kind domain.LogKind) error {
	m.logs = append(m.logs, message)
	m.logKinds = append(m.logKinds, kind)
	return nil
}

func (m *mockStore) ListLevels(ctx context.Context) ([]domain.Level, error) { return nil, nil }

func (m *mockStore) CreateLevel(ctx context.Context, value float64) (int64, error) {
	return m.id(), nil
}

func (m *mockStore) ListTrends(ctx context.Context) ([]domain.Trend, error) { return m.trends, nil }

func (m *mockStore) CreateTrend(ctx context.Context, t *domain.Trend) (int64, error) {
	if m.createTrendErr != nil {
		return 0, m.createTrendErr
	}
	m.trends = append(m.trends, *t)
	return m.id(), nil
}

func (m *mockStore) IsDisabled(ctx context.Context) (bool, error) { return m.disabled, nil }

func (m *mockStore) SetDisabled(ctx context.Context, disabled bool) error {
	m.disabled = disabled
	return nil
}

type mockStateStore struct {
	inits, adds, edits int
	last               domain.Snapshot
}

func (m *mockStateStore) Init(ctx context.Context, snap domain.Snapshot) error {
	m.inits++
	m.last = snap
	return nil
}

func (m *mockStateStore) Add(ctx context.Context, snap domain.Snapshot) error {
	m.adds++
	m.last = snap
	return nil
}

func (m *mockStateStore) Edit(ctx context.Context, snap domain.Snapshot) error {
	m.edits++
	m.last = snap
	return nil
}

type mockNotifier struct {
	messages []string
}

func (m *mockNotifier) Send(ctx context.Context, message string) {
	m.messages = append(m.messages, message)
}

type mockClock struct {
	open bool
}

func (m *mockClock) InSession(t time.Time) bool { return m.open }

type harness struct {
	engine     *Engine
	placer     *mockPlacer
	store      *mockStore
	stateStore *mockStateStore
	notifier   *mockNotifier
	clock      *mockClock
	logger     *mockLogger
}

type harnessOption func(*Config, *InitialState)

func withClosingRules(r ...domain.ClosingRuleID) harnessOption {
	return func(c *Config, _ *InitialState) { c.ClosingRules = r }
}

func withPolarity(p trend.Polarity) harnessOption {
	return func(c *Config, _ *InitialState) { c.Polarity = p }
}

func withTrends(t ...domain.Trend) harnessOption {
	return func(_ *Config, s *InitialState) { s.Trends = t }
}

func withDisabled() harnessOption {
	return func(_ *Config, s *InitialState) { s.Disabled = true }
}

var testStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func ladderLevels() []domain.Level {
	return []domain.Level{
		{ID: 1, Value: 100, Status: domain.LevelEnabled},
		{ID: 2, Value: 105, Status: domain.LevelEnabled},
		{ID: 3, Value: 110, Status: domain.LevelEnabled},
		{ID: 4, Value: 115, Status: domain.LevelEnabled},
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := Config{Symbol: "BTCUSDT", Rules: rules.DefaultParams()}
	init := InitialState{
		Levels: ladderLevels(),
		Trends: []domain.Trend{{ID: 1, Direction: domain.TrendUp, Kind: domain.TrendNormal}},
	}
	for _, opt := range opts {
		opt(&cfg, &init)
	}

	h := &harness{
		placer:     &mockPlacer{},
		store:      newMockStore(),
		stateStore: &mockStateStore{},
		notifier:   &mockNotifier{},
		clock:      &mockClock{open: true},
		logger:     &mockLogger{},
	}
	h.store.trends = append(h.store.trends, init.Trends...)

	e, err := New(cfg, Deps{
		Placer:     h.placer,
		Store:      h.store,
		StateStore: h.stateStore,
		Notifier:   h.notifier,
		Clock:      h.clock,
		Logger:     h.logger,
		Now:        func() time.Time { return testStart },
	})
	require.NoError(t, err)
	require.NoError(t, e.Load(context.Background(), init))
	h.engine = e
	return h
}

// tick feeds price to the engine; the mock placer fills at that price.
func (h *harness) tick(price float64) Result {
	h.placer.price = price
	return h.engine.OnTick(context.Background(), domain.Tick{Symbol: "BTCUSDT", Price: price, Time: testStart})
}
