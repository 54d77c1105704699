// Package redisstate publishes the engine's read-side projection to Redis so
// dashboards and other processes can follow the ladder without touching the
// engine. Without a client the latest snapshot is only kept in memory.
package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"levelBot/internal/domain"
	"levelBot/internal/ports"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "levelbot"
	snapshotTTL      = 7 * 24 * time.Hour
)

// Event names carried on the pub/sub channel.
const (
	EventInit = "init"
	EventAdd  = "add"
	EventEdit = "edit"
)

// Client is the subset of *redis.Client the store uses.
type Client interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Envelope is the message published for every projection change.
type Envelope struct {
	Event    string          `json:"event"`
	Snapshot domain.Snapshot `json:"snapshot"`
}

// Store implements ports.StateStore.
type Store struct {
	client         Client
	logger         ports.Logger
	snapshotKey    string
	channel        string
	redisAvailable atomic.Bool

	mu     sync.RWMutex
	latest *Envelope
}

var _ ports.StateStore = (*Store)(nil)

// Config holds configuration for the Redis state store.
type Config struct {
	Symbol    string
	KeyPrefix string // defaults to "levelbot"
	Client    Client // nil keeps the projection in memory only
	Logger    ports.Logger
}

// New creates a state store for one symbol.
func New(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Redis state store")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("symbol is required for Redis state store: %w", ports.ErrConfigurationError)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	s := &Store{
		client:      cfg.Client,
		logger:      cfg.Logger,
		snapshotKey: fmt.Sprintf("%s:%s:snapshot", prefix, cfg.Symbol),
		channel:     fmt.Sprintf("%s:%s:events", prefix, cfg.Symbol),
	}

	if cfg.Client == nil {
		cfg.Logger.Info(context.Background(), "No Redis client configured, state projection kept in memory")
		return s, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cfg.Client.Ping(ctx).Err(); err != nil {
		cfg.Logger.Warn(ctx, "Redis unavailable at startup, state projection kept in memory", map[string]interface{}{"error": err.Error()})
	} else {
		s.redisAvailable.Store(true)
		cfg.Logger.Info(ctx, "Redis state store connected", map[string]interface{}{"key": s.snapshotKey})
	}
	return s, nil
}

// Init replaces the whole projection.
func (s *Store) Init(ctx context.Context, snap domain.Snapshot) error {
	return s.write(ctx, EventInit, snap)
}

// Add announces a newly opened position.
func (s *Store) Add(ctx context.Context, snap domain.Snapshot) error {
	return s.write(ctx, EventAdd, snap)
}

// Edit announces a change to the active position or the ladder.
func (s *Store) Edit(ctx context.Context, snap domain.Snapshot) error {
	return s.write(ctx, EventEdit, snap)
}

// Latest returns a copy of the last written envelope, or nil before the first
// write.
func (s *Store) Latest() *Envelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil
	}
	return &Envelope{Event: s.latest.Event, Snapshot: s.latest.Snapshot.Clone()}
}

// Load reads the stored projection back from Redis.
func (s *Store) Load(ctx context.Context) (*Envelope, error) {
	if s.client == nil {
		return s.Latest(), nil
	}
	raw, err := s.client.Get(ctx, s.snapshotKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read projection %s: %w: %w", s.snapshotKey, ports.ErrQueryFailed, err)
	}
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("invalid projection at %s: %w", s.snapshotKey, err)
	}
	return &env, nil
}

func (s *Store) write(ctx context.Context, event string, snap domain.Snapshot) error {
	env := &Envelope{Event: event, Snapshot: snap.Clone()}
	s.mu.Lock()
	s.latest = env
	s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode projection: %w", err)
	}

	if err := s.client.Set(ctx, s.snapshotKey, payload, snapshotTTL).Err(); err != nil {
		if s.redisAvailable.Swap(false) {
			s.logger.Warn(ctx, "Redis write failed, projection kept in memory", map[string]interface{}{"error": err.Error()})
		}
		return fmt.Errorf("failed to store projection %s: %w: %w", s.snapshotKey, ports.ErrUpdateFailed, err)
	}
	if !s.redisAvailable.Swap(true) {
		s.logger.Info(ctx, "Redis writes recovered")
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event, err)
	}
	s.logger.Debug(ctx, "Projection published", map[string]interface{}{"event": event, "channel": s.channel})
	return nil
}
