package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"levelBot/config"
	"levelBot/internal/domain"
	"levelBot/internal/engine"
	"levelBot/internal/metrics"
	"levelBot/internal/ports"
)

// historyLimit bounds how many past positions are restored at startup.
const historyLimit = 50

// TickEngine is the part of the engine the service drives.
type TickEngine interface {
	Load(ctx context.Context, init engine.InitialState) error
	OnTick(ctx context.Context, tick domain.Tick) engine.Result
}

// TradingService connects the trade stream to the engine.
type TradingService struct {
	cfg      *config.Config
	logger   ports.Logger
	exchange ports.ExchangeClient
	store    ports.Store
	engine   TickEngine
	metrics  *metrics.Metrics
	observe  func(domain.Tick) // sees every tick right before the engine

	queue *tickQueue
}

// NewTradingService creates a new application service instance.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	store ports.Store,
	eng TickEngine,
	m *metrics.Metrics,
) (*TradingService, error) {
	if cfg == nil || logger == nil || exchange == nil || store == nil || eng == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("configuration has no strategy")
	}
	return &TradingService{
		cfg:      cfg,
		logger:   logger,
		exchange: exchange,
		store:    store,
		engine:   eng,
		metrics:  m,
		queue:    newTickQueue(),
	}, nil
}

// SetTickObserver registers fn to see each processed tick before the engine
// does. The paper placer uses it to learn fill prices.
func (s *TradingService) SetTickObserver(fn func(domain.Tick)) {
	s.observe = fn
}

// Start loads the engine state, streams trades and blocks until ctx is done,
// a shutdown signal arrives or the stream gives up.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...", map[string]interface{}{"symbol": s.cfg.Symbol, "dryRun": s.cfg.DryRun})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// --- Initialization Steps ---
	if err := s.exchange.SetServerTime(ctx); err != nil {
		if !s.cfg.DryRun {
			s.logger.Error(ctx, err, "Failed to synchronize server time")
			return fmt.Errorf("failed to set server time: %w", err)
		}
		s.logger.Warn(ctx, "Server time not synchronized, continuing in dry run", map[string]interface{}{"error": err.Error()})
	}

	init, err := LoadInitialState(ctx, s.store, s.cfg.Strategy, s.logger)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load engine state")
		return fmt.Errorf("failed to load engine state: %w", err)
	}
	if err := s.engine.Load(ctx, init); err != nil {
		// The projection is advisory; trading can go on without it
		s.logger.Warn(ctx, "Engine state loaded but projection not initialized", map[string]interface{}{"error": err.Error()})
	}

	var workerWG sync.WaitGroup
	workerWG.Add(1)
	go func() {
		defer workerWG.Done()
		s.runWorker(ctx)
	}()
	defer workerWG.Wait()

	// --- Start WebSocket Stream ---
	wsDoneCh, wsStopCh, err := s.exchange.StreamTrades(ctx, s.cfg.Symbol, s.handleTick, s.handleWsError)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to start trade stream")
		cancel()
		return fmt.Errorf("failed to start trade stream: %w", err)
	}
	s.logger.Info(ctx, "Trade stream started", map[string]interface{}{"symbol": s.cfg.Symbol})

	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
		select {
		case wsStopCh <- struct{}{}:
			s.logger.Info(ctx, "Stop signal sent to trade stream")
		default:
			s.logger.Warn(ctx, "Failed to send stop signal to trade stream (already closed?)")
		}
		select {
		case <-wsDoneCh:
			s.logger.Info(ctx, "Trade stream shut down gracefully")
		case <-time.After(5 * time.Second):
			s.logger.Warn(ctx, "Timeout waiting for trade stream to shut down")
		}
	case <-wsDoneCh:
		cancel()
		err := fmt.Errorf("trade stream stopped unexpectedly: %w", ports.ErrConnectionFailed)
		s.logger.Error(ctx, err, "Trade stream stopped")
		return err
	}

	s.logger.Info(ctx, "Trading Service stopped.")
	return nil
}

// handleTick runs on the stream goroutine. It only queues the tick.
func (s *TradingService) handleTick(tick domain.Tick) {
	if tick.Symbol != "" && tick.Symbol != s.cfg.Symbol {
		return
	}
	if s.queue.Push(tick) {
		s.metrics.IncTicksDropped()
	}
}

// handleWsError handles errors reported by the trade stream. Reconnects are
// handled inside the adapter.
func (s *TradingService) handleWsError(err error) {
	s.logger.Error(context.Background(), err, "Trade stream error reported")
}

// runWorker feeds queued ticks to the engine one at a time until ctx is done.
func (s *TradingService) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.queue.Ready():
			tick, ok := s.queue.Take()
			if !ok {
				continue
			}
			s.process(ctx, tick)
		}
	}
}

func (s *TradingService) process(ctx context.Context, tick domain.Tick) {
	if s.observe != nil {
		s.observe(tick)
	}
	res := s.engine.OnTick(ctx, tick)
	if res.Acted() {
		s.logger.Info(ctx, "Tick produced a decision", map[string]interface{}{
			"price":  tick.Price,
			"result": res.Kind,
			"action": res.Action,
			"rule":   res.Rule,
		})
	}
}

// tickQueue holds at most one pending tick. A newer tick replaces an
// unprocessed one, so the engine always works on the freshest price.
type tickQueue struct {
	mu      sync.Mutex
	pending *domain.Tick
	ready   chan struct{}
}

func newTickQueue() *tickQueue {
	return &tickQueue{ready: make(chan struct{}, 1)}
}

// Push stores tick and reports whether an unprocessed tick was replaced.
func (q *tickQueue) Push(tick domain.Tick) (replaced bool) {
	q.mu.Lock()
	replaced = q.pending != nil
	q.pending = &tick
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return replaced
}

// Ready fires after a Push.
func (q *tickQueue) Ready() <-chan struct{} {
	return q.ready
}

// Take removes and returns the pending tick.
func (q *tickQueue) Take() (domain.Tick, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == nil {
		return domain.Tick{}, false
	}
	t := *q.pending
	q.pending = nil
	return t, true
}
