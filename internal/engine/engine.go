// Package engine runs the level ladder strategy. It takes one price tick at a
// time, decides at most one action and carries it out through the order
// placer with an explicit prepare, place, commit or rollback, persist cycle.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"levelBot/internal/domain"
	"levelBot/internal/ladder"
	"levelBot/internal/metrics"
	"levelBot/internal/ports"
	"levelBot/internal/position"
	"levelBot/internal/rules"
	"levelBot/internal/trend"
)

// Config holds the strategy settings of the engine.
type Config struct {
	Symbol       string
	Rules        rules.Params
	ClosingRules []domain.ClosingRuleID // seeds every new position
	Polarity     trend.Polarity
}

// Deps are the collaborators of the engine. Metrics and Now are optional.
type Deps struct {
	Placer     ports.OrderPlacer
	Store      ports.Store
	StateStore ports.StateStore
	Notifier   ports.Notifier
	Clock      ports.SessionClock
	Logger     ports.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// Engine is the strategy orchestrator. OnTick calls are serialized.
type Engine struct {
	cfg     Config
	eval    *rules.Evaluator
	tracker *trend.Tracker

	placer     ports.OrderPlacer
	store      ports.Store
	stateStore ports.StateStore
	notifier   ports.Notifier
	clock      ports.SessionClock
	logger     ports.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	mu                  sync.Mutex // serializes decisions and guards state
	state               *State
	configFaultReported bool

	published atomic.Pointer[domain.Snapshot]
}

// New creates an engine with an empty state. Call Load before the first tick.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Placer == nil || deps.Store == nil || deps.StateStore == nil || deps.Notifier == nil || deps.Clock == nil || deps.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Engine")
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule parameters: %w", err)
	}
	if cfg.ClosingRules == nil {
		cfg.ClosingRules = domain.DefaultClosingRules
	}
	for _, r := range cfg.ClosingRules {
		if r == domain.CloseMarketPhaseEnd {
			return nil, fmt.Errorf("closing rule %s cannot be configured", r)
		}
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	e := &Engine{
		cfg:        cfg,
		eval:       rules.NewEvaluator(cfg.Rules),
		tracker:    trend.NewTracker(deps.Store, cfg.Polarity),
		placer:     deps.Placer,
		store:      deps.Store,
		stateStore: deps.StateStore,
		notifier:   deps.Notifier,
		clock:      deps.Clock,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		now:        now,
		state:      newState(InitialState{}),
	}
	e.publishSnapshot()
	return e, nil
}

// Load replaces the engine state with what was restored from the store and
// initializes the read-side projection.
func (e *Engine) Load(ctx context.Context, init InitialState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = newState(init)
	snap := e.publishSnapshot()
	e.metrics.SetActivePosition(e.state.Position.IsOpen())
	e.metrics.SetDisabled(e.state.Disabled)

	e.logger.Info(ctx, "Engine state loaded", map[string]interface{}{
		"levels":    len(e.state.Levels),
		"trends":    len(e.state.Trends),
		"history":   len(e.state.History),
		"hasActive": e.state.Position.IsOpen(),
		"disabled":  e.state.Disabled,
	})
	if err := e.stateStore.Init(ctx, snap); err != nil {
		return fmt.Errorf("failed to initialize state store: %w", err)
	}
	return nil
}

// Snapshot returns the last published state. It never waits for a pending
// order.
func (e *Engine) Snapshot() domain.Snapshot {
	return e.published.Load().Clone()
}

// OnTick evaluates one price tick and performs at most one action.
func (e *Engine) OnTick(ctx context.Context, tick domain.Tick) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := tick.Time
	if now.IsZero() {
		now = e.now()
	}
	price := tick.Price

	if e.state.Disabled {
		return Result{Kind: Disabled, Position: e.state.Position.Clone()}
	}

	if !e.clock.InSession(now) {
		return e.endSession(ctx, now)
	}

	cur := trend.Last(e.state.Trends)
	if cur == nil {
		return e.configFault(ctx, ports.ErrMissingTrend)
	}
	e.configFaultReported = false
	isShort := cur.IsShort()

	pos := e.state.Position
	var openLevel, closedLevel *domain.Level
	if pos.IsOpen() {
		openLevel = &pos.OpenLevel
	} else if pos != nil {
		closedLevel = pos.ClosedLevel
	}
	distance := ladder.DistanceToPreviousLevel(e.state.Levels, price, isShort, openLevel, closedLevel)

	if pos.IsOpen() {
		e.manageClosingRules(ctx, distance, now)
		pos = e.state.Position
	}

	nextLevel := ladder.NextLevel(e.state.Levels, price, isShort)
	isClosed := !pos.IsOpen()

	if nextLevel != nil && (isClosed || pos.IsOpenPartially()) &&
		!nextLevel.IsDisabled() &&
		!ladder.IsLastLevel(e.state.Levels, nextLevel.ID, isShort) &&
		(isClosed || !rules.CanCloseByTrail3Ticks(pos.ClosingRules)) {

		side := cur.OpenSide()
		rule := e.eval.NextOpeningRule(price, nextLevel.Value, side)
		if rules.IsOpeningRuleAvailable(rule, pos) {
			var (
				tr  position.Transition
				err error
			)
			if isClosed {
				tr, err = position.Open(pos, e.state.Levels, *nextLevel, rule, side, domain.NewClosingRuleSet(e.cfg.ClosingRules...), now)
			} else {
				tr, err = position.Average(pos, e.state.Levels, rule, side, now)
			}
			if err != nil {
				return e.configFault(ctx, err)
			}
			return e.execute(ctx, tr, now)
		}
		e.logger.Debug(ctx, "Opening rule already consumed", map[string]interface{}{
			"rule":  rule,
			"level": nextLevel.Value,
			"price": price,
		})
	}

	if pos.IsOpen() {
		decision, ok := e.eval.EvaluateClose(rules.CloseInput{
			Position:  pos,
			Candidate: nextLevel,
			Price:     price,
			Distance:  distance,
			IsShort:   isShort,
		})
		if ok {
			tr, err := position.Close(pos, e.state.Levels, decision.Rule, decision.ClosedLevel, closeSide(pos), now)
			if err != nil {
				return e.configFault(ctx, err)
			}
			res := e.execute(ctx, tr, now)
			if res.Acted() && decision.Rule == domain.CloseHardStopLoss {
				e.afterStopLoss(context.WithoutCancel(ctx), *cur, e.state.Position, now)
			}
			return res
		}
	}

	return Result{Kind: NoOp, Position: pos.Clone(), Reason: "no rule fired"}
}

// manageClosingRules prunes closing rules that went out of range and records
// the change. Persistence failures here are logged only; the next committed
// decision writes the position again.
func (e *Engine) manageClosingRules(ctx context.Context, distance float64, now time.Time) {
	pos := e.state.Position
	pruned := e.eval.ManageClosingRules(distance, pos.ClosingRules)
	if pruned.Len() == pos.ClosingRules.Len() {
		return
	}
	next := pos.Clone()
	next.ClosingRules = pruned
	next.UpdatedAt = now
	e.state.Position = next

	e.logger.Info(ctx, "Closing rules updated", map[string]interface{}{
		"positionRef": next.Ref.String(),
		"rules":       pruned.Slice(),
		"distance":    distance,
	})
	if next.IsPersisted() {
		if err := e.store.UpdatePosition(ctx, next); err != nil {
			e.logger.Error(ctx, err, "Failed to persist closing rules", map[string]interface{}{"positionID": next.ID})
		}
	}
	e.publish(ctx, e.stateStore.Edit)
}

// endSession force closes the open position and resets the session state.
func (e *Engine) endSession(ctx context.Context, now time.Time) Result {
	pos := e.state.Position
	var res Result
	if pos.IsOpen() {
		tr, err := position.Close(pos, e.state.Levels, domain.CloseMarketPhaseEnd, nil, closeSide(pos), now)
		if err != nil {
			return e.configFault(ctx, err)
		}
		ctx = context.WithoutCancel(ctx)
		res = e.execute(ctx, tr, now)
		if !res.Acted() {
			// the position is still open on the exchange; keep it and retry next tick
			return res
		}
	}

	if e.state.resetSession() {
		e.logger.Info(ctx, "Trading session ended, state reset")
		if err := e.stateStore.Init(ctx, e.publishSnapshot()); err != nil {
			e.logger.Error(ctx, err, "Failed to reset state store")
		}
		e.metrics.SetActivePosition(false)
	}

	if res.Kind != "" {
		res.Position = nil
		return res
	}
	return Result{Kind: OutsideSession}
}

// afterStopLoss applies the correction trend rule after a hard stop-loss close.
func (e *Engine) afterStopLoss(ctx context.Context, cur domain.Trend, closed *domain.Position, now time.Time) {
	if cur.IsCorrection() {
		e.state.Disabled = true
		e.metrics.SetDisabled(true)
		if err := e.store.SetDisabled(ctx, true); err != nil {
			e.logger.Error(ctx, err, "Failed to persist disabled flag")
		}
		e.alert(ctx, disabledMessage(), domain.LogState)
		e.publish(ctx, e.stateStore.Edit)
		return
	}

	prev := e.state.lastClosedExcept(closed.Ref)
	if prev == nil || prev.ClosedBy() != domain.CloseHardStopLoss {
		return
	}
	trends, appended, err := e.tracker.AppendCorrection(ctx, e.state.Trends, cur, now)
	if err != nil {
		e.logger.Error(ctx, err, "Failed to append correction trend")
		e.alert(ctx, fmt.Sprintf("Failed to start correction trend: %v", err), domain.LogError)
		return
	}
	if !appended {
		return
	}
	e.state.Trends = trends
	e.alert(ctx, correctionMessage(*trend.Last(trends)), domain.LogState)
	e.publish(ctx, e.stateStore.Edit)
}

func (e *Engine) configFault(ctx context.Context, err error) Result {
	e.metrics.IncFailure("config")
	e.logger.Error(ctx, err, "Configuration fault, tick skipped")
	if !e.configFaultReported {
		e.configFaultReported = true
		e.alert(ctx, fmt.Sprintf("Configuration fault, trading paused: %v", err), domain.LogError)
	}
	return Result{Kind: ConfigFault, Position: e.state.Position.Clone(), Err: err}
}

// alert sends message to the operator and writes it to the durable log.
func (e *Engine) alert(ctx context.Context, message string, kind domain.LogKind) {
	e.notifier.Send(ctx, message)
	if err := e.store.CreateLog(ctx, message, kind); err != nil {
		e.logger.Error(ctx, err, "Failed to write log entry", map[string]interface{}{"message": message})
	}
}

// publishSnapshot stores a fresh snapshot for readers and returns it.
func (e *Engine) publishSnapshot() domain.Snapshot {
	snap := e.state.snapshot(e.now())
	e.published.Store(&snap)
	return snap
}

// publish refreshes the snapshot and hands it to the state store.
func (e *Engine) publish(ctx context.Context, call func(context.Context, domain.Snapshot) error) {
	if err := call(ctx, e.publishSnapshot()); err != nil {
		e.logger.Error(ctx, err, "Failed to update state store")
	}
}
