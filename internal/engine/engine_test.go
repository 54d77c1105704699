package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levelBot/internal/domain"
	"levelBot/internal/ladder"
	"levelBot/internal/ports"
	"levelBot/internal/position"
	"levelBot/internal/trend"
)

func TestEngine_OpenThenTrail3TicksClose(t *testing.T) {
	h := newHarness(t)

	res := h.tick(100)
	assert.Equal(t, NoOp, res.Kind)
	assert.Empty(t, h.placer.calls)

	res = h.tick(106)
	require.Equal(t, Committed, res.Kind)
	assert.Equal(t, position.KindOpen, res.Action)
	assert.Equal(t, string(domain.RuleFirstTouch), res.Rule)
	require.NotNil(t, res.Position)
	assert.Equal(t, int64(2), res.Position.OpenLevel.ID)
	assert.Equal(t, domain.StatusOpenPartial, res.Position.Status)
	assert.Equal(t, []domain.OrderSide{domain.Buy}, h.placer.calls)

	res = h.tick(104)
	require.Equal(t, Committed, res.Kind)
	assert.Equal(t, position.KindClose, res.Action)
	require.NotNil(t, res.Position)
	assert.Equal(t, domain.StatusClosed, res.Position.Status)
	assert.Equal(t, domain.CloseTrail3Ticks, res.Position.ClosedBy())
	assert.Nil(t, res.Position.ClosedLevel)
	assert.Equal(t, []domain.OrderSide{domain.Buy, domain.Sell}, h.placer.calls)

	snap := h.engine.Snapshot()
	lvl, ok := ladder.Find(snap.Levels, 2)
	require.True(t, ok)
	assert.False(t, lvl.IsDisabled(), "level 105 is enabled again")

	assert.Len(t, h.notifier.messages, 2, "one alert per committed decision")
	assert.Equal(t, 1, h.stateStore.adds)
	assert.Equal(t, 1, h.stateStore.edits)
}

func TestEngine_ReconcilesProvisionalIDs(t *testing.T) {
	h := newHarness(t)

	res := h.tick(106)
	require.Equal(t, Committed, res.Kind)

	pos := h.engine.Snapshot().Position
	require.NotNil(t, pos)
	assert.Equal(t, int64(101), pos.ID)
	assert.NotEmpty(t, pos.Ref)
	require.Len(t, pos.Orders, 1)
	assert.Equal(t, int64(102), pos.Orders[0].ID)
	assert.Equal(t, int64(101), pos.Orders[0].PositionID)

	res = h.tick(104)
	require.Equal(t, Committed, res.Kind)
	stored := h.store.positions[101]
	require.NotNil(t, stored)
	assert.Equal(t, domain.StatusClosed, stored.Status)
	assert.Len(t, h.store.orders, 2)
}

func TestEngine_InFlightOrderIgnoresCancellation(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.placer.price = 106
	h.placer.onPlace = cancel

	res := h.engine.OnTick(ctx, domain.Tick{Symbol: "BTCUSDT", Price: 106, Time: testStart})

	require.Equal(t, Committed, res.Kind)
	assert.Equal(t, position.KindOpen, res.Action)
	assert.NoError(t, h.placer.ctxErr, "placer keeps a live context after shutdown starts")
	require.Error(t, ctx.Err())
	assert.Len(t, h.store.positions, 1)
	assert.Len(t, h.store.orders, 1)
	assert.Len(t, h.notifier.messages, 1)
}

func TestEngine_OpenOrderFailure(t *testing.T) {
	h := newHarness(t)
	h.placer.err = assert.AnError

	res := h.tick(106)

	assert.Equal(t, OrderFailed, res.Kind)
	assert.Equal(t, position.KindOpen, res.Action)
	assert.ErrorIs(t, res.Err, ports.ErrOrderPlacementFailed)
	assert.ErrorIs(t, res.Err, assert.AnError)
	assert.Nil(t, res.Position)
	assert.Nil(t, h.engine.Snapshot().Position)
	assert.Empty(t, h.store.positions)
	assert.Empty(t, h.store.orders)
	assert.Len(t, h.notifier.messages, 1)
	assert.Equal(t, []domain.LogKind{domain.LogError}, h.store.logKinds)
	assert.Zero(t, h.stateStore.adds)
}

func TestEngine_AveragingFailureRestoresSnapshot(t *testing.T) {
	h := newHarness(t, withClosingRules(domain.CloseTakeProfit, domain.CloseHardStopLoss))

	require.Equal(t, Committed, h.tick(106).Kind)
	before := h.engine.Snapshot()

	h.placer.err = assert.AnError
	res := h.tick(104)

	require.Equal(t, OrderFailed, res.Kind)
	assert.Equal(t, position.KindAverage, res.Action)
	after := h.engine.Snapshot()
	assert.Equal(t, before.Position.AvailableOpeningRules.Slice(), after.Position.AvailableOpeningRules.Slice())
	assert.Equal(t, before.Position.Status, after.Position.Status)
	assert.Len(t, after.Position.Orders, 1)
	assert.Equal(t, before.Levels, after.Levels)
	assert.Len(t, h.notifier.messages, 2)
	assert.Len(t, h.store.orders, 1)
}

func TestEngine_AveragingConsumesRulesAndFillsPosition(t *testing.T) {
	h := newHarness(t, withClosingRules(domain.CloseTakeProfit, domain.CloseHardStopLoss))

	require.Equal(t, Committed, h.tick(106).Kind)
	assert.Equal(t, 2, h.engine.Snapshot().Position.AvailableOpeningRules.Len())

	res := h.tick(104) // 4 past level 100
	require.Equal(t, Committed, res.Kind)
	assert.Equal(t, position.KindAverage, res.Action)
	assert.Equal(t, string(domain.RuleDeepRetrace), res.Rule)
	assert.Equal(t, 1, res.Position.AvailableOpeningRules.Len())
	assert.Equal(t, domain.StatusOpenPartial, res.Position.Status)

	res = h.tick(102) // first touch already used
	assert.Equal(t, NoOp, res.Kind)

	res = h.tick(103.5)
	require.Equal(t, Committed, res.Kind)
	assert.Equal(t, string(domain.RuleMidRetrace), res.Rule)
	assert.Zero(t, res.Position.AvailableOpeningRules.Len())
	assert.Equal(t, domain.StatusOpenFull, res.Position.Status)
	assert.Len(t, res.Position.Orders, 3)

	lvl, _ := ladder.Find(h.engine.Snapshot().Levels, 2)
	assert.True(t, lvl.IsDisabled(), "open level of a full position is disabled")

	// a full position is never averaged again
	res = h.tick(103.5)
	assert.Equal(t, NoOp, res.Kind)
	assert.Len(t, h.placer.calls, 3)
}

func TestEngine_Trail50AfterArming(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, Committed, h.tick(106).Kind)

	res := h.tick(107.6)
	require.Equal(t, Committed, res.Kind)
	assert.Equal(t, position.KindAverage, res.Action)
	assert.False(t, res.Position.ClosingRules.Has(domain.CloseTrail3Ticks), "progress arms the 50% trail")

	res = h.tick(106.2)
	require.Equal(t, Committed, res.Kind)
	assert.Equal(t, domain.CloseTrail50Percent, res.Position.ClosedBy())
	require.NotNil(t, res.Position.ClosedLevel)
	assert.Equal(t, int64(2), res.Position.ClosedLevel.ID)

	lvl, _ := ladder.Find(h.engine.Snapshot().Levels, 2)
	assert.True(t, lvl.IsDisabled())

	// disabled level does not retrigger an entry
	res = h.tick(106)
	assert.Equal(t, NoOp, res.Kind)
}

// stopLossRound opens at 105 and closes by hard stop-loss.
func stopLossRound(t *testing.T, h *harness) Result {
	t.Helper()
	require.Equal(t, Committed, h.tick(106).Kind)
	res := h.tick(99.9)
	require.True(t, res.Acted())
	require.Equal(t, domain.CloseHardStopLoss, res.Position.ClosedBy())
	return res
}

func TestEngine_ConsecutiveStopLosses(t *testing.T) {
	h := newHarness(t, withClosingRules(domain.CloseHardStopLoss), withPolarity(trend.PolaritySame))

	stopLossRound(t, h)
	assert.Len(t, h.engine.Snapshot().Trends, 1, "a single stop loss changes nothing")

	stopLossRound(t, h)
	trends := h.engine.Snapshot().Trends
	require.Len(t, trends, 2, "second stop loss in a row starts a correction")
	assert.True(t, trends[1].IsCorrection())
	assert.Equal(t, domain.TrendUp, trends[1].Direction)
	assert.Len(t, h.store.trends, 2)

	stopLossRound(t, h)
	snap := h.engine.Snapshot()
	assert.Len(t, snap.Trends, 2, "no second correction trend")
	assert.True(t, snap.Disabled)
	assert.True(t, h.store.disabled)

	calls := len(h.placer.calls)
	res := h.tick(106)
	assert.Equal(t, Disabled, res.Kind)
	assert.Len(t, h.placer.calls, calls)

	// six decisions, one correction alert, one disable alert
	assert.Len(t, h.notifier.messages, 8)
}

func TestEngine_CorrectionTrendReversesDirection(t *testing.T) {
	h := newHarness(t, withClosingRules(domain.CloseHardStopLoss))

	stopLossRound(t, h)
	stopLossRound(t, h)

	cur := trend.Last(h.engine.Snapshot().Trends)
	require.NotNil(t, cur)
	assert.Equal(t, domain.TrendDown, cur.Direction)

	res := h.tick(104)
	require.Equal(t, Committed, res.Kind)
	assert.Equal(t, position.KindOpen, res.Action)
	assert.Equal(t, int64(2), res.Position.OpenLevel.ID)
	assert.Equal(t, domain.Sell, h.placer.calls[len(h.placer.calls)-1])
}

func TestEngine_SessionEndForcesClose(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, Committed, h.tick(106).Kind)

	h.clock.open = false
	res := h.tick(106)
	require.Equal(t, Committed, res.Kind)
	assert.Equal(t, position.KindClose, res.Action)
	assert.Equal(t, string(domain.CloseMarketPhaseEnd), res.Rule)
	assert.Nil(t, res.Position)
	assert.Nil(t, h.engine.Snapshot().Position)
	assert.Equal(t, domain.CloseMarketPhaseEnd, h.store.positions[101].ClosedBy())
	assert.Equal(t, 2, h.stateStore.inits)

	res = h.tick(106)
	assert.Equal(t, OutsideSession, res.Kind)
	assert.Equal(t, 2, h.stateStore.inits, "nothing left to reset")

	h.clock.open = true
	res = h.tick(100)
	assert.Equal(t, NoOp, res.Kind)
	assert.Nil(t, res.Position)
}

func TestEngine_SessionEndKeepsPositionWhenCloseFails(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, Committed, h.tick(106).Kind)

	h.clock.open = false
	h.placer.err = assert.AnError
	res := h.tick(106)

	assert.Equal(t, OrderFailed, res.Kind)
	require.NotNil(t, h.engine.Snapshot().Position)
	assert.True(t, h.engine.Snapshot().Position.IsOpen())
}

func TestEngine_PersistFailureKeepsCommittedState(t *testing.T) {
	h := newHarness(t)
	h.store.createPositionErr = assert.AnError

	res := h.tick(106)
	require.Equal(t, PersistFailed, res.Kind)
	assert.ErrorIs(t, res.Err, ports.ErrPersistenceFailed)
	require.NotNil(t, h.engine.Snapshot().Position)
	assert.True(t, h.engine.Snapshot().Position.IsOpen())
	assert.False(t, h.engine.Snapshot().Position.IsPersisted())
	assert.Len(t, h.notifier.messages, 1, "one alert for the failure")
	assert.Len(t, h.placer.calls, 1, "no retry of the order")

	h.store.createPositionErr = nil
	res = h.tick(104)
	require.Equal(t, Committed, res.Kind)
	assert.Len(t, h.store.positions, 1)
	assert.Len(t, h.store.orders, 2)
	require.Len(t, h.notifier.messages, 3, "late write is alerted before the close")
	assert.Contains(t, h.notifier.messages[1], "late")
}

func TestEngine_UnstoredOrderIsRecordedLoudly(t *testing.T) {
	h := newHarness(t)
	h.store.createOrderErr = assert.AnError

	res := h.tick(106)
	require.Equal(t, PersistFailed, res.Kind)
	assert.Len(t, h.store.positions, 1)
	assert.Empty(t, h.store.orders)
	require.Len(t, h.engine.Snapshot().Position.Orders, 1)
	assert.False(t, h.engine.Snapshot().Position.Orders[0].IsPersisted())

	h.store.createOrderErr = nil
	res = h.tick(104)
	require.Equal(t, Committed, res.Kind)
	assert.Len(t, h.store.orders, 2)

	require.Len(t, h.notifier.messages, 3)
	assert.Contains(t, h.notifier.messages[1], "1 earlier order(s) not stored")
	assert.Contains(t, h.store.logKinds, domain.LogError)

	// nothing is left to record late
	for _, o := range h.engine.Snapshot().Position.Orders {
		assert.True(t, o.IsPersisted())
	}
}

func TestEngine_MissingTrendIsConfigFault(t *testing.T) {
	h := newHarness(t, withTrends())

	for i := 0; i < 2; i++ {
		res := h.tick(106)
		assert.Equal(t, ConfigFault, res.Kind)
		assert.ErrorIs(t, res.Err, ports.ErrMissingTrend)
	}
	assert.Empty(t, h.placer.calls)
	assert.Len(t, h.notifier.messages, 1)
}

func TestEngine_DisabledAtStart(t *testing.T) {
	h := newHarness(t, withDisabled())

	res := h.tick(106)
	assert.Equal(t, Disabled, res.Kind)
	assert.Empty(t, h.placer.calls)
}

func TestEngine_SnapshotIsACopy(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, Committed, h.tick(106).Kind)

	snap := h.engine.Snapshot()
	snap.Levels[1].Status = domain.LevelDisabledDuringSession
	snap.Position.Status = domain.StatusClosed
	snap.Position.Orders[0].ExecutedPrice = 0

	again := h.engine.Snapshot()
	assert.False(t, again.Levels[1].IsDisabled())
	assert.True(t, again.Position.IsOpen())
	assert.Equal(t, 106.0, again.Position.Orders[0].ExecutedPrice)
}

func TestEngine_LoadRestoresHistory(t *testing.T) {
	h := newHarness(t, withClosingRules(domain.CloseHardStopLoss), withPolarity(trend.PolaritySame))

	sl := domain.CloseHardStopLoss
	prev := &domain.Position{
		ID:        7,
		Ref:       domain.NewProvisionalID(),
		OpenLevel: domain.Level{ID: 2, Value: 105},
		Status:    domain.StatusClosed,
		Orders: []domain.Order{
			{ID: 1, Side: domain.Buy, Quantity: 1, ExecutedPrice: 106},
			{ID: 2, Side: domain.Sell, Quantity: 1, ExecutedPrice: 100},
		},
		ClosedByRule: &sl,
	}
	require.NoError(t, h.engine.Load(context.Background(), InitialState{
		Levels:    ladderLevels(),
		Trends:    []domain.Trend{{ID: 1, Direction: domain.TrendUp, Kind: domain.TrendNormal}},
		Positions: []*domain.Position{prev},
	}))

	stopLossRound(t, h)
	trends := h.engine.Snapshot().Trends
	require.Len(t, trends, 2, "stop loss before the restart counts")
	assert.True(t, trends[1].IsCorrection())
}

func TestNew_ValidatesDependencies(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}
