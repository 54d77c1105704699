package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levelBot/internal/domain"
	"levelBot/internal/ladder"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func testLevels() []domain.Level {
	return []domain.Level{
		{ID: 1, Value: 100, Status: domain.LevelEnabled},
		{ID: 2, Value: 105, Status: domain.LevelEnabled},
		{ID: 3, Value: 110, Status: domain.LevelEnabled},
		{ID: 4, Value: 115, Status: domain.LevelEnabled},
	}
}

func fill(price float64, side domain.OrderSide) *domain.PlacedOrder {
	return &domain.PlacedOrder{ExchangeOrderID: "x", Side: side, Quantity: 1, ExecutedPrice: price, ExecutedAt: testNow}
}

func openAt(t *testing.T, level domain.Level, rule domain.RuleID) *domain.Position {
	t.Helper()
	tr, err := Open(nil, testLevels(), level, rule, domain.Buy, domain.NewClosingRuleSet(domain.DefaultClosingRules...), testNow)
	require.NoError(t, err)
	return tr.Complete(fill(level.Value+1, domain.Buy))
}

func TestOpen(t *testing.T) {
	levels := testLevels()
	tr, err := Open(nil, levels, levels[1], domain.RuleFirstTouch, domain.Buy, domain.NewClosingRuleSet(domain.DefaultClosingRules...), testNow)
	require.NoError(t, err)

	assert.Equal(t, KindOpen, tr.Kind)
	assert.Nil(t, tr.Before)
	assert.Equal(t, domain.StatusOpenPartial, tr.After.Status)
	assert.False(t, tr.After.AvailableOpeningRules.Has(domain.RuleFirstTouch))
	assert.Equal(t, 2, tr.After.AvailableOpeningRules.Len())
	assert.NotEmpty(t, tr.After.Ref)
	assert.Zero(t, tr.After.ID)
	assert.Empty(t, tr.After.Orders, "order is added only once filled")

	pos := tr.Complete(fill(106, domain.Buy))
	require.Len(t, pos.Orders, 1)
	assert.Equal(t, string(domain.RuleFirstTouch), pos.Orders[0].Rule)
	assert.Equal(t, 106.0, pos.Orders[0].ExecutedPrice)
	assert.NotEmpty(t, pos.Orders[0].Ref)
	assert.Empty(t, tr.After.Orders, "Complete must not touch the prepared state")

	_, err = Open(pos, levels, levels[1], domain.RuleMidRetrace, domain.Buy, domain.NewClosingRuleSet(), testNow)
	assert.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestAverage_ConsumesOneRulePerStep(t *testing.T) {
	levels := testLevels()
	pos := openAt(t, levels[1], domain.RuleFirstTouch)

	steps := []struct {
		rule       domain.RuleID
		wantLen    int
		wantStatus domain.PositionStatus
	}{
		{rule: domain.RuleMidRetrace, wantLen: 1, wantStatus: domain.StatusOpenPartial},
		{rule: domain.RuleDeepRetrace, wantLen: 0, wantStatus: domain.StatusOpenFull},
	}

	for _, step := range steps {
		before := pos.AvailableOpeningRules.Len()
		tr, err := Average(pos, levels, step.rule, domain.Buy, testNow)
		require.NoError(t, err)

		pos = tr.Complete(fill(104, domain.Buy))
		levels = tr.Levels
		assert.Equal(t, before-1, pos.AvailableOpeningRules.Len())
		assert.Equal(t, step.wantLen, pos.AvailableOpeningRules.Len())
		assert.Equal(t, step.wantStatus, pos.Status)
		assert.False(t, pos.AvailableOpeningRules.Has(step.rule))
	}

	lvl, ok := ladder.Find(levels, 2)
	require.True(t, ok)
	assert.True(t, lvl.IsDisabled(), "full position disables its open level")
	assert.True(t, pos.OpenLevel.IsDisabled())
	assert.Len(t, pos.Orders, 3)

	_, err := Average(pos, levels, domain.RuleFirstTouch, domain.Buy, testNow)
	assert.ErrorIs(t, err, ErrNotPartial)
}

func TestAverage_Rejections(t *testing.T) {
	levels := testLevels()
	pos := openAt(t, levels[1], domain.RuleFirstTouch)

	_, err := Average(nil, levels, domain.RuleMidRetrace, domain.Buy, testNow)
	assert.ErrorIs(t, err, ErrNotOpen)

	_, err = Average(pos, levels, domain.RuleFirstTouch, domain.Buy, testNow)
	assert.ErrorIs(t, err, ErrRuleConsumed)

	closed := pos.Clone()
	closed.Status = domain.StatusClosed
	_, err = Average(closed, levels, domain.RuleMidRetrace, domain.Buy, testNow)
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestClose_LevelSideEffects(t *testing.T) {
	candidate := domain.Level{ID: 4, Value: 115, Status: domain.LevelEnabled}

	tests := []struct {
		name            string
		rule            domain.ClosingRuleID
		candidate       *domain.Level
		wantClosedLevel int64 // 0 when none
		wantDisabled    []int64
	}{
		{name: "take profit disables the target", rule: domain.CloseTakeProfit, candidate: &candidate, wantClosedLevel: 4, wantDisabled: []int64{4}},
		{name: "50 percent disables the open level", rule: domain.CloseTrail50Percent, wantClosedLevel: 2, wantDisabled: []int64{2}},
		{name: "3 ticks re-enables the open level", rule: domain.CloseTrail3Ticks},
		{name: "hard stop re-enables the open level", rule: domain.CloseHardStopLoss},
		{name: "market phase end leaves the ladder", rule: domain.CloseMarketPhaseEnd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			levels := testLevels()
			pos := openAt(t, levels[1], domain.RuleFirstTouch)

			tr, err := Close(pos, levels, tt.rule, tt.candidate, domain.Sell, testNow)
			require.NoError(t, err)
			closed := tr.Complete(fill(104, domain.Sell))

			assert.Equal(t, domain.StatusClosed, closed.Status)
			assert.Equal(t, tt.rule, closed.ClosedBy())
			assert.False(t, closed.ClosingRules.Has(tt.rule))
			require.Len(t, closed.Orders, 2)
			assert.Equal(t, string(tt.rule), closed.Orders[1].Rule)

			if tt.wantClosedLevel == 0 {
				assert.Nil(t, closed.ClosedLevel)
			} else {
				require.NotNil(t, closed.ClosedLevel)
				assert.Equal(t, tt.wantClosedLevel, closed.ClosedLevel.ID)
			}

			for _, l := range tr.Levels {
				assert.Equal(t, contains(tt.wantDisabled, l.ID), l.IsDisabled(), "level %d", l.ID)
			}
		})
	}
}

func TestClose_ReenablesLevelOfFullPosition(t *testing.T) {
	levels := ladder.WithStatus(testLevels(), 2, domain.LevelDisabledDuringSession)
	pos := openAt(t, levels[1], domain.RuleFirstTouch)
	pos.Status = domain.StatusOpenFull

	tr, err := Close(pos, levels, domain.CloseTrail3Ticks, nil, domain.Sell, testNow)
	require.NoError(t, err)

	lvl, _ := ladder.Find(tr.Levels, 2)
	assert.False(t, lvl.IsDisabled())
	assert.Equal(t, domain.LevelEnabled, tr.After.OpenLevel.Status)
}

func TestClose_IsTerminal(t *testing.T) {
	levels := testLevels()
	pos := openAt(t, levels[1], domain.RuleFirstTouch)
	tr, err := Close(pos, levels, domain.CloseTrail3Ticks, nil, domain.Sell, testNow)
	require.NoError(t, err)
	closed := tr.Complete(fill(104, domain.Sell))

	_, err = Close(closed, levels, domain.CloseHardStopLoss, nil, domain.Sell, testNow)
	assert.ErrorIs(t, err, ErrAlreadyClosed)
	_, err = Close(closed, levels, domain.CloseMarketPhaseEnd, nil, domain.Sell, testNow)
	assert.ErrorIs(t, err, ErrAlreadyClosed)
	_, err = Average(closed, levels, domain.RuleMidRetrace, domain.Buy, testNow)
	assert.ErrorIs(t, err, ErrAlreadyClosed)

	_, err = Close(nil, levels, domain.CloseTrail3Ticks, nil, domain.Sell, testNow)
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestClose_RuleMustBeEnabled(t *testing.T) {
	levels := testLevels()
	pos := openAt(t, levels[1], domain.RuleFirstTouch)
	pos.ClosingRules = pos.ClosingRules.Without(domain.CloseTrail3Ticks)

	_, err := Close(pos, levels, domain.CloseTrail3Ticks, nil, domain.Sell, testNow)
	assert.ErrorIs(t, err, ErrRuleDisabled)

	_, err = Close(pos, levels, domain.CloseTakeProfit, nil, domain.Sell, testNow)
	assert.ErrorIs(t, err, ErrMissingLevel)
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
