package app

import (
	"context"
	"fmt"
	"time"

	"levelBot/config"
	"levelBot/internal/domain"
	"levelBot/internal/engine"
	"levelBot/internal/ladder"
	"levelBot/internal/ports"
)

// LoadInitialState reads everything the engine needs from the store. An empty
// ladder or trend log is seeded from the strategy. Levels referenced by past
// positions but missing from the ladder are added back so closed positions
// still resolve.
func LoadInitialState(ctx context.Context, store ports.Store, strategy *config.Strategy, logger ports.Logger) (engine.InitialState, error) {
	var init engine.InitialState

	levels, err := store.ListLevels(ctx)
	if err != nil {
		return init, fmt.Errorf("list levels: %w", err)
	}
	if len(levels) == 0 && len(strategy.Levels) > 0 {
		for _, v := range strategy.Levels {
			if _, err := store.CreateLevel(ctx, v); err != nil {
				return init, fmt.Errorf("seed level %v: %w", v, err)
			}
		}
		if levels, err = store.ListLevels(ctx); err != nil {
			return init, fmt.Errorf("list seeded levels: %w", err)
		}
		logger.Info(ctx, "Ladder seeded from strategy", map[string]interface{}{"levels": len(levels)})
	}

	trends, err := store.ListTrends(ctx)
	if err != nil {
		return init, fmt.Errorf("list trends: %w", err)
	}
	if len(trends) == 0 {
		t := domain.Trend{Direction: strategy.InitialTrend, Kind: domain.TrendNormal, CreatedAt: time.Now().UTC()}
		id, err := store.CreateTrend(ctx, &t)
		if err != nil {
			return init, fmt.Errorf("seed trend: %w", err)
		}
		t.ID = id
		trends = []domain.Trend{t}
		logger.Info(ctx, "Trend log seeded from strategy", map[string]interface{}{"direction": t.Direction})
	}

	positions, err := store.FindRecentPositions(ctx, historyLimit)
	if err != nil {
		return init, fmt.Errorf("find recent positions: %w", err)
	}

	disabled, err := store.IsDisabled(ctx)
	if err != nil {
		return init, fmt.Errorf("read disabled flag: %w", err)
	}

	init.Levels = ladder.Merge(levels, relatedLevels(positions))
	if added := len(init.Levels) - len(levels); added > 0 {
		logger.Warn(ctx, "Restored levels referenced by past positions", map[string]interface{}{"added": added})
	}
	init.Trends = trends
	init.Positions = positions
	init.Disabled = disabled
	return init, nil
}

func relatedLevels(positions []*domain.Position) []domain.Level {
	var out []domain.Level
	for _, p := range positions {
		out = append(out, p.OpenLevel)
		if p.ClosedLevel != nil {
			out = append(out, *p.ClosedLevel)
		}
	}
	return out
}

// EngineConfig maps the loaded configuration onto the engine settings.
func EngineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		Symbol:       cfg.Symbol,
		Rules:        cfg.Strategy.Rules,
		ClosingRules: cfg.Strategy.ClosingRules,
		Polarity:     cfg.Strategy.Polarity,
	}
}
