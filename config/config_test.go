package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"levelBot/internal/adapters/logger"
	"levelBot/internal/domain"
	"levelBot/internal/rules"
	"levelBot/internal/trend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStrategy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_DryRunDefaults(t *testing.T) {
	t.Setenv("DRY_RUN", "true")
	t.Setenv("SYMBOL", "ethusdt")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, "levelbot", cfg.RedisKeyPrefix)
	require.NotNil(t, cfg.Strategy)
	assert.Equal(t, rules.DefaultParams(), cfg.Strategy.Rules)

	w, err := cfg.Session()
	require.NoError(t, err)
	assert.Equal(t, "always", w.String())
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "live needs keys", env: map[string]string{"DRY_RUN": "false"}, want: "BINANCE_API_KEY must be set"},
		{name: "bad quantity", env: map[string]string{"DRY_RUN": "true", "QUANTITY": "-1"}, want: "QUANTITY must be positive"},
		{name: "half session", env: map[string]string{"DRY_RUN": "true", "SESSION_START": "09:00"}, want: "SESSION_START and SESSION_END"},
		{name: "bad session zone", env: map[string]string{"DRY_RUN": "true", "SESSION_START": "09:00", "SESSION_END": "17:00", "SESSION_TZ": "Nowhere/City"}, want: "time zone"},
		{name: "telegram pair", env: map[string]string{"DRY_RUN": "true", "TELEGRAM_BOT_TOKEN": "x"}, want: "TELEGRAM_CHAT_ID"},
		{name: "bad chat id", env: map[string]string{"DRY_RUN": "true", "TELEGRAM_BOT_TOKEN": "x", "TELEGRAM_CHAT_ID": "abc"}, want: "invalid TELEGRAM_CHAT_ID"},
		{name: "missing strategy file", env: map[string]string{"DRY_RUN": "true", "STRATEGY_FILE": "/nonexistent/strategy.yaml"}, want: "strategy file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BINANCE_API_KEY", "")
			t.Setenv("BINANCE_API_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadStrategy_File(t *testing.T) {
	path := writeStrategy(t, `
levels: [100, 105.5, 110]
initial_trend: down
correction_polarity: same
closing_rules: [take_profit, HARD_STOP_LOSS]
rules:
  tick_size: 0.5
  trail_3_ticks: 4
`)
	s, err := LoadStrategy(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 105.5, 110}, s.Levels)
	assert.Equal(t, domain.TrendDown, s.InitialTrend)
	assert.Equal(t, trend.PolaritySame, s.Polarity)
	assert.Equal(t, []domain.ClosingRuleID{domain.CloseTakeProfit, domain.CloseHardStopLoss}, s.ClosingRules)
	assert.Equal(t, 0.5, s.Rules.TickSize)
	assert.Equal(t, 4, s.Rules.Trail3Ticks)
	assert.Equal(t, rules.DefaultParams().StopLossDistance, s.Rules.StopLossDistance, "unset values keep defaults")
}

func TestLoadStrategy_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "forced rule", body: "closing_rules: [MARKET_PHASE_END]"},
		{name: "unknown rule", body: "closing_rules: [MOON]"},
		{name: "bad trend", body: "initial_trend: SIDEWAYS"},
		{name: "bad polarity", body: "correction_polarity: inverse"},
		{name: "negative level", body: "levels: [-1]"},
		{name: "bad params", body: "rules:\n  tick_size: 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadStrategy(writeStrategy(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadStrategy_Defaults(t *testing.T) {
	s, err := LoadStrategy("")
	require.NoError(t, err)
	assert.Empty(t, s.Levels)
	assert.Equal(t, domain.TrendUp, s.InitialTrend)
	assert.Equal(t, trend.PolarityOpposite, s.Polarity)
	assert.Equal(t, domain.DefaultClosingRules, s.ClosingRules)
}
