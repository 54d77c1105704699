package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"levelBot/internal/domain"
	"levelBot/internal/replay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicksCSV_WriteRead(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 123000000, time.UTC)
	ticks := []domain.Tick{
		{Symbol: "BTCUSDT", Price: 100.5, Time: at},
		{Symbol: "BTCUSDT", Price: 99.25, Time: at.Add(time.Second)},
	}
	path := filepath.Join(t.TempDir(), "nested", "ticks.csv")

	require.NoError(t, WriteTicksToCSV(ticks, path))
	got, err := ReadTicksFromCSV(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 100.5, got[0].Price)
	assert.True(t, at.Equal(got[0].Time))
	assert.Equal(t, "BTCUSDT", got[1].Symbol)
}

func TestReadTicks_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "wrong header", input: "a,b,c\n"},
		{name: "bad price", input: "time,symbol,price\n2026-03-02T10:00:00Z,BTCUSDT,abc\n"},
		{name: "bad time", input: "time,symbol,price\nyesterday,BTCUSDT,1\n"},
		{name: "short row", input: "time,symbol,price\n2026-03-02T10:00:00Z,BTCUSDT\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTicks(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestWriteTradesToCSV(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "trades.csv")
	trades := []replay.Trade{{
		PositionID: 7,
		Direction:  "LONG",
		OpenLevel:  105,
		EntryPrice: 106,
		ExitPrice:  104,
		Quantity:   0.5,
		Orders:     2,
		PNL:        -1,
		ClosedBy:   domain.CloseTrail3Ticks,
		EntryTime:  at,
		ExitTime:   at.Add(time.Minute),
	}}

	require.NoError(t, WriteTradesToCSV(trades, path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "PositionID,Direction,OpenLevel"))
	assert.Contains(t, lines[1], "7,LONG,105,106.00000000,104.00000000,0.5,2,-1.00000000,"+string(domain.CloseTrail3Ticks))
	assert.True(t, strings.HasSuffix(lines[1], "2026-03-02T10:00:00Z,2026-03-02T10:01:00Z"))
}
