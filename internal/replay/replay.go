// Package replay runs recorded ticks through the engine and summarizes the
// closed positions.
package replay

import (
	"context"
	"fmt"
	"time"

	"levelBot/internal/domain"
	"levelBot/internal/engine"
	"levelBot/internal/ladder"
	"levelBot/internal/position"
)

// TickEngine is the part of the engine a replay drives.
type TickEngine interface {
	OnTick(ctx context.Context, tick domain.Tick) engine.Result
}

// Trade is one closed position of a replay.
type Trade struct {
	PositionID int64
	Direction  string
	OpenLevel  float64
	EntryPrice float64 // quantity weighted
	ExitPrice  float64
	Quantity   float64
	Orders     int
	PNL        float64
	ClosedBy   domain.ClosingRuleID
	EntryTime  time.Time
	ExitTime   time.Time
}

// Result holds the outcome of a replay.
type Result struct {
	Ticks         int
	Decisions     map[position.Kind]int
	Closes        map[domain.ClosingRuleID]int
	OrderFailures int
	ConfigFaults  int
	Disabled      bool // the engine switched itself off during the replay

	Trades        []Trade
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	TotalProfit   float64
	MaxDrawdown   float64 // largest drop of cumulative profit from its peak
	ProfitFactor  float64
}

// Run feeds ticks in order. observe, when set, sees each tick before the
// engine. Ticks must not go back in time.
func Run(ctx context.Context, eng TickEngine, ticks []domain.Tick, observe func(domain.Tick)) (*Result, error) {
	res := &Result{
		Decisions: make(map[position.Kind]int),
		Closes:    make(map[domain.ClosingRuleID]int),
	}

	var last time.Time
	for i, tick := range ticks {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if tick.Time.Before(last) {
			return res, fmt.Errorf("tick %d at %s is older than the previous tick", i, tick.Time.Format(time.RFC3339Nano))
		}
		last = tick.Time

		if observe != nil {
			observe(tick)
		}
		r := eng.OnTick(ctx, tick)
		res.Ticks++
		res.record(r)
	}
	res.finish()
	return res, nil
}

func (res *Result) record(r engine.Result) {
	switch r.Kind {
	case engine.OrderFailed:
		res.OrderFailures++
	case engine.ConfigFault:
		res.ConfigFaults++
	case engine.Disabled:
		res.Disabled = true
	}
	if !r.Acted() {
		return
	}
	res.Decisions[r.Action]++
	if r.Action == position.KindClose && r.Position.IsClosed() {
		res.Closes[r.Position.ClosedBy()]++
		res.Trades = append(res.Trades, tradeOf(r.Position))
	}
}

func (res *Result) finish() {
	var peak, equity, grossWin, grossLoss float64
	for _, t := range res.Trades {
		if t.PNL > 0 {
			res.WinningTrades++
			grossWin += t.PNL
		} else {
			res.LosingTrades++
			grossLoss -= t.PNL
		}
		equity += t.PNL
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > res.MaxDrawdown {
			res.MaxDrawdown = dd
		}
	}
	res.TotalProfit = equity
	if n := len(res.Trades); n > 0 {
		res.WinRate = float64(res.WinningTrades) / float64(n)
	}
	if grossLoss > 0 {
		res.ProfitFactor = grossWin / grossLoss
	}
}

func tradeOf(pos *domain.Position) Trade {
	t := Trade{
		PositionID: pos.ID,
		OpenLevel:  pos.OpenLevel.Value,
		EntryPrice: pos.AverageEntryPrice(),
		Orders:     len(pos.Orders),
		ClosedBy:   pos.ClosedBy(),
		EntryTime:  pos.CreatedAt,
		ExitTime:   pos.UpdatedAt,
	}
	if len(pos.Orders) == 0 {
		return t
	}
	openSide := pos.Orders[0].Side
	isShort := openSide == domain.Sell
	t.Direction = "LONG"
	if isShort {
		t.Direction = "SHORT"
	}
	for _, o := range pos.Orders {
		if o.Side == openSide {
			t.Quantity += o.Quantity
		}
	}
	exit := pos.Orders[len(pos.Orders)-1]
	t.ExitPrice = exit.ExecutedPrice
	t.ExitTime = exit.CreatedAt
	// the close flattens the whole position
	t.PNL = ladder.Favorable(t.ExitPrice, t.EntryPrice, isShort) * t.Quantity
	return t
}
