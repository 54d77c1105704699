package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"levelBot/config"
	"levelBot/internal/adapters/logger"
	"levelBot/internal/adapters/paper"
	"levelBot/internal/adapters/redisstate"
	"levelBot/internal/adapters/sqlite"
	"levelBot/internal/adapters/telegram"
	"levelBot/internal/app"
	"levelBot/internal/domain"
	"levelBot/internal/engine"
	"levelBot/internal/metrics"
	"levelBot/internal/position"
	"levelBot/internal/replay"
	"levelBot/internal/utils"
)

func main() {
	ticksFile := flag.String("ticks", "", "tick CSV written by fetch_ticks (required)")
	strategyFile := flag.String("strategy", "", "strategy YAML file, defaults when empty")
	symbol := flag.String("symbol", "BTCUSDT", "symbol of the replayed ticks")
	quantity := flag.Float64("quantity", 1, "quantity filled per order")
	dbPath := flag.String("db", "", "database file, a temporary one when empty")
	sessionStart := flag.String("session-start", "", "session start HH:MM, trade around the clock when empty")
	sessionEnd := flag.String("session-end", "", "session end HH:MM")
	sessionTZ := flag.String("session-tz", "UTC", "session time zone")
	tradesOut := flag.String("trades", "", "write closed trades to this CSV file")
	logLevel := flag.String("log-level", "WARN", "log level")
	flag.Parse()

	if *ticksFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	appLogger := logger.NewZeroLogger(logger.Options{Level: logger.ParseLevel(*logLevel)})
	ctx := context.Background()

	cfg := &config.Config{
		Symbol:       strings.ToUpper(*symbol),
		Quantity:     *quantity,
		DryRun:       true,
		SessionStart: *sessionStart,
		SessionEnd:   *sessionEnd,
		SessionTZ:    *sessionTZ,
		StrategyFile: *strategyFile,
	}
	strategy, err := config.LoadStrategy(cfg.StrategyFile)
	if err != nil {
		log.Fatalf("FATAL: Failed to load strategy: %v", err)
	}
	cfg.Strategy = strategy
	clock, err := cfg.Session()
	if err != nil {
		log.Fatalf("FATAL: Invalid trading session: %v", err)
	}

	ticks, err := utils.ReadTicksFromCSV(*ticksFile)
	if err != nil {
		log.Fatalf("FATAL: Failed to read ticks: %v", err)
	}
	appLogger.Info(ctx, "Loaded ticks", map[string]interface{}{"file": *ticksFile, "count": len(ticks)})

	path := *dbPath
	if path == "" {
		dir, err := os.MkdirTemp("", "levelbot-replay-*")
		if err != nil {
			log.Fatalf("FATAL: Failed to create temp dir: %v", err)
		}
		defer os.RemoveAll(dir)
		path = filepath.Join(dir, "replay.db")
	}
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: path, Symbol: cfg.Symbol, Logger: appLogger.With("sqlite")})
	if err != nil {
		log.Fatalf("FATAL: Failed to open database: %v", err)
	}
	defer repo.Close()

	stateStore, err := redisstate.New(redisstate.Config{Symbol: cfg.Symbol, Logger: appLogger.With("state")})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize state store: %v", err)
	}

	placer := paper.NewPlacer(cfg.Quantity)
	eng, err := engine.New(app.EngineConfig(cfg), engine.Deps{
		Placer:     placer,
		Store:      repo,
		StateStore: stateStore,
		Notifier:   telegram.LogNotifier{Logger: appLogger.With("alerts")},
		Clock:      clock,
		Logger:     appLogger.With("engine"),
		Metrics:    metrics.New(),
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize engine: %v", err)
	}

	init, err := app.LoadInitialState(ctx, repo, cfg.Strategy, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to load engine state: %v", err)
	}
	if err := eng.Load(ctx, init); err != nil {
		log.Fatalf("FATAL: Failed to load engine: %v", err)
	}

	result, err := replay.Run(ctx, eng, ticks, placer.Observe)
	if err != nil {
		log.Fatalf("FATAL: Replay stopped after %d ticks: %v", result.Ticks, err)
	}

	printResult(result)

	if *tradesOut != "" {
		if err := utils.WriteTradesToCSV(result.Trades, *tradesOut); err != nil {
			log.Fatalf("FATAL: Failed to write trades: %v", err)
		}
		fmt.Printf("Trades saved to %s\n", *tradesOut)
	}
}

func printResult(r *replay.Result) {
	fmt.Printf("Ticks: %d\n", r.Ticks)
	fmt.Printf("Decisions: open %d, average %d, close %d\n",
		r.Decisions[position.KindOpen], r.Decisions[position.KindAverage], r.Decisions[position.KindClose])
	fmt.Printf("Order failures: %d, config faults: %d, disabled: %v\n", r.OrderFailures, r.ConfigFaults, r.Disabled)
	fmt.Printf("Trades: %d (won %d, lost %d, win rate %.2f%%)\n",
		len(r.Trades), r.WinningTrades, r.LosingTrades, r.WinRate*100)
	fmt.Printf("Total PnL: %.4f, max drawdown: %.4f, profit factor: %.2f\n",
		r.TotalProfit, r.MaxDrawdown, r.ProfitFactor)

	if len(r.Closes) > 0 {
		fmt.Println("\nCloses by rule:")
		for _, rule := range []domain.ClosingRuleID{domain.CloseTakeProfit, domain.CloseTrail50Percent, domain.CloseTrail3Ticks, domain.CloseHardStopLoss, domain.CloseMarketPhaseEnd} {
			if n := r.Closes[rule]; n > 0 {
				fmt.Printf("%s\t%d\n", rule, n)
			}
		}
	}
}
