package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"time"

	"github.com/redis/go-redis/v9"

	"levelBot/config"
	"levelBot/internal/adapters/binanceclient"
	"levelBot/internal/adapters/logger"
	"levelBot/internal/adapters/paper"
	"levelBot/internal/adapters/redisstate"
	"levelBot/internal/adapters/sqlite"
	"levelBot/internal/adapters/statusapi"
	"levelBot/internal/adapters/telegram"
	"levelBot/internal/app"
	"levelBot/internal/engine"
	"levelBot/internal/metrics"
	"levelBot/internal/ports"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewZeroLogger(logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Symbol: cfg.Symbol,
		Logger: appLogger.With("sqlite"),
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized")

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger.With("binance"),
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(ctx, "Binance client initialized")

	// 5. Order placer: local fills in dry run, market orders otherwise
	var placer ports.OrderPlacer
	var paperPlacer *paper.Placer
	if cfg.DryRun {
		paperPlacer = paper.NewPlacer(cfg.Quantity)
		placer = paperPlacer
		appLogger.Warn(ctx, "Dry run enabled, orders are filled locally")
	} else {
		placer, err = binanceclient.NewPlacer(binanceClient, cfg.Symbol, cfg.Quantity, appLogger.With("placer"))
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize order placer")
			log.Fatalf("FATAL: Failed to initialize order placer: %v", err)
		}
	}

	// 6. Alerts
	var notifier ports.Notifier = telegram.LogNotifier{Logger: appLogger.With("alerts")}
	if cfg.TelegramToken != "" {
		tg, err := telegram.New(telegram.Config{
			Token:  cfg.TelegramToken,
			ChatID: cfg.TelegramChatID,
			Prefix: cfg.Symbol,
			Logger: appLogger.With("telegram"),
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize Telegram notifier")
			log.Fatalf("FATAL: Failed to initialize Telegram notifier: %v", err)
		}
		alertsDone := make(chan struct{})
		go func() {
			defer close(alertsDone)
			tg.Run(ctx)
		}()
		defer func() {
			cancel()
			<-alertsDone // queued alerts are flushed on cancel
		}()
		notifier = tg
	}

	// 7. Read-side projection
	stateCfg := redisstate.Config{
		Symbol:    cfg.Symbol,
		KeyPrefix: cfg.RedisKeyPrefix,
		Logger:    appLogger.With("state"),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		stateCfg.Client = rdb
	}
	stateStore, err := redisstate.New(stateCfg)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize state store")
		log.Fatalf("FATAL: Failed to initialize state store: %v", err)
	}

	// 8. Engine
	clock, err := cfg.Session()
	if err != nil {
		log.Fatalf("FATAL: Invalid trading session: %v", err)
	}
	m := metrics.New()
	eng, err := engine.New(app.EngineConfig(cfg), engine.Deps{
		Placer:     placer,
		Store:      repo,
		StateStore: stateStore,
		Notifier:   notifier,
		Clock:      clock,
		Logger:     appLogger.With("engine"),
		Metrics:    m,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize engine")
		log.Fatalf("FATAL: Failed to initialize engine: %v", err)
	}
	appLogger.Info(ctx, "Engine initialized", map[string]interface{}{"session": clock.String()})

	// 9. Status API
	if cfg.StatusAddr != "" {
		status, err := statusapi.New(statusapi.Config{
			Addr:    cfg.StatusAddr,
			Symbol:  cfg.Symbol,
			Source:  eng,
			Metrics: m.Handler(),
			Checks:  map[string]statusapi.HealthCheck{"database": repo.Ping, "exchange": binanceClient.Ping},
			Logger:  appLogger.With("status"),
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize status server")
			log.Fatalf("FATAL: Failed to initialize status server: %v", err)
		}
		go func() {
			if err := status.Start(); err != nil {
				appLogger.Error(context.Background(), err, "Status server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := status.Shutdown(shutdownCtx); err != nil {
				appLogger.Error(shutdownCtx, err, "Error shutting down status server")
			}
		}()
	}

	// 10. Initialize Application Service
	tradingService, err := app.NewTradingService(cfg, appLogger.With("service"), binanceClient, repo, eng, m)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	if paperPlacer != nil {
		tradingService.SetTickObserver(paperPlacer.Observe)
	}
	appLogger.Info(ctx, "Trading service initialized")

	// 11. Start the Service
	if err := tradingService.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
