package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"levelBot/config"
	"levelBot/internal/adapters/binanceclient"
	"levelBot/internal/adapters/logger"
	"levelBot/internal/utils"
)

func main() {
	hours := flag.Int("hours", 24, "how many hours back to fetch")
	out := flag.String("out", "", "output file, derived from symbol and range when empty")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewZeroLogger(logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	end := time.Now().UTC()
	start := end.Add(-time.Duration(*hours) * time.Hour)

	fmt.Printf("Fetching trades for %s from %s to %s...\n", cfg.Symbol, start.Format(time.RFC3339), end.Format(time.RFC3339))
	ticks, err := binanceClient.GetAggTradesRange(context.Background(), cfg.Symbol, start, end)
	if err != nil {
		appLogger.Error(context.Background(), err, "Error fetching trades")
		log.Fatalf("Error fetching trades: %v", err)
	}
	appLogger.Info(context.Background(), "Fetched trades", map[string]interface{}{"count": len(ticks)})

	filename := *out
	if filename == "" {
		filename = fmt.Sprintf("data/%s_ticks_%s_to_%s.csv", cfg.Symbol, start.Format("20060102T1504"), end.Format("20060102T1504"))
	}
	if err := utils.WriteTicksToCSV(ticks, filename); err != nil {
		appLogger.Error(context.Background(), err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(context.Background(), "Saved to", map[string]interface{}{"filename": filename})
}
