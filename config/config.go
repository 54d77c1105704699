package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"levelBot/internal/adapters/logger"
	"levelBot/internal/session"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Trading
	Symbol   string
	Quantity float64 // fixed size of every order
	DryRun   bool    // fill orders locally instead of on the exchange

	// Trading session (empty start and end trade around the clock)
	SessionStart string
	SessionEnd   string
	SessionTZ    string

	// Strategy file (YAML), optional
	StrategyFile string
	Strategy     *Strategy

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel
	LogJSON  bool

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	// Alerts
	TelegramToken  string
	TelegramChatID int64

	// Read-side projection
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	// Status API, empty disables it
	StatusAddr string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Trading
	cfg.DryRun = getEnvAsBool("DRY_RUN", false)
	cfg.Symbol = strings.ToUpper(getEnv("SYMBOL", "BTCUSDT"))
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}
	cfg.Quantity, err = getEnvAsFloatRequired("QUANTITY", 0.001)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid QUANTITY: %v", err))
	} else if cfg.Quantity <= 0 {
		errs = append(errs, "QUANTITY must be positive")
	}

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	if !cfg.DryRun {
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set")
		}
	}

	// Session
	cfg.SessionStart = getEnv("SESSION_START", "")
	cfg.SessionEnd = getEnv("SESSION_END", "")
	cfg.SessionTZ = getEnv("SESSION_TZ", "UTC")
	if (cfg.SessionStart == "") != (cfg.SessionEnd == "") {
		errs = append(errs, "SESSION_START and SESSION_END must be set together")
	} else if _, err := cfg.Session(); err != nil {
		errs = append(errs, err.Error())
	}

	// Strategy
	cfg.StrategyFile = getEnv("STRATEGY_FILE", "")
	cfg.Strategy, err = LoadStrategy(cfg.StrategyFile)
	if err != nil {
		errs = append(errs, err.Error())
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/levelbot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogJSON = getEnvAsBool("LOG_JSON", false)

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Alerts
	cfg.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	if chat := getEnv("TELEGRAM_CHAT_ID", ""); chat != "" {
		cfg.TelegramChatID, err = strconv.ParseInt(chat, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid TELEGRAM_CHAT_ID: %v", err))
		}
	}
	if (cfg.TelegramToken == "") != (cfg.TelegramChatID == 0) {
		errs = append(errs, "TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}

	// Redis
	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvAsIntRequired("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REDIS_DB: %v", err))
	}
	cfg.RedisKeyPrefix = getEnv("REDIS_KEY_PREFIX", "levelbot")

	cfg.StatusAddr = getEnv("STATUS_ADDR", ":8080")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// Session builds the trading window from the session settings.
func (c *Config) Session() (*session.Window, error) {
	return session.NewWindow(c.SessionStart, c.SessionEnd, c.SessionTZ)
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Set but invalid is an error, unlike unset
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
