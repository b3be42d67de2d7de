package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from the environment.
// Engine tuning parameters live in a separate YAML file, see LoadEngineConfig.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Trading Parameters
	Symbol   string
	Leverage int
	QtyStep  float64 // Exchange quantity step size, e.g. 0.001 for ETHUSDT

	// Timeframes. Entry drives signal evaluation; the higher frames feed
	// trend alignment and confirmation.
	EntryInterval   string
	PrimaryInterval string
	Trend1Interval  string
	Trend2Interval  string
	ContextInterval string

	// Engine tuning
	EngineConfigPath string // YAML file; empty means built-in defaults
	KillSwitchPath   string // presence of this file halts all entries

	// Database
	DBPath string

	// Logging
	LogLevel string

	// Telegram (optional; notifications are dropped when unset)
	TelegramBotToken string
	TelegramChatID   string
	TelegramProxyURL string

	// Metrics
	MetricsAddr string // Prometheus listen address, empty disables the endpoint

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	// Other
	MinAvailableBalance float64 // Minimum available balance required for trading
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Trading Parameters
	cfg.Symbol = getEnv("SYMBOL", "ETHUSDT")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}

	cfg.Leverage, err = getEnvAsIntRequired("LEVERAGE", 4)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LEVERAGE: %v", err))
	} else if cfg.Leverage <= 0 {
		errs = append(errs, "LEVERAGE must be positive")
	}

	cfg.QtyStep, err = getEnvAsFloatRequired("QTY_STEP", 0.001)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid QTY_STEP: %v", err))
	} else if cfg.QtyStep <= 0 {
		errs = append(errs, "QTY_STEP must be positive")
	}

	// Timeframes
	cfg.EntryInterval = getEnv("ENTRY_INTERVAL", "1m")
	cfg.PrimaryInterval = getEnv("PRIMARY_INTERVAL", "15m")
	cfg.Trend1Interval = getEnv("TREND1_INTERVAL", "1h")
	cfg.Trend2Interval = getEnv("TREND2_INTERVAL", "4h")
	cfg.ContextInterval = getEnv("CONTEXT_INTERVAL", "1d")
	for _, iv := range []string{cfg.EntryInterval, cfg.PrimaryInterval, cfg.Trend1Interval, cfg.Trend2Interval, cfg.ContextInterval} {
		if iv == "" {
			errs = append(errs, "all timeframe intervals must be set")
			break
		}
	}

	// Engine tuning
	cfg.EngineConfigPath = getEnv("ENGINE_CONFIG_PATH", "")
	cfg.KillSwitchPath = getEnv("KILL_SWITCH_PATH", "./data/killswitch")

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/fusionbot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "INFO")

	// Telegram
	cfg.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	cfg.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", "")
	cfg.TelegramProxyURL = getEnv("TELEGRAM_PROXY_URL", "")
	if (cfg.TelegramBotToken == "") != (cfg.TelegramChatID == "") {
		errs = append(errs, "TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}

	// Metrics
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

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

	// Other
	cfg.MinAvailableBalance, err = getEnvAsFloatRequired("MIN_AVAILABLE_BALANCE", 100.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_AVAILABLE_BALANCE: %v", err))
	} else if cfg.MinAvailableBalance < 0 {
		errs = append(errs, "MIN_AVAILABLE_BALANCE cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
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
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
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
