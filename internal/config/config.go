// Package config loads process configuration from a config file,
// environment variables, and flags, following the teacher's
// flag-then-env-override convention.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the process-wide static configuration. Mutable runtime
// settings (trading_paused, execution_mode, ...) live in the settings
// table instead — see internal/model.DefaultSettings.
type Config struct {
	Host string
	Port int

	DBPath string // BOT_DB

	DisableLoop      bool // APP_DISABLE_LOOP
	DisableOptimizer bool // APP_DISABLE_OPTIMIZER
	DisableEvolution bool // APP_DISABLE_EVOLUTION
	DisableAlerts    bool // APP_DISABLE_ALERTS

	BinanceTestnetAPIKey    string
	BinanceTestnetAPISecret string

	SecretKey          string
	AuthUsername       string
	AuthPasswordHash   string

	TradingBufferSeconds int // buffer after bar close before stepping
	OptimizerInterval    time.Duration
	EvolverInterval      time.Duration
	AlertInterval        time.Duration

	LogLevel string
}

// Load reads config.yaml (if present), a .env file (if present), and
// environment variables, in that precedence order (env wins).
func Load(logger *zap.Logger, configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env", zap.Error(err))
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
	}

	v.SetDefault("host", "localhost")
	v.SetDefault("port", 8080)
	v.SetDefault("trading_buffer_seconds", 2)
	v.SetDefault("optimizer_interval_hours", 24)
	v.SetDefault("evolver_interval_hours", 24)
	v.SetDefault("alert_interval_seconds", 60)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
		logger.Info("no config.yaml found, using defaults + environment")
	}

	cfg := &Config{
		Host:                    v.GetString("host"),
		Port:                    v.GetInt("port"),
		DBPath:                  envOrDefault("BOT_DB", v.GetString("db_path"), "trading.db"),
		DisableLoop:             envBool("APP_DISABLE_LOOP"),
		DisableOptimizer:        envBool("APP_DISABLE_OPTIMIZER"),
		DisableEvolution:        envBool("APP_DISABLE_EVOLUTION"),
		DisableAlerts:           envBool("APP_DISABLE_ALERTS"),
		BinanceTestnetAPIKey:    os.Getenv("BINANCE_TESTNET_API_KEY"),
		BinanceTestnetAPISecret: os.Getenv("BINANCE_TESTNET_API_SECRET"),
		SecretKey:               os.Getenv("SECRET_KEY"),
		AuthUsername:            os.Getenv("AUTH_USERNAME"),
		AuthPasswordHash:        os.Getenv("AUTH_PASSWORD_HASH"),
		TradingBufferSeconds:    v.GetInt("trading_buffer_seconds"),
		OptimizerInterval:       time.Duration(v.GetInt("optimizer_interval_hours")) * time.Hour,
		EvolverInterval:         time.Duration(v.GetInt("evolver_interval_hours")) * time.Hour,
		AlertInterval:           time.Duration(v.GetInt("alert_interval_seconds")) * time.Second,
		LogLevel:                v.GetString("log_level"),
	}

	return cfg, nil
}

// RequireLiveCredentials is called at startup; returns a config error
// (fatal, per spec.md §4.10) if execution_mode requires credentials that
// are not present.
func (c *Config) RequireLiveCredentials(mode string) error {
	if mode != "binance_testnet" {
		return nil
	}
	if c.BinanceTestnetAPIKey == "" || c.BinanceTestnetAPISecret == "" {
		return fmt.Errorf("config: execution mode %q requires BINANCE_TESTNET_API_KEY/SECRET", mode)
	}
	return nil
}

func envOrDefault(key, viperVal, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if viperVal != "" {
		return viperVal
	}
	return fallback
}

func envBool(key string) bool {
	v := os.Getenv(key)
	return v == "1" || v == "true" || v == "TRUE" || v == "yes"
}
