package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/quote"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Quote providers.
const (
	ProviderStatic = "static"
	ProviderIEX    = "iex"
)

// Config holds all runtime configuration for the trading service.
type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StoreDriver    string          `env:"STORE_DRIVER" envDefault:"memory"`
	DatabaseURL    string          `env:"DATABASE_URL" envDefault:"finance.db"`
	StorageTimeout time.Duration   `env:"STORAGE_TIMEOUT" envDefault:"5s"`
	StartingCash   decimal.Decimal `env:"STARTING_CASH" envDefault:"10000.00"`

	QuoteProvider string        `env:"QUOTE_PROVIDER" envDefault:"static"`
	QuoteAPIURL   string        `env:"QUOTE_API_URL" envDefault:"https://cloud.iexapis.com"`
	QuoteAPIKey   string        `env:"QUOTE_API_KEY"`
	QuoteStatic   []string      `env:"QUOTE_STATIC" envSeparator:","`
	QuoteTimeout  time.Duration `env:"QUOTE_TIMEOUT" envDefault:"3s"`
	QuoteCacheTTL time.Duration `env:"QUOTE_CACHE_TTL" envDefault:"15s"`

	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d, must be between 1 and 65535", c.Port)
	}
	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", c.LogLevel)
	}

	switch c.StoreDriver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("invalid STORE_DRIVER: %q, must be one of: memory, sqlite, postgres", c.StoreDriver)
	}
	if c.StoreDriver != DriverMemory && strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required for STORE_DRIVER=%s", c.StoreDriver)
	}
	if _, err := domain.ParseAmount(c.StartingCash.String()); err != nil {
		return fmt.Errorf("invalid STARTING_CASH: %w", err)
	}

	switch c.QuoteProvider {
	case ProviderStatic:
		if _, err := quote.ParseStatic(c.QuoteStatic); err != nil {
			return fmt.Errorf("invalid QUOTE_STATIC: %w", err)
		}
	case ProviderIEX:
		if c.QuoteAPIKey == "" {
			return fmt.Errorf("QUOTE_API_KEY is required for QUOTE_PROVIDER=iex")
		}
	default:
		return fmt.Errorf("invalid QUOTE_PROVIDER: %q, must be one of: static, iex", c.QuoteProvider)
	}
	if c.QuoteCacheTTL < 0 {
		return fmt.Errorf("invalid QUOTE_CACHE_TTL: %v, must not be negative", c.QuoteCacheTTL)
	}

	for name, d := range map[string]time.Duration{
		"STORAGE_TIMEOUT":  c.StorageTimeout,
		"QUOTE_TIMEOUT":    c.QuoteTimeout,
		"READ_TIMEOUT":     c.ReadTimeout,
		"WRITE_TIMEOUT":    c.WriteTimeout,
		"IDLE_TIMEOUT":     c.IdleTimeout,
		"SHUTDOWN_TIMEOUT": c.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid %s: %v, must be positive", name, d)
		}
	}
	return nil
}

// SlogLevel returns the slog level matching LogLevel.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
