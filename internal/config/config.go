// Package config manages application configuration
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	Environment string `env:"AUCTIONSITE_ENV" envDefault:"development"` // "development" or "production"

	// Database
	DatabaseURL    string `env:"AUCTIONSITE_DATABASE_URL" envDefault:"auctionsite.db"`
	DatabaseDriver string `env:"AUCTIONSITE_DATABASE_DRIVER" envDefault:"sqlite3"` // "sqlite3" (cgo) or "sqlite" (pure Go)

	// Sites served by this process; empty means every site in the store.
	Sites []string `env:"AUCTIONSITE_SITES" envSeparator:","`

	// Expired session sweep
	SweepInterval time.Duration `env:"AUCTIONSITE_SWEEP_INTERVAL" envDefault:"5m"`

	// Security
	BcryptCost int `env:"AUCTIONSITE_BCRYPT_COST" envDefault:"10"`

	LogLevel slog.Level `env:"AUCTIONSITE_LOG_LEVEL" envDefault:"INFO"`
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", cfg.SweepInterval)
	}
	return &cfg, nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
