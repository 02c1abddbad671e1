// Package config loads and validates the application configuration and
// the guardrail template profiles.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Sim      SimConfig      `yaml:"sim"`
	Tenant   TenantDefaults `yaml:"tenant"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// ServerConfig configures the HTTP interface.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`             // listen address (default :8080)
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default 15s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default 10s
}

// PostgresConfig configures guardrail persistence. Empty DSN selects the
// in-memory store.
type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	EnsureSchema bool   `yaml:"ensure_schema"` // create tables at startup
}

// RedisConfig configures the result cache. Empty Addr disables caching.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // result cache TTL (default 15m)
}

// SimConfig bounds simulation requests.
type SimConfig struct {
	MaxRuns    int `yaml:"max_runs"`    // reject requests above this (default 100000)
	MaxOptions int `yaml:"max_options"` // default 50
}

// RAROCBands are the tenant's traffic-light thresholds. Red is the
// safety gate for recommendations.
type RAROCBands struct {
	Red   float64 `yaml:"red"`   // below: unsafe, override required
	Amber float64 `yaml:"amber"` // below: caution
}

// CapitalDefaults seed the capital policy when a request omits one.
type CapitalDefaults struct {
	Multiplier float64 `yaml:"multiplier"` // economic capital = CVaR95 * multiplier
	MinCapital float64 `yaml:"min_capital"`
}

// TenantDefaults hold per-tenant knobs applied when the tenant has no
// stored overrides.
type TenantDefaults struct {
	RAROC                  RAROCBands      `yaml:"raroc"`
	Capital                CapitalDefaults `yaml:"capital"`
	UseCertaintyEquivalent bool            `yaml:"use_certainty_equivalent"`
}

// RefreshConfig tunes the outcome-driven recompute debouncer.
type RefreshConfig struct {
	Debounce time.Duration `yaml:"debounce"` // default 2s
}

// NotifyConfig configures webhook delivery of breach and adjustment events.
type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url"` // empty disables notifications
	Timeout    time.Duration `yaml:"timeout"`     // per-delivery timeout (default 5s)
	RatePerSec float64       `yaml:"rate_per_sec"`
	Burst      int           `yaml:"burst"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			TTL: 15 * time.Minute,
		},
		Sim: SimConfig{
			MaxRuns:    100000,
			MaxOptions: 50,
		},
		Tenant: TenantDefaults{
			RAROC:   RAROCBands{Red: 0.5, Amber: 1.0},
			Capital: CapitalDefaults{Multiplier: 1.0, MinCapital: 1.0},
		},
		Refresh: RefreshConfig{
			Debounce: 2 * time.Second,
		},
		Notify: NotifyConfig{
			Timeout:    5 * time.Second,
			RatePerSec: 2,
			Burst:      5,
		},
	}
}

// Load reads a YAML config file over the defaults. A missing path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Sim.MaxRuns <= 0 {
		return fmt.Errorf("sim.max_runs must be positive, got %d", c.Sim.MaxRuns)
	}
	if c.Sim.MaxOptions <= 0 {
		return fmt.Errorf("sim.max_options must be positive, got %d", c.Sim.MaxOptions)
	}
	if c.Tenant.RAROC.Red < 0 {
		return fmt.Errorf("tenant.raroc.red must be non-negative, got %f", c.Tenant.RAROC.Red)
	}
	if c.Tenant.RAROC.Amber < c.Tenant.RAROC.Red {
		return fmt.Errorf("tenant.raroc.amber (%f) must not sit below red (%f)",
			c.Tenant.RAROC.Amber, c.Tenant.RAROC.Red)
	}
	if c.Tenant.Capital.Multiplier <= 0 {
		return fmt.Errorf("tenant.capital.multiplier must be positive, got %f", c.Tenant.Capital.Multiplier)
	}
	if c.Tenant.Capital.MinCapital < 0 {
		return fmt.Errorf("tenant.capital.min_capital must be non-negative")
	}
	if c.Refresh.Debounce < 0 {
		return fmt.Errorf("refresh.debounce must be non-negative")
	}
	if c.Notify.WebhookURL != "" && c.Notify.RatePerSec <= 0 {
		return fmt.Errorf("notify.rate_per_sec must be positive when webhooks are enabled")
	}
	return nil
}
