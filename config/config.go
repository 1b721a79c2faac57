// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hoaworks/metergate/domain/billing"
	"github.com/hoaworks/metergate/domain/quota"
	"github.com/hoaworks/metergate/domain/tier"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig     `yaml:"server"`
	Database     DatabaseConfig   `yaml:"database"`
	Renderer     RendererConfig   `yaml:"renderer"`
	Billing      BillingConfig    `yaml:"billing"`
	Quotas       []QuotaConfig    `yaml:"quotas"`
	CreditGrants map[string]int64 `yaml:"credit_grants"`
	Logging      LoggingConfig    `yaml:"logging"`
	Metrics      MetricsConfig    `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// RendererConfig configures the generation backend.
type RendererConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
}

// BillingConfig configures the payment provider.
// Use "none" or "paddle".
type BillingConfig struct {
	Mode          string `yaml:"mode"`
	WebhookSecret string `yaml:"webhook_secret,omitempty"`
}

// QuotaConfig configures a single (tier, feature) monthly allowance.
// A limit of -1 means unlimited.
type QuotaConfig struct {
	Tier    string `yaml:"tier"`
	Feature string `yaml:"feature"`
	Limit   int64  `yaml:"limit"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with built-in defaults and environment
// overrides applied, no file required.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	setDefaults(cfg)
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("METERGATE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("METERGATE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("METERGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("METERGATE_RENDERER_URL"); v != "" {
		cfg.Renderer.URL = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "metergate.db"
	}
	if cfg.Renderer.Timeout == 0 {
		cfg.Renderer.Timeout = 60 * time.Second
	}
	if cfg.Billing.Mode == "" {
		cfg.Billing.Mode = "none"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Billing.Mode {
	case "none", "paddle":
	default:
		return fmt.Errorf("unknown billing mode %q", c.Billing.Mode)
	}
	for _, q := range c.Quotas {
		if q.Limit < -1 {
			return fmt.Errorf("quota limit for %s/%s must be >= -1", q.Tier, q.Feature)
		}
	}
	for label, credits := range c.CreditGrants {
		if credits < 0 {
			return fmt.Errorf("credit grant for %q must be >= 0", label)
		}
	}
	return nil
}

// QuotaTable builds the quota table from configured overrides layered
// on the built-in defaults. A limit of -1 becomes Unlimited.
func (c *Config) QuotaTable() quota.Table {
	table := quota.DefaultTable()
	for _, q := range c.Quotas {
		tr := tier.Canonical(q.Tier)
		if table[tr] == nil {
			table[tr] = make(map[quota.Feature]quota.Limit)
		}
		limit := quota.Finite(q.Limit)
		if q.Limit < 0 {
			limit = quota.Unlimited
		}
		table[tr][quota.Feature(q.Feature)] = limit
	}
	return table
}

// Grants builds the per-tier credit grants from config, falling back
// to the built-in defaults when unset.
func (c *Config) Grants() billing.CreditGrants {
	grants := billing.DefaultCreditGrants()
	for label, credits := range c.CreditGrants {
		grants[tier.Canonical(label)] = credits
	}
	return grants
}
