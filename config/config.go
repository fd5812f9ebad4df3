package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	PolicySpillover = "spillover"
	PolicyDirect    = "direct"
)

// Config holds the referral engine configuration.
type Config struct {
	// Server
	Port           string   `env:"PORT" envDefault:"5200"`
	DatabaseURL    string   `env:"DATABASE_URL,required,notEmpty"`
	GatewayToken   string   `env:"GATEWAY_SERVICE_TOKEN,required,notEmpty"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	// Structure
	StructurePolicy  string `env:"STRUCTURE_POLICY" envDefault:"spillover"`
	TreeDefaultDepth int    `env:"TREE_DEFAULT_DEPTH" envDefault:"4"`
	TreeMaxDepth     int    `env:"TREE_MAX_DEPTH" envDefault:"10"`

	// Bonus amounts in minor units
	JoinBonusAmount        int64  `env:"JOIN_BONUS_AMOUNT" envDefault:"500000"`
	SelfPairBonusAmount    int64  `env:"SELF_PAIR_BONUS_AMOUNT" envDefault:"300000"`
	SponsorPairBonusAmount int64  `env:"SPONSOR_PAIR_BONUS_AMOUNT" envDefault:"300000"`
	Currency               string `env:"CURRENCY" envDefault:"INR"`

	// Locking (parsed as milliseconds)
	LockTimeoutMs int           `env:"LOCK_TIMEOUT_MS" envDefault:"5000"`
	LockTimeout   time.Duration `env:"-"`

	// Cache
	RedisURL        string        `env:"REDIS_URL"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	TreeCacheTTLSec int           `env:"TREE_CACHE_TTL_SEC" envDefault:"30"`
	TreeCacheTTL    time.Duration `env:"-"`

	// Jobs
	ReconcileIntervalSec int           `env:"RECONCILE_INTERVAL_SEC" envDefault:"300"`
	ReconcileInterval    time.Duration `env:"-"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	for i := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(cfg.AllowedOrigins[i])
	}
	cfg.StructurePolicy = strings.ToLower(strings.TrimSpace(cfg.StructurePolicy))

	cfg.LockTimeout = time.Duration(cfg.LockTimeoutMs) * time.Millisecond
	cfg.TreeCacheTTL = time.Duration(cfg.TreeCacheTTLSec) * time.Second
	cfg.ReconcileInterval = time.Duration(cfg.ReconcileIntervalSec) * time.Second

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.StructurePolicy != PolicySpillover && c.StructurePolicy != PolicyDirect {
		return fmt.Errorf("invalid structure policy: %q (want %s or %s)", c.StructurePolicy, PolicySpillover, PolicyDirect)
	}

	if c.JoinBonusAmount < 0 || c.SelfPairBonusAmount < 0 || c.SponsorPairBonusAmount < 0 {
		return fmt.Errorf("bonus amounts must not be negative")
	}

	if c.TreeMaxDepth < 1 || c.TreeMaxDepth > 10 {
		return fmt.Errorf("tree max depth must be between 1 and 10")
	}

	if c.TreeDefaultDepth < 1 || c.TreeDefaultDepth > c.TreeMaxDepth {
		return fmt.Errorf("tree default depth must be between 1 and %d", c.TreeMaxDepth)
	}

	if c.LockTimeout < 0 {
		return fmt.Errorf("lock timeout must not be negative")
	}

	if c.ReconcileInterval < time.Second {
		return fmt.Errorf("reconcile interval must be at least 1 second")
	}

	if c.Currency == "" {
		return fmt.Errorf("currency must be set")
	}

	return nil
}
