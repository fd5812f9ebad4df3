package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/referrals")
	t.Setenv("GATEWAY_SERVICE_TOKEN", "secret")
}

func TestLoadFromEnvDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error: %v", err)
	}
	if cfg.StructurePolicy != PolicySpillover {
		t.Errorf("StructurePolicy = %q, want %q", cfg.StructurePolicy, PolicySpillover)
	}
	if cfg.JoinBonusAmount != 500000 || cfg.SelfPairBonusAmount != 300000 || cfg.SponsorPairBonusAmount != 300000 {
		t.Errorf("unexpected bonus defaults: %+v", cfg)
	}
	if cfg.TreeDefaultDepth != 4 || cfg.TreeMaxDepth != 10 {
		t.Errorf("depth defaults = %d/%d, want 4/10", cfg.TreeDefaultDepth, cfg.TreeMaxDepth)
	}
	if cfg.LockTimeout != 5*time.Second {
		t.Errorf("LockTimeout = %v, want 5s", cfg.LockTimeout)
	}
	if cfg.ReconcileInterval != 5*time.Minute {
		t.Errorf("ReconcileInterval = %v, want 5m", cfg.ReconcileInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoadFromEnvMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GATEWAY_SERVICE_TOKEN", "")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for missing required variables")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("STRUCTURE_POLICY", " Direct ")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOCK_TIMEOUT_MS", "250")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error: %v", err)
	}
	if cfg.StructurePolicy != PolicyDirect {
		t.Errorf("StructurePolicy = %q, want %q", cfg.StructurePolicy, PolicyDirect)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.LockTimeout != 250*time.Millisecond {
		t.Errorf("LockTimeout = %v, want 250ms", cfg.LockTimeout)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			StructurePolicy:   PolicySpillover,
			TreeDefaultDepth:  4,
			TreeMaxDepth:      10,
			Currency:          "INR",
			ReconcileInterval: time.Minute,
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"unknown policy", func(c *Config) { c.StructurePolicy = "matrix" }, false},
		{"negative join bonus", func(c *Config) { c.JoinBonusAmount = -1 }, false},
		{"max depth above 10", func(c *Config) { c.TreeMaxDepth = 11 }, false},
		{"default above max", func(c *Config) { c.TreeDefaultDepth = 6; c.TreeMaxDepth = 5 }, false},
		{"reconcile too fast", func(c *Config) { c.ReconcileInterval = time.Millisecond }, false},
		{"no currency", func(c *Config) { c.Currency = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("Validate() expected error")
			}
		})
	}
}
