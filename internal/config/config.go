// Package config loads kernel configuration from the environment, with an
// optional YAML overlay for operators who prefer a committed config file.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds daemon-wide configuration.
type Config struct {
	Port               string `yaml:"port"`
	LogLevel           string `yaml:"log_level"`
	DatabaseURL        string `yaml:"database_url"`
	RedisURL           string `yaml:"redis_url"`
	JWTSigningKey      string `yaml:"jwt_signing_key"`
	LedgerSigningSeed  string `yaml:"ledger_signing_seed"`
	HeartbeatSeconds   int    `yaml:"heartbeat_interval_seconds"`
	MaxRetryBudget     int    `yaml:"max_retry_budget"`
	CooldownSeconds    int    `yaml:"cooldown_seconds"`
	CircuitBreakerN    int    `yaml:"circuit_breaker_threshold"`
	StrategyWASMPath   string `yaml:"strategy_wasm_path"`
	ShadowMode         bool   `yaml:"shadow_mode"`
}

// Load reads configuration from environment variables, optionally layered
// over a YAML file named by CONFIG_FILE. Environment variables always win
// over YAML values so a deployment can override a committed file.
func Load() *Config {
	cfg := &Config{
		Port:             "8080",
		LogLevel:         "INFO",
		DatabaseURL:      "",
		RedisURL:         "",
		HeartbeatSeconds: 30,
		MaxRetryBudget:   3,
		CooldownSeconds:  300,
		CircuitBreakerN:  5,
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("JWT_SIGNING_KEY"); v != "" {
		cfg.JWTSigningKey = v
	}
	if v := os.Getenv("LEDGER_SIGNING_SEED"); v != "" {
		cfg.LedgerSigningSeed = v
	}
	if v := os.Getenv("HEARTBEAT_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HeartbeatSeconds = n
		}
	}
	if v := os.Getenv("MAX_RETRY_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetryBudget = n
		}
	}
	if v := os.Getenv("COOLDOWN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CooldownSeconds = n
		}
	}
	if v := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CircuitBreakerN = n
		}
	}
	if v := os.Getenv("STRATEGY_WASM_PATH"); v != "" {
		cfg.StrategyWASMPath = v
	}
	if v := os.Getenv("SHADOW_MODE"); v != "" {
		cfg.ShadowMode = v == "true"
	}

	return cfg
}

// LiteMode reports whether no external Postgres was configured, so the
// daemon should fall back to the embedded SQLite ledger.
func (c *Config) LiteMode() bool {
	return c.DatabaseURL == ""
}
