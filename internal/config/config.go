// Package config implements the layered configuration chain: hard-coded
// defaults, an optional YAML file, environment variables, a persisted DB
// table, and finally CLI flags/positional args re-applied last —
// "Defaults < ConfigFile < Env < DB < Flags".
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Svetlana-gith/dota2clone-authd/internal/security"
)

// Config holds every tunable the server consults at startup. The operator
// may override values (including the rate-limit thresholds and the
// bcrypt-shaped cost factor) through the DB's configurations table, which
// is read once at startup; a change takes effect on the next start.
type Config struct {
	Port                 int    `yaml:"port"`
	DBPath               string `yaml:"db_path"`
	HistoryRetentionDays int    `yaml:"history_retention_days"`
	JanitorIntervalSec   int    `yaml:"janitor_interval_seconds"`
	HashCost             int    `yaml:"hash_cost"`

	LoginMaxAttempts           int `yaml:"login_max_attempts"`
	LoginWindowSeconds         int `yaml:"login_window_seconds"`
	RegisterMaxAttempts        int `yaml:"register_max_attempts"`
	RegisterWindowSeconds      int `yaml:"register_window_seconds"`
	TokenValidationMaxAttempts int `yaml:"token_validation_max_attempts"`
	TokenValidationWindowSec   int `yaml:"token_validation_window_seconds"`
	PasswordResetMaxAttempts   int `yaml:"password_reset_max_attempts"`
	PasswordResetWindowSeconds int `yaml:"password_reset_window_seconds"`
}

// DefaultPort is the UDP port the server listens on absent any override.
const DefaultPort = 27016

// Default returns the hard-coded baseline configuration, layer 1 of 5.
func Default() *Config {
	return &Config{
		Port:                 DefaultPort,
		DBPath:               "./authd.db",
		HistoryRetentionDays: 90,
		JanitorIntervalSec:   300,
		HashCost:             12,

		LoginMaxAttempts:           5,
		LoginWindowSeconds:         60,
		RegisterMaxAttempts:        3,
		RegisterWindowSeconds:      300,
		TokenValidationMaxAttempts: 100,
		TokenValidationWindowSec:   60,
		PasswordResetMaxAttempts:   3,
		PasswordResetWindowSeconds: 3600,
	}
}

// RateLimitConfigs translates the flat per-operation fields into the map
// shape security.NewRateLimiter expects.
func (c *Config) RateLimitConfigs() map[security.Operation]security.RateLimitConfig {
	return map[security.Operation]security.RateLimitConfig{
		security.OpLogin:           {MaxAttempts: c.LoginMaxAttempts, Window: time.Duration(c.LoginWindowSeconds) * time.Second},
		security.OpRegister:        {MaxAttempts: c.RegisterMaxAttempts, Window: time.Duration(c.RegisterWindowSeconds) * time.Second},
		security.OpTokenValidation: {MaxAttempts: c.TokenValidationMaxAttempts, Window: time.Duration(c.TokenValidationWindowSec) * time.Second},
		security.OpPasswordReset:   {MaxAttempts: c.PasswordResetMaxAttempts, Window: time.Duration(c.PasswordResetWindowSeconds) * time.Second},
	}
}

// LoadFile overlays an optional YAML config file onto cfg (layer 2).
// A missing file is not an error; the defaults stand.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// LoadEnv overlays AUTHD_* environment variables onto cfg (layer 3).
func LoadEnv(cfg *Config) error {
	if v := os.Getenv("AUTHD_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: AUTHD_PORT: %w", err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("AUTHD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("AUTHD_HISTORY_RETENTION_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: AUTHD_HISTORY_RETENTION_DAYS: %w", err)
		}
		cfg.HistoryRetentionDays = days
	}
	if v := os.Getenv("AUTHD_HASH_COST"); v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: AUTHD_HASH_COST: %w", err)
		}
		cfg.HashCost = cost
	}
	return nil
}

// Flags holds the CLI positional-arg overrides, highest precedence and
// re-applied after the DB overlay (layer 5).
type Flags struct {
	Port   int
	DBPath string
}

// ApplyFlags overlays any non-zero flag values onto cfg.
func ApplyFlags(cfg *Config, flags Flags) {
	if flags.Port != 0 {
		cfg.Port = flags.Port
	}
	if flags.DBPath != "" {
		cfg.DBPath = flags.DBPath
	}
}

// Validate rejects an unusable configuration before the server binds
// anything.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d (must be 1-65535)", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db path cannot be empty")
	}
	if c.HistoryRetentionDays < 1 {
		return fmt.Errorf("config: history retention days must be >= 1")
	}
	if c.HashCost < 4 || c.HashCost > 31 {
		return fmt.Errorf("config: hash cost must be within [4, 31]")
	}
	for name, n := range map[string]int{
		"login_max_attempts":            c.LoginMaxAttempts,
		"login_window_seconds":          c.LoginWindowSeconds,
		"register_max_attempts":         c.RegisterMaxAttempts,
		"register_window_seconds":       c.RegisterWindowSeconds,
		"token_validation_max_attempts": c.TokenValidationMaxAttempts,
		"token_validation_window_seconds": c.TokenValidationWindowSec,
		"password_reset_max_attempts":   c.PasswordResetMaxAttempts,
		"password_reset_window_seconds": c.PasswordResetWindowSeconds,
	} {
		if n < 1 {
			return fmt.Errorf("config: %s must be >= 1", name)
		}
	}
	return nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
