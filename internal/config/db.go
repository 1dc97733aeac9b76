package config

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// DBConfigStore reads and writes the operator-tunable subset of Config
// from the same SQLite database's configurations table.
type DBConfigStore struct {
	db *sql.DB
}

// NewDBConfigStore wraps an already-open database handle.
func NewDBConfigStore(db *sql.DB) *DBConfigStore {
	return &DBConfigStore{db: db}
}

// Load reads every stored key/value pair.
func (s *DBConfigStore) Load() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM configurations`)
	if err != nil {
		return nil, fmt.Errorf("config: load from db: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("config: load from db: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Set upserts a single configuration key.
func (s *DBConfigStore) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO configurations (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("config: set %s: %w", key, err)
	}
	return nil
}

// OverlayDB applies the persisted configurations table onto cfg (layer 4),
// then re-applies flags so they retain the highest precedence.
func OverlayDB(cfg *Config, db *sql.DB, flags Flags) error {
	store := NewDBConfigStore(db)
	values, err := store.Load()
	if err != nil {
		return err
	}

	if v, ok := values["port"]; ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v, ok := values["db_path"]; ok {
		cfg.DBPath = v
	}
	if v, ok := values["history_retention_days"]; ok {
		if days, err := strconv.Atoi(v); err == nil {
			cfg.HistoryRetentionDays = days
		}
	}
	if v, ok := values["hash_cost"]; ok {
		if cost, err := strconv.Atoi(v); err == nil {
			cfg.HashCost = cost
		}
	}

	intFields := map[string]*int{
		"login_max_attempts":             &cfg.LoginMaxAttempts,
		"login_window_seconds":           &cfg.LoginWindowSeconds,
		"register_max_attempts":          &cfg.RegisterMaxAttempts,
		"register_window_seconds":        &cfg.RegisterWindowSeconds,
		"token_validation_max_attempts":  &cfg.TokenValidationMaxAttempts,
		"token_validation_window_seconds": &cfg.TokenValidationWindowSec,
		"password_reset_max_attempts":    &cfg.PasswordResetMaxAttempts,
		"password_reset_window_seconds":  &cfg.PasswordResetWindowSeconds,
	}
	for key, field := range intFields {
		if v, ok := values[key]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				*field = n
			}
		}
	}

	ApplyFlags(cfg, flags)
	return cfg.Validate()
}
