package store

import "fmt"

// bootstrap creates the schema if it does not already exist. Grounded on
// internal/audit/audit.go's CREATE TABLE IF NOT EXISTS + index style.
func (s *Store) bootstrap() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			account_id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			credential TEXT NOT NULL,
			email TEXT UNIQUE,
			created_at INTEGER NOT NULL,
			last_login INTEGER NOT NULL DEFAULT 0,
			banned INTEGER NOT NULL DEFAULT 0,
			ban_reason TEXT NOT NULL DEFAULT '',
			ban_until INTEGER NOT NULL DEFAULT 0,
			locked_until INTEGER NOT NULL DEFAULT 0,
			failed_login_attempts INTEGER NOT NULL DEFAULT 0,
			last_failed_login INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_username ON accounts(username)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			account_id INTEGER NOT NULL REFERENCES accounts(account_id),
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			ip_address TEXT NOT NULL,
			last_used INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_account ON sessions(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)`,

		`CREATE TABLE IF NOT EXISTS login_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL DEFAULT 0,
			ip_address TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			success INTEGER NOT NULL,
			failure_reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_account_time ON login_history(account_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_history_ip_time ON login_history(ip_address, timestamp)`,

		`CREATE TABLE IF NOT EXISTS rate_limits (
			ip_address TEXT NOT NULL,
			operation TEXT NOT NULL,
			attempt_count INTEGER NOT NULL,
			window_start INTEGER NOT NULL,
			last_attempt INTEGER NOT NULL,
			PRIMARY KEY (ip_address, operation)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rate_limits_window ON rate_limits(window_start)`,

		`CREATE TABLE IF NOT EXISTS configurations (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: bootstrap: %w", err)
		}
	}
	return nil
}

// migrate applies additive schema changes to databases created by older
// versions of this package: missing columns are added with safe defaults.
// The one addition so far is accounts.last_failed_login, added to
// databases whose accounts table predates it (mirrors
// internal/config/migrate.go's migration-on-open idiom).
func (s *Store) migrate() error {
	cols, err := s.columns("accounts")
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}

	additions := map[string]string{
		"last_failed_login": "ALTER TABLE accounts ADD COLUMN last_failed_login INTEGER NOT NULL DEFAULT 0",
	}
	for col, stmt := range additions {
		if _, ok := cols[col]; ok {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate add column %s: %w", col, err)
		}
	}
	return nil
}

func (s *Store) columns(table string) (map[string]struct{}, error) {
	rows, err := s.db.Query(`SELECT cid, name, type, "notnull", dflt_value, pk FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]struct{})
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt any
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = struct{}{}
	}
	return cols, rows.Err()
}
