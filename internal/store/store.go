// Package store implements typed, parameterized operations against the
// embedded relational database: accounts, sessions, login history, and the
// persisted rate-limit table. Every query is parameter-bound; string
// interpolation into SQL is never used in this package, by invariant.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the database handle and exposes the account/session/history
// operations the server needs. Safe for concurrent use — *sql.DB pools its
// own connections.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path, applies
// the pragma set this service needs (concurrent-reader journaling, ~64MiB
// page cache, ~256MiB mmap, foreign keys on), and bootstraps the schema.
// path may be ":memory:" or "file::memory:?cache=shared" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	// A single shared connection keeps SQLite's single-writer model honest
	// and avoids "database is locked" errors under the in-memory DSN.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.bootstrap(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// configure applies the pragma set every connection needs at startup.
func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-64000",  // ~64MiB, negative = KiB
		"PRAGMA mmap_size=268435456", // 256MiB
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}
	return nil
}

// DB exposes the underlying handle for components (e.g. internal/config's
// DBConfigStore) that need direct access to the same database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. This is the transactional-scope primitive for
// multi-row writes. No request handler calls it: ChangePassword's
// credential update and session revocation run as two separate
// statements, not in one transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}
	return nil
}
