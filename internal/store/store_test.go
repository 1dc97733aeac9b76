package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenBootstrapsSchema(t *testing.T) {
	s := setupTestStore(t)

	tables := []string{"accounts", "sessions", "login_history", "rate_limits", "configurations"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("expected table %q to exist: %v", table, err)
		}
	}
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	s := setupTestStore(t)

	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO accounts (username, credential, created_at) VALUES (?, ?, ?)`,
			"txuser", "credential", 1)
		return err
	})
	if err != nil {
		t.Fatalf("WithTx() error: %v", err)
	}

	if _, err := s.GetAccountByUsername("txuser"); err != nil {
		t.Errorf("expected committed account to be visible, got: %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := setupTestStore(t)

	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO accounts (username, credential, created_at) VALUES (?, ?, ?)`,
			"rollback", "credential", 1); err != nil {
			return err
		}
		return ErrAccountNotFound
	})
	if err == nil {
		t.Fatal("WithTx() expected error to propagate")
	}

	if _, err := s.GetAccountByUsername("rollback"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected rolled-back insert to not be visible, got: %v", err)
	}
}
