package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session mirrors the sessions table. The token itself is the primary
// key and lookup key, stored raw rather than hashed at rest — see
// DESIGN.md for the reasoning.
type Session struct {
	Token     string
	AccountID uint64
	CreatedAt int64
	ExpiresAt int64
	IPAddress string
	LastUsed  int64
}

// SessionDuration is the sliding-renewal lifetime applied on mint and on
// every successful ValidateToken.
const SessionDuration = 7 * 24 * time.Hour

// CreateSession inserts a new session row.
func (s *Store) CreateSession(token string, accountID uint64, expiresAt int64, ipAddress string) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO sessions (token, account_id, created_at, expires_at, ip_address, last_used)
		VALUES (?, ?, ?, ?, ?, ?)
	`, token, accountID, now, expiresAt, ipAddress, now)
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	return nil
}

// GetSession looks up a session by its raw token.
func (s *Store) GetSession(token string) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(`
		SELECT token, account_id, created_at, expires_at, ip_address, last_used
		FROM sessions WHERE token = ?
	`, token).Scan(&sess.Token, &sess.AccountID, &sess.CreatedAt, &sess.ExpiresAt, &sess.IPAddress, &sess.LastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	return &sess, nil
}

// UpdateSessionExpiration implements sliding renewal: sets expiresAt and
// lastUsed to reflect a successful validation at now.
func (s *Store) UpdateSessionExpiration(token string, expiresAt int64) error {
	res, err := s.db.Exec(`
		UPDATE sessions SET expires_at = ?, last_used = ? WHERE token = ?
	`, expiresAt, time.Now().Unix(), token)
	if err != nil {
		return fmt.Errorf("store: update session expiration: %w", err)
	}
	return requireSessionRowsAffected(res)
}

// DeleteSession removes a single session by token. Idempotent: deleting an
// absent token is not an error.
func (s *Store) DeleteSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("store: delete session: %w", err)
	}
	return nil
}

// DeleteAllSessionsForAccount deletes every session belonging to accountID,
// optionally preserving exceptToken. Returns the number of rows deleted.
func (s *Store) DeleteAllSessionsForAccount(accountID uint64, exceptToken string) (int64, error) {
	var res sql.Result
	var err error
	if exceptToken == "" {
		res, err = s.db.Exec(`DELETE FROM sessions WHERE account_id = ?`, accountID)
	} else {
		res, err = s.db.Exec(`DELETE FROM sessions WHERE account_id = ? AND token != ?`, accountID, exceptToken)
	}
	if err != nil {
		return 0, fmt.Errorf("store: delete all sessions for account: %w", err)
	}
	return res.RowsAffected()
}

// CleanupExpiredSessions deletes sessions whose expiresAt has passed.
// Returns the number of rows removed, for janitor logging.
func (s *Store) CleanupExpiredSessions() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("store: cleanup expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func requireSessionRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}
