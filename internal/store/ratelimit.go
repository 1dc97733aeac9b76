package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RateLimitRow mirrors the persisted rate_limits table, the persisted
// counterpart of the in-memory security.RateLimiter. The in-memory table
// is authoritative during the process lifetime; the request handlers do
// not write rows here, so this table carries only what a caller of
// UpsertRateLimit puts in it.
type RateLimitRow struct {
	IPAddress    string
	Operation    string
	AttemptCount int
	WindowStart  int64
	LastAttempt  int64
}

// UpsertRateLimit writes or replaces the row for (ip, operation).
func (s *Store) UpsertRateLimit(ip, operation string, attemptCount int, windowStart, lastAttempt int64) error {
	_, err := s.db.Exec(`
		INSERT INTO rate_limits (ip_address, operation, attempt_count, window_start, last_attempt)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ip_address, operation) DO UPDATE SET
			attempt_count = excluded.attempt_count,
			window_start = excluded.window_start,
			last_attempt = excluded.last_attempt
	`, ip, operation, attemptCount, windowStart, lastAttempt)
	if err != nil {
		return fmt.Errorf("store: upsert rate limit: %w", err)
	}
	return nil
}

// GetRateLimit returns the persisted row for (ip, operation), if any.
func (s *Store) GetRateLimit(ip, operation string) (*RateLimitRow, error) {
	var row RateLimitRow
	err := s.db.QueryRow(`
		SELECT ip_address, operation, attempt_count, window_start, last_attempt
		FROM rate_limits WHERE ip_address = ? AND operation = ?
	`, ip, operation).Scan(&row.IPAddress, &row.Operation, &row.AttemptCount, &row.WindowStart, &row.LastAttempt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get rate limit: %w", err)
	}
	return &row, nil
}

// CleanupExpiredRateLimits drops rows whose last attempt is older than an
// hour. Returns rows removed.
func (s *Store) CleanupExpiredRateLimits() (int64, error) {
	cutoff := time.Now().Add(-1 * time.Hour).Unix()
	res, err := s.db.Exec(`DELETE FROM rate_limits WHERE last_attempt < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: cleanup expired rate limits: %w", err)
	}
	return res.RowsAffected()
}
