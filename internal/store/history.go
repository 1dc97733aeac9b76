package store

import (
	"fmt"
	"time"
)

// LoginHistoryEntry mirrors the append-only login_history table.
type LoginHistoryEntry struct {
	ID            int64
	AccountID     uint64 // 0 if the username was unknown
	IPAddress     string
	Timestamp     int64
	Success       bool
	FailureReason string
}

// LogLoginAttempt appends an immutable history row.
func (s *Store) LogLoginAttempt(accountID uint64, ipAddress string, success bool, failureReason string) error {
	_, err := s.db.Exec(`
		INSERT INTO login_history (account_id, ip_address, timestamp, success, failure_reason)
		VALUES (?, ?, ?, ?, ?)
	`, accountID, ipAddress, time.Now().Unix(), success, failureReason)
	if err != nil {
		return fmt.Errorf("store: log login attempt: %w", err)
	}
	return nil
}

// GetLoginHistory returns up to limit history rows for accountID, most
// recent first.
func (s *Store) GetLoginHistory(accountID uint64, limit int) ([]LoginHistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, account_id, ip_address, timestamp, success, failure_reason
		FROM login_history WHERE account_id = ?
		ORDER BY timestamp DESC, id DESC LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: get login history: %w", err)
	}
	defer rows.Close()

	var entries []LoginHistoryEntry
	for rows.Next() {
		var e LoginHistoryEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.IPAddress, &e.Timestamp, &e.Success, &e.FailureReason); err != nil {
			return nil, fmt.Errorf("store: get login history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CleanupOldLoginHistory deletes history rows older than the given
// retention in days (default 90). Returns rows removed.
func (s *Store) CleanupOldLoginHistory(days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	res, err := s.db.Exec(`DELETE FROM login_history WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: cleanup old login history: %w", err)
	}
	return res.RowsAffected()
}
