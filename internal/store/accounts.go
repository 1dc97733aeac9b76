package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// failedAttemptResetWindow is the sliding window after which a failed-login
// streak resets instead of incrementing.
const failedAttemptResetWindow = 5 * time.Minute

// Account mirrors the accounts table.
type Account struct {
	AccountID           uint64
	Username            string
	Credential          string
	Email               string
	CreatedAt           int64
	LastLogin           int64
	Banned              bool
	BanReason           string
	BanUntil            int64
	LockedUntil         int64
	FailedLoginAttempts int
	LastFailedLogin     int64
}

// IsBanActive reports whether the account's ban is currently in force.
// BanUntil == 0 means permanent once Banned is set.
func (a *Account) IsBanActive(now int64) bool {
	if !a.Banned {
		return false
	}
	return a.BanUntil == 0 || a.BanUntil > now
}

// CreateAccount inserts a new account with the given username and
// already-hashed credential. Returns ErrUsernameTaken if the username
// exists.
func (s *Store) CreateAccount(username, credential string) (uint64, error) {
	now := time.Now().Unix()
	res, err := s.db.Exec(`
		INSERT INTO accounts (username, credential, created_at, last_login)
		VALUES (?, ?, ?, 0)
	`, username, credential, now)
	if err != nil {
		if isUniqueConstraint(err) {
			return 0, ErrUsernameTaken
		}
		return 0, fmt.Errorf("store: create account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: create account: %w", err)
	}
	return uint64(id), nil
}

const accountColumns = `account_id, username, credential, email, created_at, last_login,
	banned, ban_reason, ban_until, locked_until, failed_login_attempts, last_failed_login`

func scanAccount(row interface{ Scan(...any) error }) (*Account, error) {
	var a Account
	var email sql.NullString
	err := row.Scan(
		&a.AccountID, &a.Username, &a.Credential, &email, &a.CreatedAt, &a.LastLogin,
		&a.Banned, &a.BanReason, &a.BanUntil, &a.LockedUntil, &a.FailedLoginAttempts, &a.LastFailedLogin,
	)
	if err != nil {
		return nil, err
	}
	a.Email = email.String
	return &a, nil
}

// GetAccountByUsername looks up an account by its unique username.
func (s *Store) GetAccountByUsername(username string) (*Account, error) {
	row := s.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE username = ?`, username)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get account by username: %w", err)
	}
	return a, nil
}

// GetAccountByID looks up an account by its server-assigned ID.
func (s *Store) GetAccountByID(accountID uint64) (*Account, error) {
	row := s.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE account_id = ?`, accountID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get account by id: %w", err)
	}
	return a, nil
}

// UpdateLastLogin stamps the account's last-successful-login time to now.
func (s *Store) UpdateLastLogin(accountID uint64) error {
	_, err := s.db.Exec(`UPDATE accounts SET last_login = ? WHERE account_id = ?`, time.Now().Unix(), accountID)
	if err != nil {
		return fmt.Errorf("store: update last login: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored credential for accountID.
func (s *Store) UpdatePassword(accountID uint64, credential string) error {
	res, err := s.db.Exec(`UPDATE accounts SET credential = ? WHERE account_id = ?`, credential, accountID)
	if err != nil {
		return fmt.Errorf("store: update password: %w", err)
	}
	return requireRowsAffected(res)
}

// BanAccount marks the account banned with reason and banUntil (0 = permanent).
func (s *Store) BanAccount(accountID uint64, reason string, banUntil int64) error {
	res, err := s.db.Exec(`
		UPDATE accounts SET banned = 1, ban_reason = ?, ban_until = ? WHERE account_id = ?
	`, reason, banUntil, accountID)
	if err != nil {
		return fmt.Errorf("store: ban account: %w", err)
	}
	return requireRowsAffected(res)
}

// UnbanAccount clears an account's ban block.
func (s *Store) UnbanAccount(accountID uint64) error {
	res, err := s.db.Exec(`
		UPDATE accounts SET banned = 0, ban_reason = '', ban_until = 0 WHERE account_id = ?
	`, accountID)
	if err != nil {
		return fmt.Errorf("store: unban account: %w", err)
	}
	return requireRowsAffected(res)
}

// LockAccount sets lockedUntil to the given Unix timestamp.
func (s *Store) LockAccount(accountID uint64, lockedUntil int64) error {
	res, err := s.db.Exec(`UPDATE accounts SET locked_until = ? WHERE account_id = ?`, lockedUntil, accountID)
	if err != nil {
		return fmt.Errorf("store: lock account: %w", err)
	}
	return requireRowsAffected(res)
}

// UnlockAccount clears lockedUntil and the failed-attempt counter.
func (s *Store) UnlockAccount(accountID uint64) error {
	res, err := s.db.Exec(`
		UPDATE accounts SET locked_until = 0, failed_login_attempts = 0 WHERE account_id = ?
	`, accountID)
	if err != nil {
		return fmt.Errorf("store: unlock account: %w", err)
	}
	return requireRowsAffected(res)
}

// IsAccountLocked reports whether the account is currently locked,
// auto-unlocking (clearing lockedUntil) when lockedUntil <= now.
func (s *Store) IsAccountLocked(accountID uint64) (bool, error) {
	a, err := s.GetAccountByID(accountID)
	if err != nil {
		return false, err
	}
	if a.LockedUntil == 0 {
		return false, nil
	}
	now := time.Now().Unix()
	if a.LockedUntil <= now {
		if err := s.UnlockAccount(accountID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// IncrementFailedLoginAttempts bumps the failed-attempt counter, resetting
// it to 1 instead of incrementing if the previous failure is older than
// failedAttemptResetWindow. Returns the new count.
func (s *Store) IncrementFailedLoginAttempts(accountID uint64) (int, error) {
	a, err := s.GetAccountByID(accountID)
	if err != nil {
		return 0, err
	}

	now := time.Now().Unix()
	newCount := a.FailedLoginAttempts + 1
	if a.LastFailedLogin == 0 || now-a.LastFailedLogin > int64(failedAttemptResetWindow.Seconds()) {
		newCount = 1
	}

	_, err = s.db.Exec(`
		UPDATE accounts SET failed_login_attempts = ?, last_failed_login = ? WHERE account_id = ?
	`, newCount, now, accountID)
	if err != nil {
		return 0, fmt.Errorf("store: increment failed login attempts: %w", err)
	}
	return newCount, nil
}

// GetFailedLoginAttempts returns the account's current failed-attempt
// counter without mutating it.
func (s *Store) GetFailedLoginAttempts(accountID uint64) (int, error) {
	a, err := s.GetAccountByID(accountID)
	if err != nil {
		return 0, err
	}
	return a.FailedLoginAttempts, nil
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func isUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed")
}
