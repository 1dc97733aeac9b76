package server

import (
	"errors"
	"log"
	"time"

	"github.com/Svetlana-gith/dota2clone-authd/internal/cryptoutil"
	"github.com/Svetlana-gith/dota2clone-authd/internal/protocol"
	"github.com/Svetlana-gith/dota2clone-authd/internal/security"
	"github.com/Svetlana-gith/dota2clone-authd/internal/store"
)

// Username and password-hash bounds checked before a credential ever
// touches the store or the hasher.
const (
	minUsernameLen     = 3
	maxUsernameLen     = 20
	minPasswordHashLen = 8
)

func errResponse(reqID uint32, result protocol.Result, msg string) []byte {
	return protocol.BuildError(reqID, result, msg)
}

// validUsername reports whether username is 3-20 characters, all
// alphanumeric or underscore.
func validUsername(username string) bool {
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return false
	}
	for _, c := range username {
		if !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') && c != '_' {
			return false
		}
	}
	return true
}

// handleRegister runs the Register sequence: rate limit, basic
// validation, hash the credential, insert the account, mint a session.
func (s *Server) handleRegister(pkt protocol.Packet, senderIP, traceID string) []byte {
	reqID := pkt.Header.RequestID

	if s.policy.RateLimit.Check(senderIP, security.OpRegister) {
		return errResponse(reqID, protocol.ResultRateLimited, "too many registration attempts")
	}
	s.policy.RateLimit.Record(senderIP, security.OpRegister)

	req, err := protocol.DecodeRegisterRequest(pkt.Payload)
	if err != nil {
		return errResponse(reqID, protocol.ResultServerError, "malformed request")
	}

	if !validUsername(req.Username) {
		return errResponse(reqID, protocol.ResultInvalidUsername, "username must be 3-20 characters, alphanumeric or underscore")
	}
	if len(req.PasswordHash) < minPasswordHashLen {
		return errResponse(reqID, protocol.ResultPasswordTooShort, "password must be at least 8 characters")
	}

	credential, err := cryptoutil.HashPassword([]byte(req.PasswordHash), s.hashCost)
	if err != nil {
		log.Printf("[auth %s] hash password: %v", traceID, err)
		return errResponse(reqID, protocol.ResultServerError, "internal error")
	}

	accountID, err := s.store.CreateAccount(req.Username, credential)
	if errors.Is(err, store.ErrUsernameTaken) {
		return errResponse(reqID, protocol.ResultUsernameTaken, "username already registered")
	}
	if err != nil {
		log.Printf("[auth %s] create account: %v", traceID, err)
		return errResponse(reqID, protocol.ResultServerError, "internal error")
	}

	token, err := cryptoutil.SecureToken(32)
	if err != nil {
		log.Printf("[auth %s] generate token: %v", traceID, err)
		return errResponse(reqID, protocol.ResultServerError, "internal error")
	}
	expiresAt := time.Now().Add(store.SessionDuration).Unix()
	if err := s.store.CreateSession(token, accountID, expiresAt, senderIP); err != nil {
		log.Printf("[auth %s] create session: %v", traceID, err)
		return errResponse(reqID, protocol.ResultServerError, "internal error")
	}

	s.policy.Roaming.RecordLogin(accountID, senderIP)
	s.stats.incRegistrations()
	_ = s.store.LogLoginAttempt(accountID, senderIP, true, "")

	return protocol.Build(protocol.MsgRegisterResponse, reqID, accountID, protocol.AccountTokenResponse{
		Result:    protocol.ResultSuccess,
		AccountID: accountID,
		Token:     token,
	})
}

// handleLogin runs the Login sequence. The same InvalidCredentials
// result and wording cover both an unknown username and a wrong password,
// so a client can never distinguish the two.
func (s *Server) handleLogin(pkt protocol.Packet, senderIP, traceID string) []byte {
	reqID := pkt.Header.RequestID

	if s.policy.RateLimit.Check(senderIP, security.OpLogin) {
		return errResponse(reqID, protocol.ResultRateLimited, "too many login attempts")
	}
	req, err := protocol.DecodeLoginRequest(pkt.Payload)
	if err != nil {
		return errResponse(reqID, protocol.ResultServerError, "malformed request")
	}

	account, err := s.store.GetAccountByUsername(req.Username)
	if errors.Is(err, store.ErrAccountNotFound) {
		s.policy.RateLimit.Record(senderIP, security.OpLogin)
		s.stats.incFailedLogins()
		_ = s.store.LogLoginAttempt(0, senderIP, false, "unknown username")
		return errResponse(reqID, protocol.ResultInvalidCredentials, "invalid username or password")
	}
	if err != nil {
		log.Printf("[auth %s] get account: %v", traceID, err)
		return errResponse(reqID, protocol.ResultServerError, "internal error")
	}

	now := time.Now().Unix()
	if account.IsBanActive(now) {
		s.policy.RateLimit.Record(senderIP, security.OpLogin)
		s.stats.incFailedLogins()
		_ = s.store.LogLoginAttempt(account.AccountID, senderIP, false, "banned")
		return errResponse(reqID, protocol.ResultAccountBanned, "account is banned")
	}

	locked, err := s.store.IsAccountLocked(account.AccountID)
	if err != nil {
		log.Printf("[auth %s] check lock: %v", traceID, err)
		return errResponse(reqID, protocol.ResultServerError, "internal error")
	}
	if locked {
		s.policy.RateLimit.Record(senderIP, security.OpLogin)
		s.stats.incFailedLogins()
		_ = s.store.LogLoginAttempt(account.AccountID, senderIP, false, "locked")
		return errResponse(reqID, protocol.ResultInvalidCredentials, "invalid username or password")
	}

	if !cryptoutil.VerifyPassword([]byte(req.PasswordHash), account.Credential) {
		s.policy.RateLimit.Record(senderIP, security.OpLogin)
		s.stats.incFailedLogins()
		_ = s.store.LogLoginAttempt(account.AccountID, senderIP, false, "bad password")
		if n, err := s.store.IncrementFailedLoginAttempts(account.AccountID); err == nil && n >= 5 {
			_ = s.store.LockAccount(account.AccountID, time.Now().Add(15*time.Minute).Unix())
		}
		return errResponse(reqID, protocol.ResultInvalidCredentials, "invalid username or password")
	}

	if s.policy.Roaming.IsSuspicious(account.AccountID, senderIP) {
		log.Printf("[auth %s] account %d login from unfamiliar IP %s", traceID, account.AccountID, senderIP)
	}
	s.policy.Roaming.RecordLogin(account.AccountID, senderIP)

	token, err := cryptoutil.SecureToken(32)
	if err != nil {
		log.Printf("[auth %s] generate token: %v", traceID, err)
		return errResponse(reqID, protocol.ResultServerError, "internal error")
	}
	expiresAt := time.Now().Add(store.SessionDuration).Unix()
	if err := s.store.CreateSession(token, account.AccountID, expiresAt, senderIP); err != nil {
		log.Printf("[auth %s] create session: %v", traceID, err)
		return errResponse(reqID, protocol.ResultServerError, "internal error")
	}

	_ = s.store.UpdateLastLogin(account.AccountID)
	_ = s.store.LogLoginAttempt(account.AccountID, senderIP, true, "")
	s.policy.RateLimit.Reset(senderIP, security.OpLogin)
	s.stats.incSuccessfulLogins()

	return protocol.Build(protocol.MsgLoginResponse, reqID, account.AccountID, protocol.AccountTokenResponse{
		Result:    protocol.ResultSuccess,
		AccountID: account.AccountID,
		Token:     token,
	})
}

// handleValidateToken runs the ValidateToken sequence: look up the
// session, reject if expired, renew on success (sliding window), and
// report whether the owning account is currently banned.
func (s *Server) handleValidateToken(pkt protocol.Packet, senderIP, traceID string) []byte {
	reqID := pkt.Header.RequestID

	if s.policy.RateLimit.Check(senderIP, security.OpTokenValidation) {
		return errResponse(reqID, protocol.ResultRateLimited, "too many validation attempts")
	}
	s.policy.RateLimit.Record(senderIP, security.OpTokenValidation)

	req, err := protocol.DecodeValidateTokenRequest(pkt.Payload)
	if err != nil {
		return errResponse(reqID, protocol.ResultServerError, "malformed request")
	}

	sess, err := s.store.GetSession(req.Token)
	if errors.Is(err, store.ErrSessionNotFound) {
		return errResponse(reqID, protocol.ResultTokenInvalid, "session not found")
	}
	if err != nil {
		log.Printf("[auth %s] get session: %v", traceID, err)
		return errResponse(reqID, protocol.ResultServerError, "internal error")
	}

	now := time.Now().Unix()
	if sess.ExpiresAt < now {
		_ = s.store.DeleteSession(req.Token)
		return errResponse(reqID, protocol.ResultTokenExpired, "session expired")
	}

	account, err := s.store.GetAccountByID(sess.AccountID)
	if err != nil {
		log.Printf("[auth %s] get account: %v", traceID, err)
		return errResponse(reqID, protocol.ResultServerError, "internal error")
	}

	newExpiry := time.Now().Add(store.SessionDuration).Unix()
	if err := s.store.UpdateSessionExpiration(req.Token, newExpiry); err != nil {
		log.Printf("[auth %s] update session expiration: %v", traceID, err)
		return errResponse(reqID, protocol.ResultServerError, "internal error")
	}

	s.stats.incTokenValidations()

	return protocol.Build(protocol.MsgValidateTokenResponse, reqID, account.AccountID, protocol.ValidateTokenResponse{
		Result:    protocol.ResultSuccess,
		AccountID: account.AccountID,
		ExpiresAt: newExpiry,
		IsBanned:  account.IsBanActive(now),
	})
}

// handleLogout runs the Logout sequence: always idempotent, optionally
// revoking every other session on the same account.
func (s *Server) handleLogout(pkt protocol.Packet, senderIP, traceID string) []byte {
	reqID := pkt.Header.RequestID

	req, err := protocol.DecodeLogoutRequest(pkt.Payload)
	if err != nil {
		return errResponse(reqID, protocol.ResultServerError, "malformed request")
	}

	sess, err := s.store.GetSession(req.Token)
	if errors.Is(err, store.ErrSessionNotFound) {
		return protocol.Build(protocol.MsgLogoutResponse, reqID, 0, protocol.SessionCountResponse{
			Result:              protocol.ResultSuccess,
			SessionsInvalidated: 0,
		})
	}
	if err != nil {
		log.Printf("[auth %s] get session: %v", traceID, err)
		return errResponse(reqID, protocol.ResultServerError, "internal error")
	}

	var invalidated int64 = 1
	if req.LogoutAllSessions {
		n, err := s.store.DeleteAllSessionsForAccount(sess.AccountID, "")
		if err != nil {
			log.Printf("[auth %s] delete all sessions: %v", traceID, err)
			return errResponse(reqID, protocol.ResultServerError, "internal error")
		}
		invalidated = n
	} else if err := s.store.DeleteSession(req.Token); err != nil {
		log.Printf("[auth %s] delete session: %v", traceID, err)
		return errResponse(reqID, protocol.ResultServerError, "internal error")
	}

	return protocol.Build(protocol.MsgLogoutResponse, reqID, sess.AccountID, protocol.SessionCountResponse{
		Result:              protocol.ResultSuccess,
		SessionsInvalidated: uint32(invalidated),
	})
}

// handleChangePassword runs the ChangePassword sequence: re-verify the
// live session and the old credential, then rehash and revoke every
// other session, keeping the presenting one alive.
func (s *Server) handleChangePassword(pkt protocol.Packet, senderIP, traceID string) []byte {
	reqID := pkt.Header.RequestID

	if s.policy.RateLimit.Check(senderIP, security.OpPasswordReset) {
		return errResponse(reqID, protocol.ResultRateLimited, "too many password change attempts")
	}
	s.policy.RateLimit.Record(senderIP, security.OpPasswordReset)

	req, err := protocol.DecodeChangePasswordRequest(pkt.Payload)
	if err != nil {
		return errResponse(reqID, protocol.ResultServerError, "malformed request")
	}

	sess, err := s.store.GetSession(req.Token)
	if errors.Is(err, store.ErrSessionNotFound) {
		return errResponse(reqID, protocol.ResultTokenInvalid, "session not found")
	}
	if err != nil {
		log.Printf("[auth %s] get session: %v", traceID, err)
		return errResponse(reqID, protocol.ResultServerError, "internal error")
	}
	if sess.ExpiresAt < time.Now().Unix() {
		_ = s.store.DeleteSession(req.Token)
		return errResponse(reqID, protocol.ResultTokenExpired, "session expired")
	}

	account, err := s.store.GetAccountByID(sess.AccountID)
	if err != nil {
		log.Printf("[auth %s] get account: %v", traceID, err)
		return errResponse(reqID, protocol.ResultServerError, "internal error")
	}

	if !cryptoutil.VerifyPassword([]byte(req.OldPasswordHash), account.Credential) {
		return errResponse(reqID, protocol.ResultInvalidCredentials, "invalid current password")
	}
	if len(req.NewPasswordHash) < minPasswordHashLen {
		return errResponse(reqID, protocol.ResultPasswordTooShort, "new password must be at least 8 characters")
	}

	newCredential, err := cryptoutil.HashPassword([]byte(req.NewPasswordHash), s.hashCost)
	if err != nil {
		log.Printf("[auth %s] hash password: %v", traceID, err)
		return errResponse(reqID, protocol.ResultServerError, "internal error")
	}

	if err := s.store.UpdatePassword(account.AccountID, newCredential); err != nil {
		log.Printf("[auth %s] update password: %v", traceID, err)
		return errResponse(reqID, protocol.ResultServerError, "internal error")
	}

	n, err := s.store.DeleteAllSessionsForAccount(account.AccountID, req.Token)
	if err != nil {
		log.Printf("[auth %s] revoke other sessions: %v", traceID, err)
		return errResponse(reqID, protocol.ResultServerError, "internal error")
	}

	return protocol.Build(protocol.MsgChangePasswordResponse, reqID, account.AccountID, protocol.SessionCountResponse{
		Result:              protocol.ResultSuccess,
		SessionsInvalidated: uint32(n),
	})
}
