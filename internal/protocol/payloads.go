package protocol

import (
	"encoding/binary"
	"fmt"
)

// RegisterRequest carries a candidate username and the client-side
// password digest.
type RegisterRequest struct {
	Username     string
	PasswordHash string
}

const registerRequestSize = usernameSize + passwordHashSize

func (p RegisterRequest) Encode() []byte {
	buf := make([]byte, registerRequestSize)
	putString(buf[0:usernameSize], p.Username)
	putString(buf[usernameSize:], p.PasswordHash)
	return buf
}

func DecodeRegisterRequest(buf []byte) (RegisterRequest, error) {
	if len(buf) != registerRequestSize {
		return RegisterRequest{}, fmt.Errorf("%w: RegisterRequest", ErrSizeMismatch)
	}
	return RegisterRequest{
		Username:     getString(buf[0:usernameSize]),
		PasswordHash: getString(buf[usernameSize:]),
	}, nil
}

// RegisterResponse / LoginResponse share a layout: result, account id, and
// a session token on success.
type AccountTokenResponse struct {
	Result    Result
	AccountID uint64
	Token     string
}

const accountTokenResponseSize = 1 + 8 + tokenSize

func (p AccountTokenResponse) Encode() []byte {
	buf := make([]byte, accountTokenResponseSize)
	buf[0] = byte(p.Result)
	binary.LittleEndian.PutUint64(buf[1:9], p.AccountID)
	putString(buf[9:], p.Token)
	return buf
}

func DecodeAccountTokenResponse(buf []byte) (AccountTokenResponse, error) {
	if len(buf) != accountTokenResponseSize {
		return AccountTokenResponse{}, fmt.Errorf("%w: AccountTokenResponse", ErrSizeMismatch)
	}
	return AccountTokenResponse{
		Result:    Result(buf[0]),
		AccountID: binary.LittleEndian.Uint64(buf[1:9]),
		Token:     getString(buf[9:]),
	}, nil
}

// LoginRequest mirrors RegisterRequest's layout: a username and the
// client-side password digest.
type LoginRequest struct {
	Username     string
	PasswordHash string
}

func (p LoginRequest) Encode() []byte {
	return RegisterRequest(p).Encode()
}

func DecodeLoginRequest(buf []byte) (LoginRequest, error) {
	r, err := DecodeRegisterRequest(buf)
	return LoginRequest(r), err
}

// ValidateTokenRequest carries only the token to validate.
type ValidateTokenRequest struct {
	Token string
}

const validateTokenRequestSize = tokenSize

func (p ValidateTokenRequest) Encode() []byte {
	buf := make([]byte, validateTokenRequestSize)
	putString(buf, p.Token)
	return buf
}

func DecodeValidateTokenRequest(buf []byte) (ValidateTokenRequest, error) {
	if len(buf) != validateTokenRequestSize {
		return ValidateTokenRequest{}, fmt.Errorf("%w: ValidateTokenRequest", ErrSizeMismatch)
	}
	return ValidateTokenRequest{Token: getString(buf)}, nil
}

// ValidateTokenResponse reports the renewed expiration and whether the
// owning account is under an active ban.
type ValidateTokenResponse struct {
	Result    Result
	AccountID uint64
	ExpiresAt int64
	IsBanned  bool
}

const validateTokenResponseSize = 1 + 8 + 8 + 1

func (p ValidateTokenResponse) Encode() []byte {
	buf := make([]byte, validateTokenResponseSize)
	buf[0] = byte(p.Result)
	binary.LittleEndian.PutUint64(buf[1:9], p.AccountID)
	binary.LittleEndian.PutUint64(buf[9:17], uint64(p.ExpiresAt))
	if p.IsBanned {
		buf[17] = 1
	}
	return buf
}

func DecodeValidateTokenResponse(buf []byte) (ValidateTokenResponse, error) {
	if len(buf) != validateTokenResponseSize {
		return ValidateTokenResponse{}, fmt.Errorf("%w: ValidateTokenResponse", ErrSizeMismatch)
	}
	return ValidateTokenResponse{
		Result:    Result(buf[0]),
		AccountID: binary.LittleEndian.Uint64(buf[1:9]),
		ExpiresAt: int64(binary.LittleEndian.Uint64(buf[9:17])),
		IsBanned:  buf[17] != 0,
	}, nil
}

// LogoutRequest carries the token to invalidate and whether to additionally
// revoke every other session on the account.
type LogoutRequest struct {
	Token             string
	LogoutAllSessions bool
}

const logoutRequestSize = tokenSize + 1

func (p LogoutRequest) Encode() []byte {
	buf := make([]byte, logoutRequestSize)
	putString(buf[0:tokenSize], p.Token)
	if p.LogoutAllSessions {
		buf[tokenSize] = 1
	}
	return buf
}

func DecodeLogoutRequest(buf []byte) (LogoutRequest, error) {
	if len(buf) != logoutRequestSize {
		return LogoutRequest{}, fmt.Errorf("%w: LogoutRequest", ErrSizeMismatch)
	}
	return LogoutRequest{
		Token:             getString(buf[0:tokenSize]),
		LogoutAllSessions: buf[tokenSize] != 0,
	}, nil
}

// SessionCountResponse is shared by LogoutResponse and
// ChangePasswordResponse: a result plus the number of sessions invalidated.
type SessionCountResponse struct {
	Result              Result
	SessionsInvalidated uint32
}

const sessionCountResponseSize = 1 + 4

func (p SessionCountResponse) Encode() []byte {
	buf := make([]byte, sessionCountResponseSize)
	buf[0] = byte(p.Result)
	binary.LittleEndian.PutUint32(buf[1:5], p.SessionsInvalidated)
	return buf
}

func DecodeSessionCountResponse(buf []byte) (SessionCountResponse, error) {
	if len(buf) != sessionCountResponseSize {
		return SessionCountResponse{}, fmt.Errorf("%w: SessionCountResponse", ErrSizeMismatch)
	}
	return SessionCountResponse{
		Result:              Result(buf[0]),
		SessionsInvalidated: binary.LittleEndian.Uint32(buf[1:5]),
	}, nil
}

// ChangePasswordRequest presents the live session token and both digests.
type ChangePasswordRequest struct {
	Token           string
	OldPasswordHash string
	NewPasswordHash string
}

const changePasswordRequestSize = tokenSize + passwordHashSize + passwordHashSize

func (p ChangePasswordRequest) Encode() []byte {
	buf := make([]byte, changePasswordRequestSize)
	putString(buf[0:tokenSize], p.Token)
	putString(buf[tokenSize:tokenSize+passwordHashSize], p.OldPasswordHash)
	putString(buf[tokenSize+passwordHashSize:], p.NewPasswordHash)
	return buf
}

func DecodeChangePasswordRequest(buf []byte) (ChangePasswordRequest, error) {
	if len(buf) != changePasswordRequestSize {
		return ChangePasswordRequest{}, fmt.Errorf("%w: ChangePasswordRequest", ErrSizeMismatch)
	}
	return ChangePasswordRequest{
		Token:           getString(buf[0:tokenSize]),
		OldPasswordHash: getString(buf[tokenSize : tokenSize+passwordHashSize]),
		NewPasswordHash: getString(buf[tokenSize+passwordHashSize:]),
	}, nil
}

// ErrorPayload is the generic failure payload sent for a malformed
// dispatch or an unrecoverable internal error.
type ErrorPayload struct {
	Result  Result
	Message string
}

const errorPayloadSize = 1 + errorSize

func (p ErrorPayload) Encode() []byte {
	buf := make([]byte, errorPayloadSize)
	buf[0] = byte(p.Result)
	putString(buf[1:], p.Message)
	return buf
}

func DecodeErrorPayload(buf []byte) (ErrorPayload, error) {
	if len(buf) != errorPayloadSize {
		return ErrorPayload{}, fmt.Errorf("%w: ErrorPayload", ErrSizeMismatch)
	}
	return ErrorPayload{
		Result:  Result(buf[0]),
		Message: getString(buf[1:]),
	}, nil
}
