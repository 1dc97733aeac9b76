package server

import (
	"testing"

	"github.com/Svetlana-gith/dota2clone-authd/internal/cryptoutil"
	"github.com/Svetlana-gith/dota2clone-authd/internal/protocol"
	"github.com/Svetlana-gith/dota2clone-authd/internal/security"
	"github.com/Svetlana-gith/dota2clone-authd/internal/store"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, security.NewPolicy(), cryptoutil.DefaultCost)
}

func parseResponse(t *testing.T, datagram []byte) protocol.Packet {
	t.Helper()
	pkt, err := parseAny(datagram)
	if err != nil {
		t.Fatalf("failed to parse response datagram: %v", err)
	}
	return pkt
}

// parseAny decodes a response datagram without the request-type
// restriction protocol.Parse applies (responses aren't request types).
func parseAny(datagram []byte) (protocol.Packet, error) {
	h, err := protocol.DecodeHeader(datagram)
	if err != nil {
		return protocol.Packet{}, err
	}
	return protocol.Packet{Header: h, Payload: datagram[protocol.HeaderSize:]}, nil
}

func registerPacket(t *testing.T, reqID uint32, username, passwordHash string) protocol.Packet {
	t.Helper()
	payload := protocol.RegisterRequest{Username: username, PasswordHash: passwordHash}
	datagram := protocol.Build(protocol.MsgRegisterRequest, reqID, 0, payload)
	pkt, err := protocol.Parse(datagram)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	return pkt
}

func loginPacket(t *testing.T, reqID uint32, username, passwordHash string) protocol.Packet {
	t.Helper()
	payload := protocol.LoginRequest{Username: username, PasswordHash: passwordHash}
	datagram := protocol.Build(protocol.MsgLoginRequest, reqID, 0, payload)
	pkt, err := protocol.Parse(datagram)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	return pkt
}

func TestRegisterThenLogin(t *testing.T) {
	s := setupTestServer(t)

	regResp := s.Handle(registerPacket(t, 1, "alice", "clienthash1"), "1.2.3.4")
	pkt := parseResponse(t, regResp)
	if pkt.Header.Type != protocol.MsgRegisterResponse {
		t.Fatalf("got type %s, want RegisterResponse", pkt.Header.Type)
	}
	body, err := protocol.DecodeAccountTokenResponse(pkt.Payload)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Result != protocol.ResultSuccess {
		t.Fatalf("got result %s, want Success", body.Result)
	}
	if body.Token == "" {
		t.Fatal("expected non-empty token on register")
	}

	loginResp := s.Handle(loginPacket(t, 2, "alice", "clienthash1"), "1.2.3.4")
	pkt = parseResponse(t, loginResp)
	if pkt.Header.Type != protocol.MsgLoginResponse {
		t.Fatalf("got type %s, want LoginResponse", pkt.Header.Type)
	}
	loginBody, err := protocol.DecodeAccountTokenResponse(pkt.Payload)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if loginBody.Result != protocol.ResultSuccess {
		t.Fatalf("got result %s, want Success", loginBody.Result)
	}
	if loginBody.AccountID != body.AccountID {
		t.Errorf("login account id %d != register account id %d", loginBody.AccountID, body.AccountID)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	s := setupTestServer(t)

	s.Handle(registerPacket(t, 1, "bob", "hashone1"), "1.2.3.4")
	resp := s.Handle(registerPacket(t, 2, "bob", "hashtwo2"), "1.2.3.4")
	pkt := parseResponse(t, resp)
	if pkt.Header.Type != protocol.MsgError {
		t.Fatalf("got type %s, want Error", pkt.Header.Type)
	}
	errPayload, err := protocol.DecodeErrorPayload(pkt.Payload)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errPayload.Result != protocol.ResultUsernameTaken {
		t.Errorf("got result %s, want UsernameTaken", errPayload.Result)
	}
}

func TestLoginWrongPasswordDoesNotLeakAccountExistence(t *testing.T) {
	s := setupTestServer(t)
	s.Handle(registerPacket(t, 1, "carol", "correcthash"), "1.2.3.4")

	wrongUserResp := s.Handle(loginPacket(t, 2, "nosuchuser", "whatever"), "1.2.3.4")
	wrongPassResp := s.Handle(loginPacket(t, 3, "carol", "wronghash"), "1.2.3.4")

	wrongUserPkt := parseResponse(t, wrongUserResp)
	wrongPassPkt := parseResponse(t, wrongPassResp)

	wrongUserErr, err := protocol.DecodeErrorPayload(wrongUserPkt.Payload)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	wrongPassErr, err := protocol.DecodeErrorPayload(wrongPassPkt.Payload)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if wrongUserErr.Result != protocol.ResultInvalidCredentials {
		t.Errorf("unknown username: got result %s, want InvalidCredentials", wrongUserErr.Result)
	}
	if wrongPassErr.Result != protocol.ResultInvalidCredentials {
		t.Errorf("wrong password: got result %s, want InvalidCredentials", wrongPassErr.Result)
	}
	if wrongUserErr.Message != wrongPassErr.Message {
		t.Errorf("error messages must be identical to avoid leaking account existence: %q vs %q",
			wrongUserErr.Message, wrongPassErr.Message)
	}
}

func TestLoginLockoutAfterFiveFailures(t *testing.T) {
	s := setupTestServer(t)
	s.Handle(registerPacket(t, 1, "dave", "correcthash"), "1.2.3.4")

	for i := 0; i < 5; i++ {
		s.Handle(loginPacket(t, uint32(i+2), "dave", "wronghash"), "5.5.5.5")
	}

	// Log in from a different IP: 5.5.5.5 is now rate-limited for Login,
	// which would answer RateLimited before the lock check is reached.
	resp := s.Handle(loginPacket(t, 100, "dave", "correcthash"), "5.5.5.6")
	pkt := parseResponse(t, resp)
	errPayload, err := protocol.DecodeErrorPayload(pkt.Payload)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errPayload.Result != protocol.ResultInvalidCredentials {
		t.Errorf("got result %s, want InvalidCredentials (locked account masked as bad credentials)", errPayload.Result)
	}
}

func TestValidateTokenRoundTrip(t *testing.T) {
	s := setupTestServer(t)
	regResp := s.Handle(registerPacket(t, 1, "erin", "hashone1"), "1.2.3.4")
	regPkt := parseResponse(t, regResp)
	regBody, _ := protocol.DecodeAccountTokenResponse(regPkt.Payload)

	reqPayload := protocol.ValidateTokenRequest{Token: regBody.Token}
	datagram := protocol.Build(protocol.MsgValidateTokenRequest, 5, 0, reqPayload)
	pkt, err := protocol.Parse(datagram)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	resp := s.Handle(pkt, "1.2.3.4")
	respPkt := parseResponse(t, resp)
	if respPkt.Header.Type != protocol.MsgValidateTokenResponse {
		t.Fatalf("got type %s, want ValidateTokenResponse", respPkt.Header.Type)
	}
	body, err := protocol.DecodeValidateTokenResponse(respPkt.Payload)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Result != protocol.ResultSuccess {
		t.Fatalf("got result %s, want Success", body.Result)
	}
	if body.AccountID != regBody.AccountID {
		t.Errorf("got account id %d, want %d", body.AccountID, regBody.AccountID)
	}
	if body.IsBanned {
		t.Error("freshly registered account should not be banned")
	}
}

func TestValidateUnknownTokenRejected(t *testing.T) {
	s := setupTestServer(t)
	reqPayload := protocol.ValidateTokenRequest{Token: "deadbeef"}
	datagram := protocol.Build(protocol.MsgValidateTokenRequest, 1, 0, reqPayload)
	pkt, err := protocol.Parse(datagram)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	resp := s.Handle(pkt, "1.2.3.4")
	respPkt := parseResponse(t, resp)
	errPayload, err := protocol.DecodeErrorPayload(respPkt.Payload)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errPayload.Result != protocol.ResultTokenInvalid {
		t.Errorf("got result %s, want TokenInvalid", errPayload.Result)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	s := setupTestServer(t)
	regResp := s.Handle(registerPacket(t, 1, "frank", "hashone1"), "1.2.3.4")
	regPkt := parseResponse(t, regResp)
	regBody, _ := protocol.DecodeAccountTokenResponse(regPkt.Payload)

	logoutOnce := func() protocol.SessionCountResponse {
		reqPayload := protocol.LogoutRequest{Token: regBody.Token}
		datagram := protocol.Build(protocol.MsgLogoutRequest, 2, 0, reqPayload)
		pkt, err := protocol.Parse(datagram)
		if err != nil {
			t.Fatalf("Parse() error: %v", err)
		}
		resp := s.Handle(pkt, "1.2.3.4")
		respPkt := parseResponse(t, resp)
		body, err := protocol.DecodeSessionCountResponse(respPkt.Payload)
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		return body
	}

	first := logoutOnce()
	if first.Result != protocol.ResultSuccess {
		t.Fatalf("first logout: got result %s, want Success", first.Result)
	}

	second := logoutOnce()
	if second.Result != protocol.ResultSuccess {
		t.Fatalf("second logout: got result %s, want Success (idempotent)", second.Result)
	}
}

func TestChangePasswordRevokesOtherSessionsButKeepsCurrent(t *testing.T) {
	s := setupTestServer(t)
	regResp := s.Handle(registerPacket(t, 1, "grace", "oldhashoo"), "1.2.3.4")
	regPkt := parseResponse(t, regResp)
	regBody, _ := protocol.DecodeAccountTokenResponse(regPkt.Payload)

	loginResp := s.Handle(loginPacket(t, 2, "grace", "oldhashoo"), "9.9.9.9")
	loginPkt := parseResponse(t, loginResp)
	loginBody, _ := protocol.DecodeAccountTokenResponse(loginPkt.Payload)

	changeReq := protocol.ChangePasswordRequest{
		Token:           regBody.Token,
		OldPasswordHash: "oldhashoo",
		NewPasswordHash: "newhashnn",
	}
	datagram := protocol.Build(protocol.MsgChangePasswordRequest, 3, 0, changeReq)
	pkt, err := protocol.Parse(datagram)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	resp := s.Handle(pkt, "1.2.3.4")
	respPkt := parseResponse(t, resp)
	body, err := protocol.DecodeSessionCountResponse(respPkt.Payload)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Result != protocol.ResultSuccess {
		t.Fatalf("got result %s, want Success", body.Result)
	}
	if body.SessionsInvalidated != 1 {
		t.Errorf("got %d sessions invalidated, want 1 (the second login session)", body.SessionsInvalidated)
	}

	validateReq := protocol.ValidateTokenRequest{Token: regBody.Token}
	vDatagram := protocol.Build(protocol.MsgValidateTokenRequest, 4, 0, validateReq)
	vPkt, err := protocol.Parse(vDatagram)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	vResp := s.Handle(vPkt, "1.2.3.4")
	vRespPkt := parseResponse(t, vResp)
	if vRespPkt.Header.Type != protocol.MsgValidateTokenResponse {
		t.Fatalf("presenting session should still be valid after password change, got %s", vRespPkt.Header.Type)
	}

	staleReq := protocol.ValidateTokenRequest{Token: loginBody.Token}
	sDatagram := protocol.Build(protocol.MsgValidateTokenRequest, 5, 0, staleReq)
	sPkt, err := protocol.Parse(sDatagram)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	sResp := s.Handle(sPkt, "1.2.3.4")
	sRespPkt := parseResponse(t, sResp)
	if sRespPkt.Header.Type != protocol.MsgError {
		t.Fatalf("revoked session should be rejected, got %s", sRespPkt.Header.Type)
	}
}

func TestBlacklistedSenderIsSilentlyDropped(t *testing.T) {
	s := setupTestServer(t)
	s.policy.Blacklist.Add("6.6.6.6", 0)

	resp := s.Handle(registerPacket(t, 1, "hank", "hash1"), "6.6.6.6")
	if resp != nil {
		t.Errorf("expected nil (silent drop) for blacklisted sender, got %d bytes", len(resp))
	}
}

func TestRegisterRejectsInvalidUsername(t *testing.T) {
	cases := []struct {
		name     string
		username string
	}{
		{"too short", "ab"},
		{"too long", "abcdefghijklmnopqrstu"},
		{"bad chars", "bad-name!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := setupTestServer(t)
			resp := s.Handle(registerPacket(t, 1, tc.username, "validhash1"), "1.2.3.4")
			pkt := parseResponse(t, resp)
			errPayload, err := protocol.DecodeErrorPayload(pkt.Payload)
			if err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if errPayload.Result != protocol.ResultInvalidUsername {
				t.Errorf("got result %s, want InvalidUsername", errPayload.Result)
			}
		})
	}
}

func TestRegisterRejectsShortPasswordHash(t *testing.T) {
	s := setupTestServer(t)
	resp := s.Handle(registerPacket(t, 1, "shortpw", "1234567"), "1.2.3.4")
	pkt := parseResponse(t, resp)
	errPayload, err := protocol.DecodeErrorPayload(pkt.Payload)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errPayload.Result != protocol.ResultPasswordTooShort {
		t.Errorf("got result %s, want PasswordTooShort", errPayload.Result)
	}
}

func TestChangePasswordRejectsShortNewPasswordHash(t *testing.T) {
	s := setupTestServer(t)
	regResp := s.Handle(registerPacket(t, 1, "ivan", "oldhashoo"), "1.2.3.4")
	regPkt := parseResponse(t, regResp)
	regBody, _ := protocol.DecodeAccountTokenResponse(regPkt.Payload)

	changeReq := protocol.ChangePasswordRequest{
		Token:           regBody.Token,
		OldPasswordHash: "oldhashoo",
		NewPasswordHash: "short",
	}
	datagram := protocol.Build(protocol.MsgChangePasswordRequest, 2, 0, changeReq)
	pkt, err := protocol.Parse(datagram)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	resp := s.Handle(pkt, "1.2.3.4")
	respPkt := parseResponse(t, resp)
	errPayload, err := protocol.DecodeErrorPayload(respPkt.Payload)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errPayload.Result != protocol.ResultPasswordTooShort {
		t.Errorf("got result %s, want PasswordTooShort", errPayload.Result)
	}
}

func TestRegisterRateLimited(t *testing.T) {
	s := setupTestServer(t)
	for i := 0; i < 3; i++ {
		s.Handle(registerPacket(t, uint32(i+1), "user"+string(rune('a'+i)), "hash"), "7.7.7.7")
	}
	resp := s.Handle(registerPacket(t, 100, "oneTooMany", "hash"), "7.7.7.7")
	pkt := parseResponse(t, resp)
	errPayload, err := protocol.DecodeErrorPayload(pkt.Payload)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errPayload.Result != protocol.ResultRateLimited {
		t.Errorf("got result %s, want RateLimited", errPayload.Result)
	}
}
