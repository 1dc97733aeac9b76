package protocol

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Magic:       Magic,
		Version:     ProtocolVersion,
		Type:        MsgLoginRequest,
		RequestID:   42,
		AccountID:   7,
		PayloadSize: 10,
	}
	decoded, err := DecodeHeader(h.Encode())
	if err != nil {
		t.Fatalf("DecodeHeader() error: %v", err)
	}
	if decoded != h {
		t.Errorf("got %+v, want %+v", decoded, h)
	}
}

func TestDecodeHeaderRejectsTooShort(t *testing.T) {
	if _, err := DecodeHeader([]byte{1, 2, 3}); err == nil {
		t.Error("expected error decoding a too-short buffer")
	}
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	h := Header{Magic: 0xdeadbeef, Version: ProtocolVersion, Type: MsgLoginRequest}
	if _, err := DecodeHeader(h.Encode()); err == nil {
		t.Error("expected error decoding a bad-magic header")
	}
}

func TestParseRejectsSizeMismatch(t *testing.T) {
	req := RegisterRequest{Username: "alice", PasswordHash: "hash"}
	packet := Build(MsgRegisterRequest, 1, 0, req)
	// Truncate the payload without fixing the header's declared size.
	truncated := packet[:len(packet)-5]

	if _, err := Parse(truncated); err == nil {
		t.Error("expected error parsing a packet with mismatched payload size")
	}
}

func TestParseRejectsUnknownType(t *testing.T) {
	req := RegisterRequest{Username: "alice", PasswordHash: "hash"}
	packet := Build(MsgRegisterResponse, 1, 0, req)

	if _, err := Parse(packet); err == nil {
		t.Error("expected error parsing a packet with a non-request message type")
	}
}

func TestParseRejectsOversizeDatagram(t *testing.T) {
	oversized := make([]byte, MaxDatagramSize+1)
	if _, err := Parse(oversized); err == nil {
		t.Error("expected error parsing an oversized datagram")
	}
}

func TestParseAcceptsValidRequest(t *testing.T) {
	req := RegisterRequest{Username: "alice", PasswordHash: "deadbeef"}
	packet := Build(MsgRegisterRequest, 99, 0, req)

	parsed, err := Parse(packet)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if parsed.Header.RequestID != 99 {
		t.Errorf("got request id %d, want 99", parsed.Header.RequestID)
	}

	decoded, err := DecodeRegisterRequest(parsed.Payload)
	if err != nil {
		t.Fatalf("DecodeRegisterRequest() error: %v", err)
	}
	if decoded.Username != "alice" || decoded.PasswordHash != "deadbeef" {
		t.Errorf("got %+v, want alice/deadbeef", decoded)
	}
}

func TestStringTruncationAndNullTermination(t *testing.T) {
	longUsername := "this-username-is-definitely-too-long-for-the-bound"
	req := RegisterRequest{Username: longUsername, PasswordHash: "hash"}
	encoded := req.Encode()

	decoded, err := DecodeRegisterRequest(encoded)
	if err != nil {
		t.Fatalf("DecodeRegisterRequest() error: %v", err)
	}
	if len(decoded.Username) > MaxUsernameLen {
		t.Errorf("decoded username length %d exceeds bound %d", len(decoded.Username), MaxUsernameLen)
	}
	if decoded.Username != longUsername[:MaxUsernameLen] {
		t.Errorf("got %q, want truncated prefix %q", decoded.Username, longUsername[:MaxUsernameLen])
	}
}
