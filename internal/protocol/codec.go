package protocol

import "fmt"

// Packet is a parsed header plus its raw payload bytes, ready for
// message-type-specific decoding by the dispatcher.
type Packet struct {
	Header  Header
	Payload []byte
}

// MaxDatagramSize is the largest datagram this service accepts.
const MaxDatagramSize = 1400

// Parse validates and splits a raw datagram into header + payload. It
// rejects anything shorter than the header, any payload-size field that
// disagrees with the datagram's actual tail length, and any unknown
// message type. It does not validate payload semantics — handlers do.
//
// On error the returned Packet's Header is still populated whenever
// DecodeHeader itself succeeded (i.e. for ErrSizeMismatch and
// ErrUnknownType, but not ErrMalformed) — callers that need to reply with
// the caller's real RequestID, such as an unknown-type error, can use it.
func Parse(datagram []byte) (Packet, error) {
	if len(datagram) > MaxDatagramSize {
		return Packet{}, fmt.Errorf("%w: %d bytes exceeds max datagram size", ErrMalformed, len(datagram))
	}

	h, err := DecodeHeader(datagram)
	if err != nil {
		return Packet{}, err
	}

	payload := datagram[HeaderSize:]
	if int(h.PayloadSize) != len(payload) {
		return Packet{Header: h}, fmt.Errorf("%w: header says %d, datagram has %d", ErrSizeMismatch, h.PayloadSize, len(payload))
	}

	if !isKnownRequestType(h.Type) {
		return Packet{Header: h}, fmt.Errorf("%w: %d", ErrUnknownType, h.Type)
	}

	return Packet{Header: h, Payload: payload}, nil
}

func isKnownRequestType(t MessageType) bool {
	switch t {
	case MsgRegisterRequest, MsgLoginRequest, MsgValidateTokenRequest, MsgLogoutRequest, MsgChangePasswordRequest:
		return true
	default:
		return false
	}
}

// encodable is satisfied by every response payload type.
type encodable interface {
	Encode() []byte
}

// Build assembles a complete packet: header followed by the encoded
// payload, with the header's payloadSize and accountId fields filled in
// from the payload and accountID.
func Build(msgType MessageType, requestID uint32, accountID uint64, payload encodable) []byte {
	body := payload.Encode()
	h := Header{
		Magic:       Magic,
		Version:     ProtocolVersion,
		Type:        msgType,
		RequestID:   requestID,
		AccountID:   accountID,
		PayloadSize: uint32(len(body)),
	}
	return append(h.Encode(), body...)
}

// BuildError assembles a generic Error response referencing requestID.
func BuildError(requestID uint32, result Result, message string) []byte {
	return Build(MsgError, requestID, 0, ErrorPayload{Result: result, Message: message})
}
