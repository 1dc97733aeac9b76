package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the on-wire size of Header in bytes.
const HeaderSize = 4 + 2 + 2 + 4 + 8 + 4 // magic, version, type, requestId, accountId, payloadSize

// ErrMalformed is returned for any datagram too short or otherwise
// structurally invalid to contain a header.
var ErrMalformed = errors.New("protocol: malformed packet")

// ErrUnknownType is returned when the header names a message type this
// codec doesn't recognize.
var ErrUnknownType = errors.New("protocol: unknown message type")

// ErrSizeMismatch is returned when the header's declared payload size
// disagrees with the datagram's actual tail length.
var ErrSizeMismatch = errors.New("protocol: payload size mismatch")

// Header is the fixed-layout record prefixing every packet.
type Header struct {
	Magic       uint32
	Version     uint16
	Type        MessageType
	RequestID   uint32
	AccountID   uint64
	PayloadSize uint32
}

// Encode writes the header in wire format (little-endian).
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.LittleEndian.PutUint32(buf[8:12], h.RequestID)
	binary.LittleEndian.PutUint64(buf[12:20], h.AccountID)
	binary.LittleEndian.PutUint32(buf[20:24], h.PayloadSize)
	return buf
}

// DecodeHeader parses a header from the front of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformed, len(buf), HeaderSize)
	}
	h := Header{
		Magic:       binary.LittleEndian.Uint32(buf[0:4]),
		Version:     binary.LittleEndian.Uint16(buf[4:6]),
		Type:        MessageType(binary.LittleEndian.Uint16(buf[6:8])),
		RequestID:   binary.LittleEndian.Uint32(buf[8:12]),
		AccountID:   binary.LittleEndian.Uint64(buf[12:20]),
		PayloadSize: binary.LittleEndian.Uint32(buf[20:24]),
	}
	if h.Magic != Magic {
		return Header{}, fmt.Errorf("%w: bad magic", ErrMalformed)
	}
	return h, nil
}

// putString copies s into dst, truncating to len(dst)-1 bytes and always
// null-terminating. The sender truncates oversize strings; the receiver
// never reads past dst's bound.
func putString(dst []byte, s string) {
	n := len(dst) - 1
	if len(s) < n {
		n = len(s)
	}
	copy(dst, s[:n])
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// getString reads a null-terminated string out of a fixed-size buffer.
func getString(src []byte) string {
	for i, b := range src {
		if b == 0 {
			return string(src[:i])
		}
	}
	return string(src)
}
