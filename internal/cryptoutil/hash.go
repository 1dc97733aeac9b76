// Package cryptoutil implements the authentication service's password
// hashing/verification pipeline and token primitives.
//
// The stored credential format is "$2b$NN$<salt><hash>" — bcrypt-shaped,
// but not bcrypt. It is a straight port of external/bcrypt/bcrypt_hash.cpp:
// a salted SHA-256 chain iterated 2^cost times, encoded with the bcrypt
// base64 alphabet. Anything that depends on interop with real OpenBSD
// bcrypt (golang.org/x/crypto/bcrypt included) will reject or mis-verify
// this format; that's intentional, see DESIGN.md.
package cryptoutil

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrEmptyInput is returned by HashPassword when given an empty byte string.
var ErrEmptyInput = errors.New("cryptoutil: empty input")

// ErrCryptoFailure wraps an unexpected RNG failure.
var ErrCryptoFailure = errors.New("cryptoutil: crypto failure")

// DefaultCost is the baseline cost factor. The server hashes with the
// configured cost (config's HashCost, which defaults to the same value),
// not with this constant.
const DefaultCost = 12

const (
	saltSize = 16
	keySize  = 24
	minCost  = 4
	maxCost  = 31

	encodedSaltLen = 22
	encodedKeyLen  = 31
)

// bcryptAlphabet is the bcrypt base64 alphabet: "./A-Za-z0-9".
const bcryptAlphabet = "./ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// HashPassword derives a stored credential string from input (in practice
// the client's SHA-256 hex digest of the user's password) at the given
// cost. Cost is clamped to [4, 31], not rejected.
func HashPassword(input []byte, cost int) (string, error) {
	if len(input) == 0 {
		return "", ErrEmptyInput
	}
	cost = clampCost(cost)

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}

	key := deriveKey(input, salt, cost)

	var sb strings.Builder
	sb.WriteString("$2b$")
	sb.WriteString(fmt.Sprintf("%02d", cost))
	sb.WriteString("$")
	sb.WriteString(encodeBcrypt64(salt)[:encodedSaltLen])
	sb.WriteString(encodeBcrypt64(key)[:encodedKeyLen])
	return sb.String(), nil
}

// VerifyPassword reports whether input matches the stored credential.
// Comparison of the derived tail against the stored tail runs in
// constant time relative to input content.
func VerifyPassword(input []byte, credential string) bool {
	cost, salt, wantTail, ok := parseCredential(credential)
	if !ok {
		return false
	}
	if len(input) == 0 {
		return false
	}

	key := deriveKey(input, salt, cost)
	gotTail := encodeBcrypt64(key)[:encodedKeyLen]

	return subtle.ConstantTimeCompare([]byte(gotTail), []byte(wantTail)) == 1
}

// SHA256Hex returns the hex-encoded SHA-256 digest of data. By contract,
// empty input returns the empty string, so a client's "no credential
// supplied" can never be confused with a real digest.
func SHA256Hex(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SecureToken returns n random bytes, lowercase hex-encoded (2n chars).
func SecureToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}
	return hex.EncodeToString(b), nil
}

func clampCost(cost int) int {
	if cost < minCost {
		return minCost
	}
	if cost > maxCost {
		return maxCost
	}
	return cost
}

// deriveKey implements the chain from bcrypt_hash.cpp's derive_key:
// initial block = SHA-256(input || salt), each subsequent block =
// SHA-256(previous), iterated 2^cost times, truncated/copied to keySize.
func deriveKey(input, salt []byte, cost int) []byte {
	h := sha256.New()
	h.Write(input)
	h.Write(salt)
	block := h.Sum(nil)

	iterations := uint64(1) << uint(cost)
	for i := uint64(1); i < iterations; i++ {
		sum := sha256.Sum256(block)
		block = sum[:]
	}

	if len(block) > keySize {
		return block[:keySize]
	}
	return block
}

// encodeBcrypt64 encodes src using the bcrypt base64 alphabet, 6 bits per
// character, no padding — same algorithm as bcrypt_hash.cpp's encode_base64.
func encodeBcrypt64(src []byte) string {
	var sb strings.Builder
	sb.Grow((len(src)*8 + 5) / 6)

	for i := 0; i < len(src); i += 3 {
		var c1, c2, c3 uint32
		c1 = uint32(src[i])
		if i+1 < len(src) {
			c2 = uint32(src[i+1])
		}
		if i+2 < len(src) {
			c3 = uint32(src[i+2])
		}

		sb.WriteByte(bcryptAlphabet[c1>>2])
		sb.WriteByte(bcryptAlphabet[((c1&0x03)<<4)|(c2>>4)])
		sb.WriteByte(bcryptAlphabet[((c2&0x0f)<<2)|(c3>>6)])
		sb.WriteByte(bcryptAlphabet[c3&0x3f])
	}
	return sb.String()
}

var bcryptDecodeTable = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(bcryptAlphabet); i++ {
		t[bcryptAlphabet[i]] = int8(i)
	}
	return t
}()

// decodeBcrypt64 decodes an encoded string back to bytes, inverse of
// encodeBcrypt64. n is the number of output bytes desired. The caller
// passes a truncated encoding (e.g. the stored 22-char salt field, which
// is 2 chars short of a whole number of 4-char groups); indices past the
// end of s are treated as the zero character, matching the zero padding
// bytes that produced them during encoding.
func decodeBcrypt64(s string, n int) ([]byte, bool) {
	charAt := func(i int) (int8, bool) {
		if i >= len(s) {
			return 0, true
		}
		v := bcryptDecodeTable[s[i]]
		return v, v >= 0
	}

	out := make([]byte, 0, n)
	for i := 0; i < len(s) && len(out) < n; i += 4 {
		c1, ok1 := charAt(i)
		c2, ok2 := charAt(i + 1)
		c3, ok3 := charAt(i + 2)
		c4, ok4 := charAt(i + 3)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return nil, false
		}
		out = append(out, byte(c1)<<2|byte(c2)>>4)
		if len(out) < n {
			out = append(out, byte(c2)<<4|byte(c3)>>2)
		}
		if len(out) < n {
			out = append(out, byte(c3)<<6|byte(c4))
		}
	}
	if len(out) < n {
		return nil, false
	}
	return out[:n], true
}

// parseCredential parses "$2b$NN$<salt22><hash31>". Rejects anything
// that doesn't exactly match this format.
func parseCredential(credential string) (cost int, salt []byte, tail string, ok bool) {
	if len(credential) != 60 || !strings.HasPrefix(credential, "$2b$") {
		return 0, nil, "", false
	}
	if credential[6] != '$' {
		return 0, nil, "", false
	}
	costStr := credential[4:6]
	c, err := strconv.Atoi(costStr)
	if err != nil || c < minCost || c > maxCost {
		return 0, nil, "", false
	}

	rest := credential[7:]
	if len(rest) != encodedSaltLen+encodedKeyLen {
		return 0, nil, "", false
	}

	saltStr := rest[:encodedSaltLen]
	hashStr := rest[encodedSaltLen:]

	decodedSalt, ok := decodeBcrypt64(saltStr, saltSize)
	if !ok {
		return 0, nil, "", false
	}

	return c, decodedSalt, hashStr, true
}
