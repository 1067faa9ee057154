// Package security holds the cryptographic primitives behind admin sessions:
// SHA-256 hashing, HMAC-SHA256 signing and verification, constant-time
// comparison and unpadded base64url encoding.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// HashHex returns the lowercase hex SHA-256 digest of text.
func HashHex(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Sign returns the base64url (no padding) HMAC-SHA256 of message keyed by secret.
func Sign(secret, message string) string {
	return EncodeBase64URL(mac(secret, message))
}

// Verify checks a base64url signature produced by Sign. Malformed input
// yields false.
func Verify(secret, message, signature string) bool {
	provided, err := DecodeBase64URL(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(mac(secret, message), provided)
}

// ConstantTimeEqual compares a and b without an early exit. Differing lengths
// return false immediately; lengths are not secret.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// EncodeBase64URL encodes without '+', '/' or '=' characters.
func EncodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeBase64URL decodes unpadded base64url. Padding and non-canonical
// trailing bits are rejected so every encoded string maps to one byte slice.
func DecodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.Strict().DecodeString(s)
}

func mac(secret, message string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return h.Sum(nil)
}
