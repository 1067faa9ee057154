package security

import (
	"crypto/rand"
	"errors"
	"fmt"
)

var ErrSecretTooShort = errors.New("secret must be at least 32 bytes")

// RandomSecret returns n bytes from crypto/rand encoded as base64url, suitable
// for SESSION_SECRET.
func RandomSecret(n int) (string, error) {
	if n < 32 {
		return "", ErrSecretTooShort
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return EncodeBase64URL(b), nil
}
