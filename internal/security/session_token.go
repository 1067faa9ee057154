package security

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"navdir/internal/clock"
	"navdir/internal/domain"
)

// TokenCodec issues and verifies session tokens of the form
// base64url(payload-json) "." base64url(hmac-sha256(payload-part)).
type TokenCodec struct {
	clock clock.Clock
}

func NewTokenCodec(c clock.Clock) *TokenCodec {
	if c == nil {
		c = clock.Real{}
	}
	return &TokenCodec{clock: c}
}

// Issue signs a token for subject that expires ttl from now.
func (tc *TokenCodec) Issue(secret, subject string, ttl time.Duration) (string, error) {
	claims := domain.SessionClaims{
		Subject:     subject,
		ExpiresAtMs: tc.clock.Now().Add(ttl).UnixMilli(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("encode session claims: %w", err)
	}
	body := EncodeBase64URL(payload)
	return body + "." + Sign(secret, body), nil
}

// Verify returns the claims of a valid, unexpired token. Every failure is
// reported as domain.ErrInvalidToken.
func (tc *TokenCodec) Verify(secret, token string) (domain.SessionClaims, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok || body == "" || sig == "" || strings.Contains(sig, ".") {
		return domain.SessionClaims{}, domain.ErrInvalidToken
	}
	if !Verify(secret, body, sig) {
		return domain.SessionClaims{}, domain.ErrInvalidToken
	}

	raw, err := DecodeBase64URL(body)
	if err != nil {
		return domain.SessionClaims{}, domain.ErrInvalidToken
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return domain.SessionClaims{}, domain.ErrInvalidToken
	}
	claims, ok := domain.ParseSessionClaims(decoded)
	if !ok {
		return domain.SessionClaims{}, domain.ErrInvalidToken
	}
	if clock.NowMs(tc.clock) > claims.ExpiresAtMs {
		return domain.SessionClaims{}, domain.ErrInvalidToken
	}
	return claims, nil
}
