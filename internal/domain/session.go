package domain

// SessionClaims is the signed payload of a session token.
type SessionClaims struct {
	Subject     string `json:"u"`
	ExpiresAtMs int64  `json:"exp"`
}

// ParseSessionClaims type-checks a decoded JSON payload. Both fields are
// required; exp must be a JSON number.
func ParseSessionClaims(v any) (SessionClaims, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return SessionClaims{}, false
	}
	subject, ok := obj["u"].(string)
	if !ok {
		return SessionClaims{}, false
	}
	exp, ok := obj["exp"].(float64)
	if !ok {
		return SessionClaims{}, false
	}
	return SessionClaims{Subject: subject, ExpiresAtMs: int64(exp)}, true
}
