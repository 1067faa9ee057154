package config

import (
	"strings"

	"navdir/internal/security"
)

// AuthKind tags where an AdminAuth came from.
type AuthKind string

const (
	// ProductionAuth is built from ADMIN_USERNAME, ADMIN_PASSWORD_SHA256 and
	// SESSION_SECRET.
	ProductionAuth AuthKind = "production"
	// DevelopmentAuth is the built-in loopback-only admin, enabled by
	// ALLOW_DEV_DEFAULT_ADMIN.
	DevelopmentAuth AuthKind = "development"
)

const (
	defaultDevAdminUsername = "dev"
	defaultDevAdminPassword = "dev2026"
	defaultDevSessionSecret = "dev-only-session-secret-nav-du-2026"
)

// AdminAuth is the single admin identity and the secret used to sign its
// sessions. PasswordHash is lowercase SHA-256 hex, or a bcrypt hash.
type AdminAuth struct {
	Kind          AuthKind
	Username      string
	PasswordHash  string
	SessionSecret string
}

// ResolveAdminAuth returns the production identity when fully configured.
// Otherwise the development identity is offered, but only when explicitly
// enabled and the request came from the same host.
func (c *Config) ResolveAdminAuth(loopback bool) (AdminAuth, bool) {
	if c.AdminUsername != "" && c.AdminPasswordSHA256 != "" && c.SessionSecret != "" {
		return AdminAuth{
			Kind:          ProductionAuth,
			Username:      c.AdminUsername,
			PasswordHash:  c.AdminPasswordSHA256,
			SessionSecret: c.SessionSecret,
		}, true
	}

	if !c.DevAdminEnabled() || !loopback {
		return AdminAuth{}, false
	}

	return AdminAuth{
		Kind:          DevelopmentAuth,
		Username:      orDefault(c.DevAdminUsername, defaultDevAdminUsername),
		PasswordHash:  security.HashHex(orDefault(c.DevAdminPassword, defaultDevAdminPassword)),
		SessionSecret: orDefault(c.DevSessionSecret, defaultDevSessionSecret),
	}, true
}

// ResolveSessionSecret returns the key that verifies session cookies for a
// request. It follows ResolveAdminAuth so that dev sessions verify against
// the dev secret, and falls back to a bare SESSION_SECRET.
func (c *Config) ResolveSessionSecret(loopback bool) (string, bool) {
	if auth, ok := c.ResolveAdminAuth(loopback); ok {
		return auth.SessionSecret, true
	}
	if c.SessionSecret != "" {
		return c.SessionSecret, true
	}
	return "", false
}

// DevStoreAllowed reports whether the in-memory development document store
// may serve this request.
func (c *Config) DevStoreAllowed(loopback bool) bool {
	return c.DevAdminEnabled() && loopback
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
