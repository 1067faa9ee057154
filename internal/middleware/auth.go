package middleware

import (
	"context"
	"errors"
	"net/http"

	"navdir/internal/domain"
	"navdir/internal/observability"
)

type contextKey string

const UsernameKey contextKey = "username"

// SessionCookieName is the cookie carrying the admin session token.
const SessionCookieName = "nav_admin"

// SessionVerifier checks a session token and returns its subject.
type SessionVerifier interface {
	VerifySession(secret, token string) (string, error)
}

// SecretSource yields the secret that signs sessions for a request, given
// whether the request is loopback. *config.Config implements it.
type SecretSource interface {
	ResolveSessionSecret(loopback bool) (string, bool)
}

// RequireAdmin admits only requests carrying a valid admin session cookie.
func RequireAdmin(verifier SessionVerifier, secrets SecretSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, err := authenticate(r, verifier, secrets)
			switch {
			case errors.Is(err, domain.ErrNotConfigured):
				observability.FromContext(r.Context()).Error("session secret not configured")
				writeJSONError(w, http.StatusInternalServerError, "SESSION_SECRET not configured")
				return
			case err != nil:
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUsername(r.Context(), username)))
		})
	}
}

// OptionalAdmin attaches the admin identity when the session is valid and
// otherwise lets the request through untouched.
func OptionalAdmin(verifier SessionVerifier, secrets SecretSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if username, err := authenticate(r, verifier, secrets); err == nil {
				r = r.WithContext(WithUsername(r.Context(), username))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(r *http.Request, verifier SessionVerifier, secrets SecretSource) (string, error) {
	secret, ok := secrets.ResolveSessionSecret(IsLoopbackRequest(r))
	if !ok || secret == "" {
		return "", domain.ErrNotConfigured
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", domain.ErrInvalidToken
	}

	return verifier.VerifySession(secret, cookie.Value)
}

func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok
}

func WithUsername(ctx context.Context, username string) context.Context {
	ctx = context.WithValue(ctx, UsernameKey, username)
	return observability.WithUsername(ctx, username)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
