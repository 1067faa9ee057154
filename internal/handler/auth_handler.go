package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"navdir/internal/config"
	"navdir/internal/domain"
	"navdir/internal/middleware"
	"navdir/internal/observability"
	"navdir/internal/service"
)

const maxLoginBodyBytes = 16 << 10

// AdminResolver yields the admin identity for a request.
type AdminResolver interface {
	ResolveAdminAuth(loopback bool) (config.AdminAuth, bool)
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
	admins      AdminResolver
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *service.AuthService, admins AdminResolver) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		admins:      admins,
	}
}

// LoginRequest represents login request. Fields are decoded loosely: a
// non-string value counts as an empty string.
type LoginRequest struct {
	Username any `json:"username"`
	Password any `json:"password"`
}

// SessionResponse is returned by a successful login or config write.
type SessionResponse struct {
	OK       bool   `json:"ok"`
	Username string `json:"username"`
}

// MeResponse reports the current session. Username is null when the caller
// is not signed in.
type MeResponse struct {
	Username *string `json:"username"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// Login handles admin login. Mount it behind middleware.RequireJSON.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.admins.ResolveAdminAuth(middleware.IsLoopbackRequest(r))
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "admin not configured")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxLoginBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.authService.Login(r.Context(), admin, service.Credentials{
		Username: asString(req.Username),
		Password: asString(req.Password),
		ClientIP: middleware.ClientIP(r),
	})
	if err != nil {
		var rle *domain.RateLimitError
		switch {
		case errors.As(err, &rle):
			w.Header().Set("Retry-After", strconv.Itoa(rle.RetryAfterSeconds()))
			writeError(w, r, http.StatusTooManyRequests, "too many attempts")
		case errors.Is(err, domain.ErrInvalidCredentials):
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		default:
			observability.FromContext(r.Context()).Error("login failed", "error", err)
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	http.SetCookie(w, sessionCookie(r, session.Token, int(session.TTL.Seconds())))
	writeJSON(w, r, http.StatusOK, SessionResponse{OK: true, Username: session.Username})
}

// Logout clears the session cookie. Tokens are stateless, so nothing is
// revoked server-side.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, sessionCookie(r, "", -1))
	writeJSON(w, r, http.StatusOK, okResponse{OK: true})
}

// Me reports the signed-in admin. It expects middleware.OptionalAdmin.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	var resp MeResponse
	if username, ok := middleware.GetUsername(r.Context()); ok {
		resp.Username = &username
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// sessionCookie builds the admin cookie. A negative maxAge expires it.
func sessionCookie(r *http.Request, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   middleware.IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
