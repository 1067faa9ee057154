package service

import (
	"context"
	"crypto/sha256"
	"errors"
	"strings"
	"time"

	"navdir/internal/clock"
	"navdir/internal/config"
	"navdir/internal/domain"
	"navdir/internal/observability"
	"navdir/internal/security"

	"golang.org/x/crypto/bcrypt"
)

// bypassFailureDelay is slept after a failed login when the limiter cannot
// track the caller.
const bypassFailureDelay = 250 * time.Millisecond

// Credentials is one login attempt.
type Credentials struct {
	Username string
	Password string
	ClientIP string
}

// Session is the outcome of a successful login.
type Session struct {
	Username  string
	Token     string
	TTL       time.Duration
	ExpiresAt time.Time
}

type AuthService struct {
	limiter      *LoginLimiter
	tokens       *security.TokenCodec
	clock        clock.Clock
	sessionTTL   time.Duration
	failureDelay time.Duration
}

func NewAuthService(limiter *LoginLimiter, tokens *security.TokenCodec, sessionTTL time.Duration, c clock.Clock) *AuthService {
	if c == nil {
		c = clock.Real{}
	}
	if tokens == nil {
		tokens = security.NewTokenCodec(c)
	}
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &AuthService{
		limiter:      limiter,
		tokens:       tokens,
		clock:        c,
		sessionTTL:   sessionTTL,
		failureDelay: bypassFailureDelay,
	}
}

// Login checks creds against admin and issues a session token.
//
// Errors: *domain.RateLimitError while locked out (or when this failure
// triggers the lockout), domain.ErrInvalidCredentials on a mismatch, anything
// else is a store failure.
func (s *AuthService) Login(ctx context.Context, admin config.AdminAuth, creds Credentials) (*Session, error) {
	ctx = observability.WithClientIP(ctx, creds.ClientIP)
	log := observability.FromContext(ctx)

	if err := s.limiter.Check(ctx, creds.ClientIP); err != nil {
		observability.LoginAttemptsTotal.WithLabelValues(loginResult(err)).Inc()
		return nil, err
	}

	if !checkCredentials(admin, creds.Username, creds.Password) {
		if s.limiter.Active(creds.ClientIP) {
			if err := s.limiter.RecordFailure(ctx, creds.ClientIP); err != nil {
				observability.LoginAttemptsTotal.WithLabelValues(loginResult(err)).Inc()
				return nil, err
			}
		} else {
			s.clock.Sleep(s.failureDelay)
		}
		observability.LoginAttemptsTotal.WithLabelValues("invalid").Inc()
		log.Warn("admin login failed")
		return nil, domain.ErrInvalidCredentials
	}

	if err := s.limiter.Reset(ctx, creds.ClientIP); err != nil {
		observability.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	token, err := s.tokens.Issue(admin.SessionSecret, creds.Username, s.sessionTTL)
	if err != nil {
		observability.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	observability.LoginAttemptsTotal.WithLabelValues("success").Inc()
	log.Info("admin logged in", "username", creds.Username, "auth_kind", string(admin.Kind))

	return &Session{
		Username:  creds.Username,
		Token:     token,
		TTL:       s.sessionTTL,
		ExpiresAt: s.clock.Now().Add(s.sessionTTL),
	}, nil
}

// VerifySession returns the subject of a valid session token.
func (s *AuthService) VerifySession(secret, token string) (string, error) {
	if secret == "" {
		return "", domain.ErrNotConfigured
	}
	claims, err := s.tokens.Verify(secret, token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *AuthService) SessionTTL() time.Duration {
	return s.sessionTTL
}

// checkCredentials always evaluates both comparisons. Usernames are compared
// through their SHA-256 digests so the comparison length does not depend on
// the input.
func checkCredentials(admin config.AdminAuth, username, password string) bool {
	given := sha256.Sum256([]byte(username))
	want := sha256.Sum256([]byte(admin.Username))
	usernameOK := security.ConstantTimeEqual(given[:], want[:])

	passwordOK := checkPassword(admin.PasswordHash, password)

	return usernameOK && passwordOK
}

func checkPassword(configured, password string) bool {
	if IsBcryptHash(configured) {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(password)) == nil
	}
	computed := security.HashHex(password)
	return security.ConstantTimeEqual([]byte(computed), []byte(strings.ToLower(configured)))
}

// IsBcryptHash reports whether hash looks like a bcrypt digest rather than
// SHA-256 hex.
func IsBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}

func loginResult(err error) string {
	if errors.Is(err, domain.ErrRateLimited) {
		return "locked"
	}
	return "error"
}
