package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrNotConfigured      = errors.New("not configured")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrRateLimited        = errors.New("too many attempts")
	ErrConflict           = errors.New("conflict")
	ErrInvalidDocument    = errors.New("invalid config")
	ErrCorruptDocument    = errors.New("invalid stored config")
	ErrStoreUnavailable   = errors.New("store unavailable")
)

// RateLimitError reports an active lockout and how long the caller has to wait.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// RetryAfterSeconds rounds the wait up to whole seconds, never below one.
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// ConflictError is returned when an If-Match precondition fails. ETag is nil
// when no document exists yet.
type ConflictError struct {
	ETag *string
}

func (e *ConflictError) Error() string {
	if e.ETag == nil {
		return "conflict: no current document"
	}
	return "conflict: current etag " + *e.ETag
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
