package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"navdir/internal/clock"
	"navdir/internal/domain"
	"navdir/internal/observability"
)

const loginRateKeyPrefix = "login_rate_v1"

// stateTTLSlack is added on top of window+lock when persisting a record.
const stateTTLSlack = 60 * time.Second

// LimiterConfig tunes the login rate limiter.
type LimiterConfig struct {
	Window   time.Duration
	MaxFails int
	Lock     time.Duration
}

func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		Window:   60 * time.Second,
		MaxFails: 8,
		Lock:     5 * time.Minute,
	}
}

// LoginLimiter counts failed logins per client identity and locks the
// identity out once MaxFails failures land inside one window. Records are
// read-modify-written without a lock; concurrent failures from the same
// identity may undercount.
type LoginLimiter struct {
	store domain.KVStore
	cfg   LimiterConfig
	clock clock.Clock
}

// NewLoginLimiter returns a limiter backed by store. A nil store disables
// limiting altogether.
func NewLoginLimiter(store domain.KVStore, cfg LimiterConfig, c clock.Clock) *LoginLimiter {
	def := DefaultLimiterConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MaxFails <= 0 {
		cfg.MaxFails = def.MaxFails
	}
	if cfg.Lock <= 0 {
		cfg.Lock = def.Lock
	}
	if c == nil {
		c = clock.Real{}
	}
	return &LoginLimiter{store: store, cfg: cfg, clock: c}
}

// Active reports whether attempts from clientIP are tracked. Without a store
// or without a client identity the limiter is bypassed.
func (l *LoginLimiter) Active(clientIP string) bool {
	return l != nil && l.store != nil && clientIP != ""
}

// Check returns a *domain.RateLimitError while clientIP is locked out.
func (l *LoginLimiter) Check(ctx context.Context, clientIP string) error {
	if !l.Active(clientIP) {
		return nil
	}

	state, ok, err := l.load(ctx, clientIP)
	if err != nil {
		return err
	}

	now := clock.NowMs(l.clock)
	if ok && state.Locked(now) {
		return lockedError(state.LockUntilMs, now)
	}
	return nil
}

// RecordFailure registers one failed attempt. When it pushes the identity
// over the limit the new lockout is returned as a *domain.RateLimitError.
func (l *LoginLimiter) RecordFailure(ctx context.Context, clientIP string) error {
	if !l.Active(clientIP) {
		return nil
	}

	now := clock.NowMs(l.clock)
	prev, ok, err := l.load(ctx, clientIP)
	if err != nil {
		return err
	}
	if !ok {
		prev = domain.RateState{WindowStartMs: now}
	}

	next := domain.RateState{FailCount: 1, WindowStartMs: now}
	if prev.WindowStartMs > 0 && now-prev.WindowStartMs <= l.cfg.Window.Milliseconds() {
		next.FailCount = prev.FailCount + 1
		next.WindowStartMs = prev.WindowStartMs
	}
	if next.FailCount >= l.cfg.MaxFails {
		next.LockUntilMs = now + l.cfg.Lock.Milliseconds()
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode rate state: %w", err)
	}
	if err := l.store.Put(ctx, rateKey(clientIP), raw, l.cfg.Window+l.cfg.Lock+stateTTLSlack); err != nil {
		return fmt.Errorf("failed to save rate state: %w", err)
	}

	if next.Locked(now) {
		observability.LoginLockoutsTotal.Inc()
		observability.FromContext(ctx).Warn("login identity locked out",
			"fail_count", next.FailCount,
			"lock_seconds", int(l.cfg.Lock.Seconds()),
		)
		return lockedError(next.LockUntilMs, now)
	}
	return nil
}

// Reset forgets every failure recorded for clientIP.
func (l *LoginLimiter) Reset(ctx context.Context, clientIP string) error {
	if !l.Active(clientIP) {
		return nil
	}
	if err := l.store.Delete(ctx, rateKey(clientIP)); err != nil {
		return fmt.Errorf("failed to reset rate state: %w", err)
	}
	return nil
}

// State returns the stored record for clientIP, if any.
func (l *LoginLimiter) State(ctx context.Context, clientIP string) (domain.RateState, bool, error) {
	if !l.Active(clientIP) {
		return domain.RateState{}, false, nil
	}
	return l.load(ctx, clientIP)
}

func (l *LoginLimiter) load(ctx context.Context, clientIP string) (domain.RateState, bool, error) {
	raw, err := l.store.Get(ctx, rateKey(clientIP))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.RateState{}, false, nil
	}
	if err != nil {
		return domain.RateState{}, false, fmt.Errorf("failed to load rate state: %w", err)
	}
	state, ok := domain.DecodeRateState(raw)
	return state, ok, nil
}

func rateKey(clientIP string) string {
	return loginRateKeyPrefix + ":" + clientIP
}

func lockedError(lockUntilMs, nowMs int64) *domain.RateLimitError {
	return &domain.RateLimitError{RetryAfter: time.Duration(lockUntilMs-nowMs) * time.Millisecond}
}
