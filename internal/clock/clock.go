// Package clock lets time-dependent code (token expiry, lockout windows,
// stale-read retries) run against a controllable clock in tests.
package clock

import "time"

// Clock abstracts the time functions used across the service.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (Real) Sleep(d time.Duration) { time.Sleep(d) }

// NowMs returns the clock's current time as Unix milliseconds.
func NowMs(c Clock) int64 {
	return c.Now().UnixMilli()
}
