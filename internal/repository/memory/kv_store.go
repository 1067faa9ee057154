// Package memory is an in-process key-value store used for local development
// and tests. Values do not survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"navdir/internal/clock"
	"navdir/internal/domain"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) live(now time.Time) bool {
	return e.expiresAt.IsZero() || now.Before(e.expiresAt)
}

// KVStore implements domain.ConditionalStore with a mutex-guarded map.
type KVStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]entry
}

func NewKVStore(c clock.Clock) *KVStore {
	if c == nil {
		c = clock.Real{}
	}
	return &KVStore{clock: c, entries: make(map[string]entry)}
}

func (s *KVStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.lookupLocked(key)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return value, nil
}

func (s *KVStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putLocked(key, value, ttl)
	return nil
}

func (s *KVStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *KVStore) CompareAndPut(_ context.Context, key string, value []byte, ttl time.Duration, check domain.PutCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, found := s.lookupLocked(key)
	if err := check(current, found); err != nil {
		return err
	}
	s.putLocked(key, value, ttl)
	return nil
}

// DeleteExpired drops entries whose TTL has passed and reports how many went.
func (s *KVStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var n int64
	for key, e := range s.entries {
		if !e.live(now) {
			delete(s.entries, key)
			n++
		}
	}
	return n, nil
}

// Len reports the number of live entries.
func (s *KVStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	n := 0
	for _, e := range s.entries {
		if e.live(now) {
			n++
		}
	}
	return n
}

func (s *KVStore) lookupLocked(key string) ([]byte, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !e.live(s.clock.Now()) {
		delete(s.entries, key)
		return nil, false
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

func (s *KVStore) putLocked(key string, value []byte, ttl time.Duration) {
	stored := make([]byte, len(value))
	copy(stored, value)

	e := entry{value: stored}
	if ttl > 0 {
		e.expiresAt = s.clock.Now().Add(ttl)
	}
	s.entries[key] = e
}
