package domain

import (
	"context"
	"time"
)

// KVStore is the durable key-value service shared by the rate limiter and the
// config document store. Get returns ErrNotFound for absent or expired keys.
// A zero ttl stores the value without expiry.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// PutCheck inspects the value currently stored under a key. Returning an error
// aborts the write.
type PutCheck func(current []byte, found bool) error

// ConditionalStore is implemented by backends that can run a check and a write
// atomically (compare-and-swap). The error from check is returned unchanged.
type ConditionalStore interface {
	KVStore
	CompareAndPut(ctx context.Context, key string, value []byte, ttl time.Duration, check PutCheck) error
}
