// Package redis implements the key-value store on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"navdir/internal/domain"

	"github.com/redis/go-redis/v9"
)

const maxWatchRetries = 4

// ErrContended is returned when CompareAndPut keeps losing its optimistic
// transaction to concurrent writers.
var ErrContended = errors.New("redis: key contended")

// KVStore implements domain.ConditionalStore. Keys are namespaced with prefix.
type KVStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewKVStore(client redis.UniversalClient, prefix string) *KVStore {
	return &KVStore{redis: client, prefix: prefix}
}

func (s *KVStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.redis.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

// Put stores value. Redis treats a zero expiration as "keep forever".
func (s *KVStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.redis.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

// CompareAndPut watches the key, runs check and writes inside MULTI/EXEC.
// A concurrent modification aborts EXEC and the whole sequence is retried.
func (s *KVStore) CompareAndPut(ctx context.Context, key string, value []byte, ttl time.Duration, check domain.PutCheck) error {
	if ttl < 0 {
		ttl = 0
	}
	k := s.key(key)

	for i := 0; i < maxWatchRetries; i++ {
		var checkErr error

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, k).Bytes()
			found := true
			if errors.Is(err, redis.Nil) {
				current, found = nil, false
			} else if err != nil {
				return err
			}

			if checkErr = check(current, found); checkErr != nil {
				return checkErr
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, k, value, ttl)
				return nil
			})
			return err
		}, k)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if checkErr != nil {
			return checkErr
		}
		if err != nil {
			return fmt.Errorf("failed to put %s: %w", key, err)
		}
		return nil
	}

	return fmt.Errorf("failed to put %s: %w", key, ErrContended)
}
