package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"navdir/internal/clock"
	"navdir/internal/domain"
)

// Schema creates the single table backing the key-value store.
const Schema = `
		CREATE TABLE IF NOT EXISTS kv_entries (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			expires_at TIMESTAMPTZ NULL
		)
	`

const kvPrimaryKey = "kv_entries_pkey"

const (
	upsertQuery = `
		INSERT INTO kv_entries (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`
	insertQuery = `
		INSERT INTO kv_entries (key, value, expires_at)
		VALUES ($1, $2, $3)
	`
	lockQuery = `
		SELECT value, expires_at
		FROM kv_entries
		WHERE key = $1
		FOR UPDATE
	`
)

// maxPutAttempts bounds how often CompareAndPut restarts after losing a race
// to a concurrent writer.
const maxPutAttempts = 3

// KVStore implements domain.ConditionalStore on PostgreSQL.
type KVStore struct {
	db                *sql.DB
	tx                *TxRunner
	clock             clock.Clock
	getStmt           *sql.Stmt
	putStmt           *sql.Stmt
	deleteStmt        *sql.Stmt
	deleteExpiredStmt *sql.Stmt
}

// NewKVStore creates the kv_entries table when missing and prepares every
// statement the store uses.
func NewKVStore(db *sql.DB, c clock.Clock) (*KVStore, error) {
	if c == nil {
		c = clock.Real{}
	}
	s := &KVStore{db: db, tx: NewTxRunner(db, nil), clock: c}

	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("failed to create kv_entries table: %w", err)
	}

	var err error
	s.getStmt, err = db.Prepare(`
		SELECT value
		FROM kv_entries
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare get statement: %w", err)
	}

	s.putStmt, err = db.Prepare(upsertQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare put statement: %w", err)
	}

	s.deleteStmt, err = db.Prepare(`DELETE FROM kv_entries WHERE key = $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.deleteExpiredStmt, err = db.Prepare(`DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare deleteExpired statement: %w", err)
	}

	return s, nil
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.getStmt.QueryRowContext(ctx, key, s.clock.Now()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

func (s *KVStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if _, err := s.putStmt.ExecContext(ctx, key, value, s.expiresAt(ttl)); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.deleteStmt.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CompareAndPut locks the row, runs check against the live value and writes
// in the same transaction. A key that did not exist is written with a plain
// INSERT so that a concurrent creator makes one of the two fail; the loser
// re-runs its check against the winner's value.
func (s *KVStore) CompareAndPut(ctx context.Context, key string, value []byte, ttl time.Duration, check domain.PutCheck) error {
	var err error
	for attempt := 0; attempt < maxPutAttempts; attempt++ {
		err = s.tx.Run(ctx, func(tx *sql.Tx) error {
			return s.compareAndPut(ctx, tx, key, value, ttl, check)
		})
		if !isRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("failed to put %s after %d attempts: %w", key, maxPutAttempts, err)
}

func (s *KVStore) compareAndPut(ctx context.Context, tx *sql.Tx, key string, value []byte, ttl time.Duration, check domain.PutCheck) error {
	var (
		current   []byte
		expiresAt sql.NullTime
	)
	err := tx.QueryRowContext(ctx, lockQuery, key).Scan(&current, &expiresAt)
	exists := true
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return fmt.Errorf("failed to lock %s: %w", key, err)
	}

	found := exists && (!expiresAt.Valid || expiresAt.Time.After(s.clock.Now()))
	if !found {
		current = nil
	}
	if err := check(current, found); err != nil {
		return err
	}

	query := upsertQuery
	if !exists {
		query = insertQuery
	}
	if _, err := tx.ExecContext(ctx, query, key, value, s.expiresAt(ttl)); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// DeleteExpired removes rows whose TTL has elapsed. Reads already ignore them;
// this only reclaims space.
func (s *KVStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.deleteExpiredStmt.ExecContext(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired entries: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}

// Close releases the prepared statements. The *sql.DB stays open.
func (s *KVStore) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{s.getStmt, s.putStmt, s.deleteStmt, s.deleteExpiredStmt} {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *KVStore) expiresAt(ttl time.Duration) sql.NullTime {
	if ttl <= 0 {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: s.clock.Now().Add(ttl), Valid: true}
}
