package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"navdir/internal/observability"
)

// TxRunner runs a function inside one transaction.
type TxRunner struct {
	db   *sql.DB
	opts *sql.TxOptions
}

// NewTxRunner uses the driver's default isolation level when opts is nil.
func NewTxRunner(db *sql.DB, opts *sql.TxOptions) *TxRunner {
	return &TxRunner{db: db, opts: opts}
}

// Run commits when fn returns nil and rolls back otherwise. The error fn
// returned is kept as is so callers can still match it.
func (r *TxRunner) Run(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, r.opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			observability.FromContext(ctx).Error("transaction rollback failed", "error", rbErr)
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
