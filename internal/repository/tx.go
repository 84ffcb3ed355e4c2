package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// TxRunner executes fn inside a single database transaction. The transaction
// commits only when fn returns nil; any error (including context
// cancellation) rolls back every effect.
type TxRunner interface {
	RunTx(ctx context.Context, fn func(q Querier) error) error
}

// SQLTxRunner is the TxRunner implementation over *sql.DB with a bounded
// per-transaction timeout so no operation can hold row locks indefinitely.
type SQLTxRunner struct {
	db      *sql.DB
	timeout time.Duration
	log     *slog.Logger
}

// NewTxRunner constructs a SQLTxRunner. A non-positive timeout disables the
// deadline.
func NewTxRunner(db *sql.DB, timeout time.Duration, log *slog.Logger) *SQLTxRunner {
	if log == nil {
		log = slog.Default()
	}

	return &SQLTxRunner{
		db:      db,
		timeout: timeout,
		log:     log,
	}
}

// RunTx opens a transaction, runs fn and commits, rolling back on every
// failure path.
func (r *SQLTxRunner) RunTx(ctx context.Context, fn func(q Querier) error) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			r.log.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			r.log.Error("rollback after commit failure", slog.Any("error", rbErr))
		}
		return err
	}

	return nil
}
