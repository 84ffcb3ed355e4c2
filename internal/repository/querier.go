// Package repository defines persistence operations over the accounts,
// offers and vouchers tables. Query methods take a Querier so the same code
// runs standalone on the pool or inside an exchange/redemption transaction.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// Querier is the subset of database/sql satisfied by both *sql.DB and
// *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ErrDuplicate indicates a unique-constraint violation (Postgres 23505),
// used by the exchange engine to retry credential generation.
var ErrDuplicate = errors.New("duplicate key")

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
