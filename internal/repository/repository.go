// Package repository implements all database queries for the signup engine.
// It uses pgx directly (no ORM) for transparency and performance.
//
// Methods that must run under an existing row lock take the pgx.Tx
// explicitly, so the lock's lifetime is visibly tied to the caller's
// transaction. Everything else runs against the pool.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested resource does not exist or is
// soft-deleted.
var ErrNotFound = errors.New("not found")

// Querier is the subset of pgx operations shared by pgxpool.Pool and
// pgx.Tx, so read helpers can run inside or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
