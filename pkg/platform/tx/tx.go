// Package tx holds the executor abstraction shared by Postgres stores that can
// run either on the pool or inside a caller-owned transaction.
package tx

import (
	"context"
	"database/sql"
)

// Executor is the subset of *sql.DB and *sql.Tx used by Postgres stores.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Executor = (*sql.DB)(nil)
	_ Executor = (*sql.Tx)(nil)
)
