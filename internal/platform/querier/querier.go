package querier

import (
	"context"
	"errors"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var ErrNoRows = errors.New("no rows in result set")

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

type Row interface {
	Scan(dest ...any) error
}

// Querier is the statement surface shared by a pool and an open transaction.
// Statements use $n placeholders, each parameter referenced once and in order.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
}

type TxOptions struct {
	ReadOnly bool
}

type DB interface {
	Querier
	InTx(ctx context.Context, opts TxOptions, fn func(q Querier) error) error
	Ping(ctx context.Context) error
	Driver() string
	Close()
}

func IsNoRows(err error) bool {
	return errors.Is(err, ErrNoRows)
}
