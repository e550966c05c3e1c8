package querier

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgxDB struct {
	Pool *pgxpool.Pool
}

func NewPgx(pool *pgxpool.Pool) *PgxDB {
	return &PgxDB{Pool: pool}
}

func (d *PgxDB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return pgxExec(ctx, d.Pool, query, args...)
}

func (d *PgxDB) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return d.Pool.Query(ctx, query, args...)
}

func (d *PgxDB) QueryRow(ctx context.Context, query string, args ...any) Row {
	return pgxRow{row: d.Pool.QueryRow(ctx, query, args...)}
}

func (d *PgxDB) InTx(ctx context.Context, opts TxOptions, fn func(q Querier) error) error {
	txOpts := pgx.TxOptions{}
	if opts.ReadOnly {
		txOpts.AccessMode = pgx.ReadOnly
	}
	return pgx.BeginTxFunc(ctx, d.Pool, txOpts, func(tx pgx.Tx) error {
		return fn(pgxTx{tx: tx})
	})
}

func (d *PgxDB) Ping(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}

func (d *PgxDB) Driver() string {
	return DriverPostgres
}

func (d *PgxDB) Close() {
	d.Pool.Close()
}

type pgxTx struct {
	tx pgx.Tx
}

func (t pgxTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return pgxExec(ctx, t.tx, query, args...)
}

func (t pgxTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return t.tx.Query(ctx, query, args...)
}

func (t pgxTx) QueryRow(ctx context.Context, query string, args ...any) Row {
	return pgxRow{row: t.tx.QueryRow(ctx, query, args...)}
}

type pgxRow struct {
	row pgx.Row
}

func (r pgxRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoRows
	}
	return err
}

func pgxExec(ctx context.Context, q pgxQuerier, query string, args ...any) (int64, error) {
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
