package querier

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// SQLDB adapts database/sql (sqlite) to DB. Read-only transactions are never
// committed.
type SQLDB struct {
	DB *sql.DB
}

func NewSQL(db *sql.DB) *SQLDB {
	return &SQLDB{DB: db}
}

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (d *SQLDB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return sqlExec(ctx, d.DB, query, args...)
}

func (d *SQLDB) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return sqlQuery(ctx, d.DB, query, args...)
}

func (d *SQLDB) QueryRow(ctx context.Context, query string, args ...any) Row {
	return sqlRow{row: d.DB.QueryRowContext(ctx, Rebind(query), args...)}
}

func (d *SQLDB) InTx(ctx context.Context, opts TxOptions, fn func(q Querier) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(sqlTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if opts.ReadOnly {
		return tx.Rollback()
	}
	return tx.Commit()
}

func (d *SQLDB) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

func (d *SQLDB) Driver() string {
	return DriverSQLite
}

func (d *SQLDB) Close() {
	_ = d.DB.Close()
}

type sqlTx struct {
	tx *sql.Tx
}

func (t sqlTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return sqlExec(ctx, t.tx, query, args...)
}

func (t sqlTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return sqlQuery(ctx, t.tx, query, args...)
}

func (t sqlTx) QueryRow(ctx context.Context, query string, args ...any) Row {
	return sqlRow{row: t.tx.QueryRowContext(ctx, Rebind(query), args...)}
}

type sqlRows struct {
	rows *sql.Rows
}

func (r sqlRows) Next() bool             { return r.rows.Next() }
func (r sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r sqlRows) Err() error             { return r.rows.Err() }
func (r sqlRows) Close()                 { _ = r.rows.Close() }

type sqlRow struct {
	row *sql.Row
}

func (r sqlRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}
	return err
}

func sqlExec(ctx context.Context, q sqlQuerier, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func sqlQuery(ctx context.Context, q sqlQuerier, query string, args ...any) (Rows, error) {
	rows, err := q.QueryContext(ctx, Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows: rows}, nil
}

// Rebind rewrites $n placeholders to positional ? markers.
func Rebind(query string) string {
	if !strings.Contains(query, "$") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '\'' {
			inQuote = !inQuote
		}
		if c == '$' && !inQuote && i+1 < len(query) && isDigit(query[i+1]) {
			b.WriteByte('?')
			for i+1 < len(query) && isDigit(query[i+1]) {
				i++
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
