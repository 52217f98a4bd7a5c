// Package db wraps database/sql for the sqlite and postgres backends.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Querier is satisfied by both the pooled connection and a transaction.
// Queries are written with ? placeholders and rebound per dialect.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type DB interface {
	Querier

	InitDB() error

	Get() *sql.DB
	Close() error
	Dialect() string

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(q Querier) error) error
}

var dbLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	dbLogger = l
}

// Open returns an uninitialized DB for the configured driver.
func Open(driver, dsn string) (DB, error) {
	switch driver {
	case DialectSQLite:
		return NewSQLite(dsn), nil
	case DialectPostgres:
		return NewPostgres(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Rebind rewrites ? placeholders to $1..$n.
func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// sqlConn implements DB for any database/sql driver.
type sqlConn struct {
	conn    *sql.DB
	driver  string
	dsn     string
	dialect string
	rebind  bool
}

func (s *sqlConn) Get() *sql.DB {
	return s.conn
}

func (s *sqlConn) Dialect() string {
	return s.dialect
}

func (s *sqlConn) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *sqlConn) q(query string) string {
	if s.rebind {
		return Rebind(query)
	}
	return query
}

func (s *sqlConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	dbLogger.Debug().Str("query", query).Msg("Query")
	return s.conn.QueryContext(ctx, s.q(query), args...)
}

func (s *sqlConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	dbLogger.Debug().Str("query", query).Msg("QueryRow")
	return s.conn.QueryRowContext(ctx, s.q(query), args...)
}

func (s *sqlConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	dbLogger.Debug().Str("query", query).Msg("Exec")
	return s.conn.ExecContext(ctx, s.q(query), args...)
}

func (s *sqlConn) WithTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&txConn{tx: tx, rebind: s.rebind}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			dbLogger.Error().Err(rbErr).Msg("Rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txConn struct {
	tx     *sql.Tx
	rebind bool
}

func (t *txConn) q(query string) string {
	if t.rebind {
		return Rebind(query)
	}
	return query
}

func (t *txConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.q(query), args...)
}

func (t *txConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.q(query), args...)
}

func (t *txConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.q(query), args...)
}
