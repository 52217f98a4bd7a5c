package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const DialectSQLite = "sqlite3"

type SQLite struct {
	sqlConn
}

func NewSQLite(dsn string) *SQLite {
	return &SQLite{
		sqlConn: sqlConn{
			driver:  "sqlite3",
			dsn:     dsn,
			dialect: DialectSQLite,
		},
	}
}

// NewMemorySQLite returns a private in-memory database, mostly for tests.
func NewMemorySQLite() *SQLite {
	return NewSQLite(":memory:")
}

func (s *SQLite) InitDB() error {
	dsn := s.dsn
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_foreign_keys=on&_busy_timeout=5000"

	conn, err := sql.Open(s.driver, dsn)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}

	// One writer; also keeps :memory: databases on a single connection.
	conn.SetMaxOpenConns(1)
	s.conn = conn

	if err := migrateUp(conn, s.dialect); err != nil {
		return err
	}

	dbLogger.Info().Str("dsn", s.dsn).Msg("Database initialized")
	return nil
}
