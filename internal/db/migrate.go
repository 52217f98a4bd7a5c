package db

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// goose keeps its dialect and filesystem in package state.
var gooseMu sync.Mutex

type gooseLogger struct{}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	dbLogger.Fatal().Msgf(format, v...)
}

func (gooseLogger) Printf(format string, v ...interface{}) {
	dbLogger.Debug().Msgf(format, v...)
}

func migrationsDir(dialect string) (gooseDialect, dir string, err error) {
	switch dialect {
	case DialectSQLite:
		return "sqlite3", "migrations/sqlite", nil
	case DialectPostgres:
		return "postgres", "migrations/postgres", nil
	default:
		return "", "", fmt.Errorf("no migrations for dialect %q", dialect)
	}
}

// Migrate runs a goose command ("up", "down", "status", "version", "reset")
// against conn using the embedded migrations.
func Migrate(conn *sql.DB, dialect, command string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	gooseDialect, dir, err := migrationsDir(dialect)
	if err != nil {
		return err
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	switch command {
	case "up":
		err = goose.Up(conn, dir)
	case "down":
		err = goose.Down(conn, dir)
	case "status":
		err = goose.Status(conn, dir)
	case "version":
		err = goose.Version(conn, dir)
	case "reset":
		err = goose.Reset(conn, dir)
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}
	return nil
}

func migrateUp(conn *sql.DB, dialect string) error {
	return Migrate(conn, dialect, "up")
}

// Connect opens a connection without running migrations, for tools that
// drive Migrate themselves.
func Connect(dialect, dsn string) (*sql.DB, error) {
	switch dialect {
	case DialectSQLite:
		return sql.Open("sqlite3", dsn)
	case DialectPostgres:
		return sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dialect)
	}
}
