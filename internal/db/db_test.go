package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestMain(m *testing.M) {
	SetLogger(zerolog.Nop())
	os.Exit(m.Run())
}

func openMemory(t *testing.T) *SQLite {
	t.Helper()
	db := NewMemorySQLite()
	if err := db.InitDB(); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewSQLite(t *testing.T) {
	db := NewSQLite("./x.db")
	if db.conn != nil {
		t.Error("Expected connection to be nil initially")
	}
	if db.Dialect() != DialectSQLite {
		t.Errorf("Expected sqlite dialect, got %q", db.Dialect())
	}
}

func TestOpen(t *testing.T) {
	if _, err := Open("oracle", ""); err == nil {
		t.Error("Expected error for unknown driver")
	}
	d, err := Open(DialectPostgres, "postgres://localhost/codu")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if d.Dialect() != DialectPostgres {
		t.Errorf("Expected postgres dialect, got %q", d.Dialect())
	}
}

func TestInitDBCreatesTables(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	tables := []string{"users", "sessions", "banned_users", "posts", "tags", "post_tags",
		"comments", "notifications", "likes", "bookmarks", "reports"}

	for _, table := range tables {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s to exist: %v", table, err)
		}
	}
}

func TestForeignKeysEnabled(t *testing.T) {
	db := openMemory(t)

	var enabled int
	if err := db.QueryRowContext(context.Background(), "PRAGMA foreign_keys").Scan(&enabled); err != nil {
		t.Fatalf("Failed to check foreign keys: %v", err)
	}
	if enabled != 1 {
		t.Error("Expected foreign keys to be enabled")
	}
}

func TestInitDBIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codu.db")

	first := NewSQLite(path)
	if err := first.InitDB(); err != nil {
		t.Fatalf("First init failed: %v", err)
	}
	first.Close()

	second := NewSQLite(path)
	if err := second.InitDB(); err != nil {
		t.Fatalf("Second init failed: %v", err)
	}
	second.Close()
}

func TestWithTx(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("commit", func(t *testing.T) {
		err := db.WithTx(ctx, func(q Querier) error {
			_, err := q.ExecContext(ctx, `INSERT INTO users (id, username, created_at) VALUES (?, ?, ?)`, "u1", "ada", now)
			return err
		})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		var n int
		db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, "u1").Scan(&n)
		if n != 1 {
			t.Errorf("Expected committed row, got %d", n)
		}
	})

	t.Run("rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithTx(ctx, func(q Querier) error {
			if _, err := q.ExecContext(ctx, `INSERT INTO users (id, username, created_at) VALUES (?, ?, ?)`, "u2", "grace", now); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Expected boom, got %v", err)
		}

		var n int
		db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, "u2").Scan(&n)
		if n != 0 {
			t.Errorf("Expected rolled back row, got %d", n)
		}
	})
}

func TestNullablePublishedRoundTrip(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	mustExec := func(q string, args ...any) {
		t.Helper()
		if _, err := db.ExecContext(ctx, q, args...); err != nil {
			t.Fatalf("Exec failed: %v", err)
		}
	}
	mustExec(`INSERT INTO users (id, username, created_at) VALUES (?, ?, ?)`, "u1", "ada", now)
	mustExec(`INSERT INTO posts (id, slug, created_at, updated_at, user_id) VALUES (?, ?, ?, ?, ?)`, "p1", "a-p1", now, now, "u1")
	mustExec(`INSERT INTO posts (id, slug, published, created_at, updated_at, user_id) VALUES (?, ?, ?, ?, ?, ?)`, "p2", "b-p2", now, now, now, "u1")

	var published sql.NullTime
	if err := db.QueryRowContext(ctx, `SELECT published FROM posts WHERE id = ?`, "p1").Scan(&published); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if published.Valid {
		t.Error("Expected NULL published for draft")
	}

	if err := db.QueryRowContext(ctx, `SELECT published FROM posts WHERE id = ?`, "p2").Scan(&published); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if !published.Valid || !published.Time.Equal(now) {
		t.Errorf("Expected published %v, got %+v", now, published)
	}
}

func TestRebind(t *testing.T) {
	testCases := map[string]string{
		"SELECT 1":                                 "SELECT 1",
		"SELECT * FROM t WHERE a = ? AND b = ?":    "SELECT * FROM t WHERE a = $1 AND b = $2",
		"SELECT '?' FROM t WHERE a = ?":            "SELECT '?' FROM t WHERE a = $1",
		"INSERT INTO t (a, b, c) VALUES (?, ?, ?)": "INSERT INTO t (a, b, c) VALUES ($1, $2, $3)",
	}
	for in, want := range testCases {
		if got := Rebind(in); got != want {
			t.Errorf("Rebind(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMigrateUnknownCommand(t *testing.T) {
	db := openMemory(t)
	if err := Migrate(db.Get(), DialectSQLite, "sideways"); err == nil {
		t.Error("Expected error for unknown command")
	}
	if err := Migrate(db.Get(), "oracle", "up"); err == nil {
		t.Error("Expected error for unknown dialect")
	}
}

func TestCloseNil(t *testing.T) {
	db := NewSQLite(":memory:")
	if err := db.Close(); err != nil {
		t.Errorf("Expected nil error closing unopened db, got %v", err)
	}
}

func TestConnectAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codu.db")
	conn, err := Connect(DialectSQLite, path)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	for _, cmd := range []string{"up", "status", "down", "up"} {
		if err := Migrate(conn, DialectSQLite, cmd); err != nil {
			t.Fatalf("Migrate %s failed: %v", cmd, err)
		}
	}

	if _, err := Connect("oracle", ""); err == nil {
		t.Error("Expected error for unknown driver")
	}
}
