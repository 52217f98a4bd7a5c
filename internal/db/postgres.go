package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const DialectPostgres = "pgx"

type Postgres struct {
	sqlConn
}

func NewPostgres(dsn string) *Postgres {
	return &Postgres{
		sqlConn: sqlConn{
			driver:  "pgx",
			dsn:     dsn,
			dialect: DialectPostgres,
			rebind:  true,
		},
	}
}

func (p *Postgres) InitDB() error {
	conn, err := sql.Open(p.driver, p.dsn)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}

	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	p.conn = conn

	if err := migrateUp(conn, p.dialect); err != nil {
		return err
	}

	dbLogger.Info().Msg("Database initialized")
	return nil
}
