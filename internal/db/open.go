package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Config struct {
	Driver   string // "sqlite" | "postgres"
	Path     string // SQLite file, e.g. "./data/oretrack.db"
	URL      string // Postgres DSN
	Env      string // "dev" | "prod"
	MaxConns int    // pool bound for Postgres; SQLite always uses 1
}

func Open(ctx context.Context, cfg Config) (*sql.DB, Dialect, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, "", err
	}
	if cfg.Env == "" {
		cfg.Env = "dev"
	}

	var conn *sql.DB
	switch dialect {
	case Postgres:
		conn, err = openPostgres(cfg)
	default:
		conn, err = openSQLite(cfg)
	}
	if err != nil {
		return nil, "", err
	}

	// Validate connection early.
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, "", fmt.Errorf("db ping: %w", err)
	}

	if err := Migrate(ctx, conn, dialect); err != nil {
		_ = conn.Close()
		return nil, "", err
	}

	return conn, dialect, nil
}

func openSQLite(cfg Config) (*sql.DB, error) {
	if cfg.Path == "" {
		cfg.Path = "./data/oretrack.db"
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	conn, err := sql.Open(SQLite.DriverName(), SQLiteDSN(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	// Single connection: every write already funnels through Worker.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	return conn, nil
}

// SQLiteDSN builds a modernc.org/sqlite DSN with the per-connection PRAGMAs
// used everywhere in this module.
func SQLiteDSN(path string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		path,
	)
}

func openPostgres(cfg Config) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("postgres driver requires a connection URL")
	}
	conn, err := sql.Open(Postgres.DriverName(), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	// Requests beyond MaxConns wait in database/sql for a free connection.
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(maxConns)
	conn.SetConnMaxIdleTime(5 * time.Minute)
	return conn, nil
}
