package db_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/BrandonDHaskell/oretrack/internal/db"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:dbtest_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name())
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// ── Dialect ──────────────────────────────────────────────────────────────────

func TestRebind(t *testing.T) {
	q := "SELECT * FROM tos WHERE id = ? AND shift = ? LIMIT ?"

	if got := db.SQLite.Rebind(q); got != q {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
	want := "SELECT * FROM tos WHERE id = $1 AND shift = $2 LIMIT $3"
	if got := db.Postgres.Rebind(q); got != want {
		t.Errorf("postgres rebind:\n got %q\nwant %q", got, want)
	}
}

func TestParseDialect(t *testing.T) {
	cases := map[string]db.Dialect{
		"":           db.SQLite,
		"SQLite":     db.SQLite,
		"postgres":   db.Postgres,
		"postgresql": db.Postgres,
	}
	for in, want := range cases {
		got, err := db.ParseDialect(in)
		if err != nil {
			t.Fatalf("ParseDialect(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseDialect(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := db.ParseDialect("oracle"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

// ── Migrate ──────────────────────────────────────────────────────────────────

func TestMigrate_Idempotent(t *testing.T) {
	conn := openMemory(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := db.Migrate(ctx, conn, db.SQLite); err != nil {
			t.Fatalf("Migrate pass %d: %v", i, err)
		}
	}

	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 applied migrations, got %d", n)
	}

	for _, table := range []string{"tos", "tos_field_changes"} {
		var c int
		err := conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&c)
		if err != nil || c != 1 {
			t.Errorf("table %s missing (err=%v)", table, err)
		}
	}
}

// ── SeedDev ──────────────────────────────────────────────────────────────────

func TestSeedDev_OnlyIntoEmptyTable(t *testing.T) {
	conn := openMemory(t)
	ctx := context.Background()
	if err := db.Migrate(ctx, conn, db.SQLite); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	recs := []types.Record{
		{ID: 1, Contractor: "Acme", Date: "2024-05-01", Shift: types.ShiftDay, StockID: "A-1", Status: types.StatusBuilding},
		{ID: 2, Contractor: "Acme", Date: "2024-05-01", Shift: types.ShiftNight, StockID: "A-2", Status: types.StatusBuilding},
	}

	n, err := db.SeedDev(ctx, conn, db.SQLite, recs)
	if err != nil {
		t.Fatalf("SeedDev: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 seeded, got %d", n)
	}

	n, err = db.SeedDev(ctx, conn, db.SQLite, recs)
	if err != nil {
		t.Fatalf("second SeedDev: %v", err)
	}
	if n != 0 {
		t.Errorf("expected second seed to be a no-op, got %d", n)
	}
}

// ── Worker ───────────────────────────────────────────────────────────────────

func TestWorker_CommitsAndRollsBack(t *testing.T) {
	conn := openMemory(t)
	ctx := context.Background()
	if _, err := conn.Exec("CREATE TABLE t (v INTEGER)"); err != nil {
		t.Fatalf("create: %v", err)
	}

	w := db.NewWorker(conn)
	defer w.Close()

	if err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO t(v) VALUES (1)")
		return err
	}); err != nil {
		t.Fatalf("Do commit: %v", err)
	}

	boom := errors.New("boom")
	err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO t(v) VALUES (2)"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM t").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row after rollback, got %d", n)
	}
}

func TestWorker_DoAfterClose(t *testing.T) {
	conn := openMemory(t)
	w := db.NewWorker(conn)
	w.Close()
	w.Close()

	err := w.Do(context.Background(), func(context.Context, *sql.Tx) error { return nil })
	if !errors.Is(err, db.ErrWorkerClosed) {
		t.Fatalf("expected ErrWorkerClosed, got %v", err)
	}
}

func TestWorker_CancelledContext(t *testing.T) {
	conn := openMemory(t)
	w := db.NewWorker(conn)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	err := w.Do(ctx, func(context.Context, *sql.Tx) error { return nil })
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
