package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

// SeedDev inserts records into an empty tos table. A table that already
// has rows is left alone so restarts never clobber field edits.
func SeedDev(ctx context.Context, conn *sql.DB, dialect Dialect, records []types.Record) (int, error) {
	var n int
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tos;").Scan(&n); err != nil {
		return 0, fmt.Errorf("seed count: %w", err)
	}
	if n > 0 || len(records) == 0 {
		return 0, nil
	}

	now := time.Now().UTC().UnixMilli()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("seed begin: %w", err)
	}
	insert := dialect.Rebind(`
INSERT INTO tos(id, contractor, date, shift, stock_id, stock_status, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);`)
	for _, r := range records {
		if _, err := tx.ExecContext(ctx, insert,
			r.ID, r.Contractor, r.Date, r.Shift, r.StockID, r.Status, now, now,
		); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("seed record %d: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("seed commit: %w", err)
	}
	return len(records), nil
}
