package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/oretrack/internal/db"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/store"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

const recordColumns = "id, contractor, date, shift, stock_id, stock_status"

// Store is the relational record store. Reads go straight to the pool;
// writes are serialised through the Worker.
type Store struct {
	db      *sql.DB
	writer  *dbpkg.Worker
	dialect dbpkg.Dialect
}

var _ store.RecordStore = (*Store)(nil)

func New(db *sql.DB, writer *dbpkg.Worker, dialect dbpkg.Dialect) *Store {
	return &Store{db: db, writer: writer, dialect: dialect}
}

func (s *Store) Name() string { return string(s.dialect) }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) List(ctx context.Context, page types.Page) (types.RecordPage, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tos;").Scan(&total); err != nil {
		return types.RecordPage{}, fmt.Errorf("List count: %w", err)
	}

	recs, err := s.queryRecords(ctx,
		s.dialect.Rebind("SELECT "+recordColumns+" FROM tos ORDER BY id LIMIT ? OFFSET ?;"),
		page.Limit, page.Offset,
	)
	if err != nil {
		return types.RecordPage{}, fmt.Errorf("List: %w", err)
	}
	return types.RecordPage{Records: recs, Pagination: types.NewPagination(total, page, len(recs))}, nil
}

func (s *Store) Search(ctx context.Context, p types.SearchParams) (types.RecordPage, error) {
	q := buildSearch(s.dialect, p)

	var total int
	if err := s.db.QueryRowContext(ctx, q.count, q.countArgs...).Scan(&total); err != nil {
		return types.RecordPage{}, fmt.Errorf("Search count: %w", err)
	}

	recs, err := s.queryRecords(ctx, q.rows, q.rowArgs...)
	if err != nil {
		return types.RecordPage{}, fmt.Errorf("Search: %w", err)
	}
	return types.RecordPage{Records: recs, Pagination: types.NewPagination(total, p.Page, len(recs))}, nil
}

func (s *Store) Get(ctx context.Context, id int64) (types.Record, error) {
	return getRecord(ctx, s.db, s.dialect, id)
}

// UpdateField has no version check: the last write wins.
func (s *Store) UpdateField(ctx context.Context, id int64, f types.Field, value string) (types.Record, error) {
	col, err := fieldColumn(f)
	if err != nil {
		return types.Record{}, err
	}
	nowMs := time.Now().UTC().UnixMilli()

	var updated types.Record
	err = s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cur, err := getRecord(ctx, tx, s.dialect, id)
		if err != nil {
			return err
		}
		old := cur.Value(f)

		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`
UPDATE tos
SET `+col+` = ?,
    updated_at_ms = ?
WHERE id = ?;
`), value, nowMs, id); err != nil {
			return fmt.Errorf("UpdateField update: %w", err)
		}

		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`
INSERT INTO tos_field_changes(tos_id, field, old_value, new_value, changed_at_ms)
VALUES (?, ?, ?, ?, ?);
`), id, string(f), old, value, nowMs); err != nil {
			return fmt.Errorf("UpdateField audit: %w", err)
		}

		updated = cur.With(f, value)
		return nil
	})
	if err != nil {
		return types.Record{}, err
	}
	return updated, nil
}

func (s *Store) Contractors(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "contractor")
}

func (s *Store) Statuses(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "stock_status")
}

func (s *Store) distinct(ctx context.Context, col string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT "+col+" FROM tos WHERE "+col+" <> '' ORDER BY "+col+s.dialect.BinaryCollate()+";")
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", col, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("distinct %s scan: %w", col, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) UpsertRecords(ctx context.Context, recs []types.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	nowMs := time.Now().UTC().UnixMilli()
	upsert := s.dialect.Rebind(`
INSERT INTO tos(id, contractor, date, shift, stock_id, stock_status, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  contractor    = excluded.contractor,
  date          = excluded.date,
  shift         = excluded.shift,
  stock_id      = excluded.stock_id,
  stock_status  = excluded.stock_status,
  updated_at_ms = excluded.updated_at_ms;
`)

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, r := range recs {
			if _, err := tx.ExecContext(ctx, upsert,
				r.ID, r.Contractor, r.Date, r.Shift, r.StockID, r.Status, nowMs, nowMs,
			); err != nil {
				return fmt.Errorf("UpsertRecords %d: %w", r.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// History returns the audit trail of a record, oldest first.
func (s *Store) History(ctx context.Context, id int64) ([]store.FieldChange, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`
SELECT tos_id, field, old_value, new_value, changed_at_ms
FROM tos_field_changes
WHERE tos_id = ?
ORDER BY changed_at_ms, id;
`), id)
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	defer rows.Close()

	out := []store.FieldChange{}
	for rows.Next() {
		var (
			c     store.FieldChange
			field string
			ms    int64
		)
		if err := rows.Scan(&c.RecordID, &field, &c.OldValue, &c.NewValue, &ms); err != nil {
			return nil, fmt.Errorf("History scan: %w", err)
		}
		c.Field = types.Field(field)
		c.ChangedAt = time.UnixMilli(ms).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q querier, dialect dbpkg.Dialect, id int64) (types.Record, error) {
	var r types.Record
	err := q.QueryRowContext(ctx,
		dialect.Rebind("SELECT "+recordColumns+" FROM tos WHERE id = ?;"), id,
	).Scan(&r.ID, &r.Contractor, &r.Date, &r.Shift, &r.StockID, &r.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Record{}, fmt.Errorf("record %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return types.Record{}, fmt.Errorf("get record %d: %w", id, err)
	}
	return r, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]types.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.Record{}
	for rows.Next() {
		var r types.Record
		if err := rows.Scan(&r.ID, &r.Contractor, &r.Date, &r.Shift, &r.StockID, &r.Status); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func fieldColumn(f types.Field) (string, error) {
	switch f {
	case types.FieldShift:
		return "shift", nil
	case types.FieldStatus:
		return "stock_status", nil
	}
	return "", fmt.Errorf("%w: %q", types.ErrInvalidField, f)
}
