// Package offline keeps the field client's local copy of the records and
// the queue of edits that have not reached the server yet.
package offline

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	dbpkg "github.com/BrandonDHaskell/oretrack/internal/db"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/search"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

//go:embed schema.sql
var schema string

const recordColumns = "id, contractor, date, shift, stock_id, stock_status"

// Log is the offline record cache plus the pending update queue. It is
// meant for a single process; writes are serialised through a db.Worker.
type Log struct {
	db     *sql.DB
	writer *dbpkg.Worker

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// Open opens (creating if needed) the cache file at path.
func Open(ctx context.Context, path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir cache dir: %w", err)
	}
	conn, err := sql.Open(dbpkg.SQLite.DriverName(), dbpkg.SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	l, err := New(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return l, nil
}

// New prepares the schema on an already open SQLite connection.
func New(ctx context.Context, conn *sql.DB) (*Log, error) {
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("offline schema: %w", err)
	}

	l := &Log{db: conn, writer: dbpkg.NewWorker(conn), now: time.Now}

	// Resume the stamp sequence so ids stay increasing across restarts.
	var lastNs sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT MAX(created_at_ns) FROM pending_updates;").Scan(&lastNs); err != nil {
		l.writer.Close()
		return nil, fmt.Errorf("offline resume: %w", err)
	}
	if lastNs.Valid {
		l.last = time.Unix(0, lastNs.Int64).UTC()
	}
	return l, nil
}

// Close stops the writer and closes the database.
func (l *Log) Close() error {
	l.writer.Close()
	return l.db.Close()
}

// stamp returns a strictly increasing UTC timestamp.
func (l *Log) stamp() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := l.now().UTC()
	if !t.After(l.last) {
		t = l.last.Add(time.Nanosecond)
	}
	l.last = t
	return t
}

// ApplyEdit writes value into the local record and queues the change for
// sync. The edit is visible to Get and Search immediately.
func (l *Log) ApplyEdit(ctx context.Context, recordID int64, field, value string) (types.PendingUpdate, error) {
	f, err := types.ParseField(field)
	if err != nil {
		return types.PendingUpdate{}, err
	}
	if err := types.ValidateValue(f, value); err != nil {
		return types.PendingUpdate{}, err
	}
	col := columnFor(f)

	var pu types.PendingUpdate
	err = l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cur, err := getRecord(ctx, tx, recordID)
		if err != nil {
			return err
		}

		at := l.stamp()
		pu = types.PendingUpdate{
			ID:        types.PendingID(recordID, f, at),
			RecordID:  recordID,
			Field:     f,
			OldValue:  cur.Value(f),
			NewValue:  value,
			CreatedAt: at,
		}

		if _, err := tx.ExecContext(ctx, "UPDATE records SET "+col+" = ? WHERE id = ?;", value, recordID); err != nil {
			return fmt.Errorf("ApplyEdit update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO pending_updates(id, record_id, field, old_value, new_value, created_at_ns)
VALUES (?, ?, ?, ?, ?, ?);
`, pu.ID, pu.RecordID, string(pu.Field), pu.OldValue, pu.NewValue, at.UnixNano()); err != nil {
			return fmt.Errorf("ApplyEdit enqueue: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.PendingUpdate{}, err
	}
	return pu, nil
}

// PendingUpdates returns unsynced entries in insertion order.
func (l *Log) PendingUpdates(ctx context.Context) ([]types.PendingUpdate, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT id, record_id, field, old_value, new_value, created_at_ns, synced
FROM pending_updates
WHERE synced = 0
ORDER BY seq;
`)
	if err != nil {
		return nil, fmt.Errorf("PendingUpdates: %w", err)
	}
	defer rows.Close()

	out := []types.PendingUpdate{}
	for rows.Next() {
		var (
			pu     types.PendingUpdate
			field  string
			ns     int64
			synced int
		)
		if err := rows.Scan(&pu.ID, &pu.RecordID, &field, &pu.OldValue, &pu.NewValue, &ns, &synced); err != nil {
			return nil, fmt.Errorf("PendingUpdates scan: %w", err)
		}
		pu.Field = types.Field(field)
		pu.CreatedAt = time.Unix(0, ns).UTC()
		pu.Synced = synced != 0
		out = append(out, pu)
	}
	return out, rows.Err()
}

// PendingCount is the badge count of unsynced edits.
func (l *Log) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_updates WHERE synced = 0;").Scan(&n); err != nil {
		return 0, fmt.Errorf("PendingCount: %w", err)
	}
	return n, nil
}

// ClearPendingUpdate drops one acknowledged entry. Unknown ids are a no-op.
func (l *Log) ClearPendingUpdate(ctx context.Context, id string) error {
	return l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM pending_updates WHERE id = ?;", id); err != nil {
			return fmt.Errorf("ClearPendingUpdate: %w", err)
		}
		return nil
	})
}

// ClearPendingThrough drops an acknowledged entry together with every older
// entry for the same record and field. Those older values were overwritten
// on the server by the acknowledged one and must not be replayed.
func (l *Log) ClearPendingThrough(ctx context.Context, pu types.PendingUpdate) error {
	return l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
DELETE FROM pending_updates
WHERE record_id = ? AND field = ? AND (created_at_ns <= ? OR id = ?);
`, pu.RecordID, string(pu.Field), pu.CreatedAt.UnixNano(), pu.ID); err != nil {
			return fmt.Errorf("ClearPendingThrough: %w", err)
		}
		return nil
	})
}

// Replace swaps the cached records for a fresh server snapshot and then
// re-applies every pending edit, so optimistic values survive a refresh.
func (l *Log) Replace(ctx context.Context, recs []types.Record) error {
	return l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM records;"); err != nil {
			return fmt.Errorf("Replace clear: %w", err)
		}
		if err := insertRecords(ctx, tx, recs); err != nil {
			return err
		}
		return reapplyPending(ctx, tx)
	})
}

// PutRecords upserts records without dropping the rest of the cache.
func (l *Log) PutRecords(ctx context.Context, recs []types.Record) error {
	return l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := insertRecords(ctx, tx, recs); err != nil {
			return err
		}
		return reapplyPending(ctx, tx)
	})
}

func insertRecords(ctx context.Context, tx *sql.Tx, recs []types.Record) error {
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO records(`+recordColumns+`)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  contractor = excluded.contractor,
  date = excluded.date,
  shift = excluded.shift,
  stock_id = excluded.stock_id,
  stock_status = excluded.stock_status;
`)
	if err != nil {
		return fmt.Errorf("insert records prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Contractor, r.Date, r.Shift, r.StockID, r.Status); err != nil {
			return fmt.Errorf("insert record %d: %w", r.ID, err)
		}
	}
	return nil
}

func reapplyPending(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, "SELECT record_id, field, new_value FROM pending_updates WHERE synced = 0 ORDER BY seq;")
	if err != nil {
		return fmt.Errorf("reapply pending: %w", err)
	}
	type edit struct {
		id    int64
		field string
		value string
	}
	var edits []edit
	for rows.Next() {
		var e edit
		if err := rows.Scan(&e.id, &e.field, &e.value); err != nil {
			rows.Close()
			return fmt.Errorf("reapply pending scan: %w", err)
		}
		edits = append(edits, e)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, e := range edits {
		col := columnFor(types.Field(e.field))
		if col == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, "UPDATE records SET "+col+" = ? WHERE id = ?;", e.value, e.id); err != nil {
			return fmt.Errorf("reapply pending %d: %w", e.id, err)
		}
	}
	return nil
}

func (l *Log) Get(ctx context.Context, id int64) (types.Record, error) {
	return getRecord(ctx, l.db, id)
}

// Records returns every cached record ordered by id.
func (l *Log) Records(ctx context.Context) ([]types.Record, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT "+recordColumns+" FROM records ORDER BY id;")
	if err != nil {
		return nil, fmt.Errorf("Records: %w", err)
	}
	defer rows.Close()

	out := []types.Record{}
	for rows.Next() {
		var r types.Record
		if err := rows.Scan(&r.ID, &r.Contractor, &r.Date, &r.Shift, &r.StockID, &r.Status); err != nil {
			return nil, fmt.Errorf("Records scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Search ranks the cached records locally, fuzzy tier included. The page
// bounds match the server's.
func (l *Log) Search(ctx context.Context, p types.SearchParams) (types.RecordPage, error) {
	page, err := checkPage(p.Page)
	if err != nil {
		return types.RecordPage{}, err
	}
	p.Page = page

	all, err := l.Records(ctx)
	if err != nil {
		return types.RecordPage{}, err
	}
	ranked := search.Rank(p.Query, search.Filter(all, p.Filters), search.Local)
	win := search.Window(ranked, p.Page)
	return types.RecordPage{Records: win, Pagination: types.NewPagination(len(ranked), p.Page, len(win))}, nil
}

// checkPage applies the default limit and rejects windows the API would
// reject, with the same field keys and tags.
func checkPage(p types.Page) (types.Page, error) {
	if p.Limit == 0 {
		p.Limit = types.DefaultPageLimit
	}
	fields := map[string]string{}
	switch {
	case p.Limit < 1:
		fields["limit"] = "gte"
	case p.Limit > types.MaxPageLimit:
		fields["limit"] = "lte"
	}
	if p.Offset < 0 {
		fields["offset"] = "gte"
	}
	if len(fields) > 0 {
		return p, &types.ValidationError{Fields: fields}
	}
	return p, nil
}

// Contractors lists distinct cached contractors, sorted.
func (l *Log) Contractors(ctx context.Context) ([]string, error) {
	return l.distinct(ctx, "contractor")
}

// Statuses lists distinct cached statuses, sorted.
func (l *Log) Statuses(ctx context.Context) ([]string, error) {
	return l.distinct(ctx, "stock_status")
}

func (l *Log) distinct(ctx context.Context, col string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT DISTINCT "+col+" FROM records WHERE "+col+" <> '' ORDER BY "+col+";")
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", col, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q querier, id int64) (types.Record, error) {
	var r types.Record
	err := q.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE id = ?;", id).
		Scan(&r.ID, &r.Contractor, &r.Date, &r.Shift, &r.StockID, &r.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Record{}, fmt.Errorf("record %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return types.Record{}, fmt.Errorf("get record %d: %w", id, err)
	}
	return r, nil
}

func columnFor(f types.Field) string {
	switch f {
	case types.FieldShift:
		return "shift"
	case types.FieldStatus:
		return "stock_status"
	}
	return ""
}
