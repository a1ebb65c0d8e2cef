package store

import (
	"context"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

// RecordStore is the authoritative record store contract. Implementations:
// memory (fallback), sqlstore (SQLite/Postgres) and rediscache (decorator).
type RecordStore interface {
	// Name identifies the backend in health output and logs.
	Name() string
	Ping(ctx context.Context) error

	List(ctx context.Context, page types.Page) (types.RecordPage, error)
	// Search ranks by the tier order in package search. Filters apply
	// before ranking; a blank query returns filtered records by id.
	Search(ctx context.Context, p types.SearchParams) (types.RecordPage, error)
	Get(ctx context.Context, id int64) (types.Record, error)

	// UpdateField overwrites one mutable field (last write wins) and returns
	// the updated record. ErrNotFound when id is unknown.
	UpdateField(ctx context.Context, id int64, f types.Field, value string) (types.Record, error)

	// History lists accepted updates of one record, oldest first.
	History(ctx context.Context, id int64) ([]FieldChange, error)

	Contractors(ctx context.Context) ([]string, error)
	Statuses(ctx context.Context) ([]string, error)

	// UpsertRecords is the ingestion path; it replaces rows by id.
	UpsertRecords(ctx context.Context, recs []types.Record) (int, error)
}
