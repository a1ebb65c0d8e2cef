package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/search"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/store"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

// Store is the in-memory record store. It backs the server when the
// relational store is unreachable, and tests.
type Store struct {
	mu      sync.RWMutex
	records map[int64]types.Record
	changes []store.FieldChange
}

var _ store.RecordStore = (*Store)(nil)

func New(seed ...types.Record) *Store {
	s := &Store{records: make(map[int64]types.Record, len(seed))}
	for _, r := range seed {
		s.records[r.ID] = r
	}
	return s
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Ping(context.Context) error { return nil }

// snapshot returns all records ordered by id.
func (s *Store) snapshot() []types.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) List(_ context.Context, page types.Page) (types.RecordPage, error) {
	all := s.snapshot()
	win := search.Window(all, page)
	return types.RecordPage{
		Records:    win,
		Pagination: types.NewPagination(len(all), page, len(win)),
	}, nil
}

func (s *Store) Search(_ context.Context, p types.SearchParams) (types.RecordPage, error) {
	candidates := search.Filter(s.snapshot(), p.Filters)
	ranked := search.Rank(p.Query, candidates, search.Local)
	win := search.Window(ranked, p.Page)
	return types.RecordPage{
		Records:    win,
		Pagination: types.NewPagination(len(ranked), p.Page, len(win)),
	}, nil
}

func (s *Store) Get(_ context.Context, id int64) (types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return types.Record{}, fmt.Errorf("record %d: %w", id, types.ErrNotFound)
	}
	return r, nil
}

func (s *Store) UpdateField(_ context.Context, id int64, f types.Field, value string) (types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return types.Record{}, fmt.Errorf("record %d: %w", id, types.ErrNotFound)
	}
	old := r.Value(f)
	r = r.With(f, value)
	s.records[id] = r
	s.changes = append(s.changes, store.FieldChange{
		RecordID:  id,
		Field:     f,
		OldValue:  old,
		NewValue:  value,
		ChangedAt: time.Now().UTC(),
	})
	return r, nil
}

func (s *Store) Contractors(context.Context) ([]string, error) {
	return s.distinct(func(r types.Record) string { return r.Contractor }), nil
}

func (s *Store) Statuses(context.Context) ([]string, error) {
	return s.distinct(func(r types.Record) string { return r.Status }), nil
}

func (s *Store) distinct(col func(types.Record) string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	out := []string{}
	for _, r := range s.records {
		v := col(r)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s *Store) UpsertRecords(_ context.Context, recs []types.Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.records[r.ID] = r
	}
	return len(recs), nil
}

func (s *Store) History(_ context.Context, id int64) ([]store.FieldChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.records[id]; !ok {
		return nil, fmt.Errorf("record %d: %w", id, types.ErrNotFound)
	}
	out := []store.FieldChange{}
	for _, c := range s.changes {
		if c.RecordID == id {
			out = append(out, c)
		}
	}
	return out, nil
}

// Changes returns a copy of the recorded field changes. Test-only helper.
func (s *Store) Changes() []store.FieldChange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.FieldChange, len(s.changes))
	copy(out, s.changes)
	return out
}
