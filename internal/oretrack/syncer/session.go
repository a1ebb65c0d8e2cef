// Package syncer decides between the REST API and the offline cache for
// field edits and searches, and drains the pending update queue.
package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

// Remote is the part of the API client used here.
type Remote interface {
	Search(ctx context.Context, p types.SearchParams) (types.RecordPage, error)
	UpdateField(ctx context.Context, id int64, field types.Field, value string) (types.Record, error)
	All(ctx context.Context) ([]types.Record, error)
	Health(ctx context.Context) (types.Health, error)
}

// Local is the part of the offline log used here.
type Local interface {
	ApplyEdit(ctx context.Context, recordID int64, field, value string) (types.PendingUpdate, error)
	PendingUpdates(ctx context.Context) ([]types.PendingUpdate, error)
	ClearPendingThrough(ctx context.Context, pu types.PendingUpdate) error
	Replace(ctx context.Context, recs []types.Record) error
	Search(ctx context.Context, p types.SearchParams) (types.RecordPage, error)
}

// Source says which side answered a read.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Session is one operator's view: local first for writes, remote first for
// reads.
type Session struct {
	remote Remote
	local  Local
	logger logrus.FieldLogger
}

func NewSession(remote Remote, local Local, logger logrus.FieldLogger) *Session {
	return &Session{remote: remote, local: local, logger: logger}
}

// EditResult reports what happened to one edit.
type EditResult struct {
	Pending types.PendingUpdate
	// Synced is true when the server accepted the edit and the queue entry
	// was cleared.
	Synced bool
	// RemoteErr holds the push failure, if any. The edit stays queued.
	RemoteErr error
}

// Edit applies the change locally, then tries to push it. A failed push is
// not an error: the entry stays queued for the Syncer. A successful push
// also drops older queued edits of the same field, which it supersedes.
func (s *Session) Edit(ctx context.Context, recordID int64, field, value string) (EditResult, error) {
	pu, err := s.local.ApplyEdit(ctx, recordID, field, value)
	if err != nil {
		return EditResult{}, err
	}
	res := EditResult{Pending: pu}

	if _, err := s.remote.UpdateField(ctx, pu.RecordID, pu.Field, pu.NewValue); err != nil {
		res.RemoteErr = err
		s.logger.WithError(err).WithField("pending_id", pu.ID).Info("edit queued for later sync")
		return res, nil
	}
	if err := s.local.ClearPendingThrough(ctx, pu); err != nil {
		return res, fmt.Errorf("clear pending %s: %w", pu.ID, err)
	}
	res.Synced = true
	return res, nil
}

// Search asks the server and falls back to local ranking when it is
// unreachable. Domain errors from the server are returned as-is.
func (s *Session) Search(ctx context.Context, p types.SearchParams) (types.RecordPage, Source, error) {
	res, err := s.remote.Search(ctx, p)
	if err == nil {
		return res, SourceRemote, nil
	}
	if !errors.Is(err, types.ErrStoreUnavailable) {
		return types.RecordPage{}, SourceRemote, err
	}

	s.logger.WithError(err).Debug("search falling back to offline cache")
	res, lerr := s.local.Search(ctx, p)
	if lerr != nil {
		return types.RecordPage{}, SourceLocal, fmt.Errorf("remote: %v; local: %w", err, lerr)
	}
	return res, SourceLocal, nil
}

// Refresh replaces the cache with the server's records. Pending edits are
// re-applied on top by the local log.
func (s *Session) Refresh(ctx context.Context) (int, error) {
	recs, err := s.remote.All(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.local.Replace(ctx, recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}
