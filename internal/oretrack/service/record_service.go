package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/store"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

const genericFault = "unexpected server error"

// RecordService validates requests and routes them to the primary store,
// degrading to the fallback store when the primary fails for reasons other
// than bad input.
type RecordService struct {
	primary     store.RecordStore
	fallback    store.RecordStore
	logger      logrus.FieldLogger
	faultDetail bool
}

// Option configures a RecordService.
type Option func(*RecordService)

// WithFaultDetail puts store fault messages into per-item bulk errors.
// Without it those items report a generic message. Dev servers only.
func WithFaultDetail() Option {
	return func(s *RecordService) { s.faultDetail = true }
}

// NewRecordService builds the service. fallback may be nil.
func NewRecordService(primary, fallback store.RecordStore, logger logrus.FieldLogger, opts ...Option) *RecordService {
	s := &RecordService{primary: primary, fallback: fallback, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// degrade runs op on the primary store and, on a store fault, on the
// fallback. Domain errors (not found, invalid field) are returned as-is.
func degrade[T any](ctx context.Context, s *RecordService, name string, op func(store.RecordStore) (T, error)) (T, error) {
	out, err := op(s.primary)
	if err == nil || types.IsDomainError(err) || s.fallback == nil || errors.Is(err, context.Canceled) {
		return out, err
	}

	s.logger.WithError(err).WithFields(logrus.Fields{
		"op":       name,
		"primary":  s.primary.Name(),
		"fallback": s.fallback.Name(),
	}).Warn("primary store failed, using fallback")

	out, ferr := op(s.fallback)
	if ferr != nil {
		if types.IsDomainError(ferr) {
			return out, ferr
		}
		return out, fmt.Errorf("%s: primary: %v; fallback: %w", name, err, ferr)
	}
	return out, nil
}

func (s *RecordService) List(ctx context.Context, page types.Page) (types.RecordPage, error) {
	page, err := normalizePage(page)
	if err != nil {
		return types.RecordPage{}, err
	}
	return degrade(ctx, s, "list", func(st store.RecordStore) (types.RecordPage, error) {
		return st.List(ctx, page)
	})
}

func (s *RecordService) Search(ctx context.Context, p types.SearchParams) (types.RecordPage, error) {
	page, err := normalizePage(p.Page)
	if err != nil {
		return types.RecordPage{}, err
	}
	p.Page = page
	if err := validate.Struct(p.Filters); err != nil {
		return types.RecordPage{}, validationError(err)
	}
	if p.Filters.DateStart != "" && p.Filters.DateEnd != "" && p.Filters.DateStart > p.Filters.DateEnd {
		return types.RecordPage{}, &types.ValidationError{Fields: map[string]string{"dateEnd": "must not precede dateStart"}}
	}
	return degrade(ctx, s, "search", func(st store.RecordStore) (types.RecordPage, error) {
		return st.Search(ctx, p)
	})
}

func (s *RecordService) Get(ctx context.Context, id int64) (types.Record, error) {
	return degrade(ctx, s, "get", func(st store.RecordStore) (types.Record, error) {
		return st.Get(ctx, id)
	})
}

func (s *RecordService) History(ctx context.Context, id int64) ([]store.FieldChange, error) {
	return degrade(ctx, s, "history", func(st store.RecordStore) ([]store.FieldChange, error) {
		return st.History(ctx, id)
	})
}

// UpdateField validates and applies one field update.
func (s *RecordService) UpdateField(ctx context.Context, id int64, req types.UpdateRequest) (types.Record, error) {
	if err := validate.Struct(req); err != nil {
		return types.Record{}, validationError(err)
	}
	f, err := types.ParseField(req.Field)
	if err != nil {
		return types.Record{}, err
	}
	if err := types.ValidateValue(f, req.Value); err != nil {
		return types.Record{}, err
	}

	rec, err := degrade(ctx, s, "update", func(st store.RecordStore) (types.Record, error) {
		return st.UpdateField(ctx, id, f, req.Value)
	})
	if err != nil {
		return types.Record{}, err
	}
	s.logger.WithFields(logrus.Fields{"id": id, "field": f, "value": req.Value}).Info("record updated")
	return rec, nil
}

// BulkUpdate applies each item independently. A failing item is reported in
// Errors (input order) and never aborts the rest of the batch.
func (s *RecordService) BulkUpdate(ctx context.Context, req types.BulkUpdateRequest) (types.BulkUpdateResult, error) {
	if err := validate.Struct(req); err != nil {
		return types.BulkUpdateResult{}, validationError(err)
	}

	res := types.BulkUpdateResult{Errors: []types.BulkUpdateError{}}
	for _, item := range req.Updates {
		if err := s.applyItem(ctx, item); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, types.BulkUpdateError{ID: item.ID, Message: s.itemMessage(item, err)})
			continue
		}
		res.Successful++
	}

	s.logger.WithFields(logrus.Fields{
		"successful": res.Successful,
		"failed":     res.Failed,
	}).Info("bulk update finished")
	return res, nil
}

// itemMessage is the client-facing text for a failed bulk item. Store faults
// are logged and, unless fault detail is on, reported generically.
func (s *RecordService) itemMessage(item types.BulkUpdateItem, err error) string {
	if types.IsDomainError(err) {
		return err.Error()
	}
	s.logger.WithError(err).WithField("id", item.ID).Warn("bulk update item failed")
	if s.faultDetail {
		return err.Error()
	}
	return genericFault
}

func (s *RecordService) applyItem(ctx context.Context, item types.BulkUpdateItem) error {
	if item.ID <= 0 {
		return &types.ValidationError{Fields: map[string]string{"id": "must be positive"}}
	}
	f, err := types.ParseField(item.Field)
	if err != nil {
		return err
	}
	if err := types.ValidateValue(f, item.Value); err != nil {
		return err
	}
	_, err = degrade(ctx, s, "bulk-update", func(st store.RecordStore) (types.Record, error) {
		return st.UpdateField(ctx, item.ID, f, item.Value)
	})
	return err
}

func (s *RecordService) Contractors(ctx context.Context) ([]string, error) {
	return degrade(ctx, s, "contractors", func(st store.RecordStore) ([]string, error) {
		return st.Contractors(ctx)
	})
}

func (s *RecordService) Statuses(ctx context.Context) ([]string, error) {
	return degrade(ctx, s, "statuses", func(st store.RecordStore) ([]string, error) {
		return st.Statuses(ctx)
	})
}

// Health pings the primary store. The process is alive either way; a failed
// ping only downgrades the reported status.
func (s *RecordService) Health(ctx context.Context) types.Health {
	h := types.Health{
		Status:         "ok",
		Store:          s.primary.Name(),
		StoreConnected: true,
		Time:           time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.primary.Ping(ctx); err != nil {
		h.Status = "degraded"
		h.StoreConnected = false
	}
	return h
}

// Ping reports primary store connectivity.
func (s *RecordService) Ping(ctx context.Context) error {
	return s.primary.Ping(ctx)
}
