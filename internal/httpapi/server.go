package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/store"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

// Records is the service surface the HTTP layer needs.
type Records interface {
	List(ctx context.Context, page types.Page) (types.RecordPage, error)
	Search(ctx context.Context, p types.SearchParams) (types.RecordPage, error)
	Get(ctx context.Context, id int64) (types.Record, error)
	History(ctx context.Context, id int64) ([]store.FieldChange, error)
	UpdateField(ctx context.Context, id int64, req types.UpdateRequest) (types.Record, error)
	BulkUpdate(ctx context.Context, req types.BulkUpdateRequest) (types.BulkUpdateResult, error)
	Contractors(ctx context.Context) ([]string, error)
	Statuses(ctx context.Context) ([]string, error)
	Health(ctx context.Context) types.Health
}

type Dependencies struct {
	Logger  logrus.FieldLogger
	Addr    string
	Env     string // "dev" exposes internal error messages
	Records Records

	RateLimit   int // requests/second, 0 = unlimited
	RateBurst   int
	CORSOrigins []string
}

type Server struct {
	httpServer *http.Server
	logger     logrus.FieldLogger
	mux        *http.ServeMux
	records    Records
	dev        bool
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:  d.Logger,
		mux:     mux,
		records: d.Records,
		dev:     d.Env == "" || d.Env == "dev",
	}

	mux.HandleFunc("GET /tos", s.handleList)
	mux.HandleFunc("GET /tos/search", s.handleSearch)
	mux.HandleFunc("GET /tos/contractors", s.handleContractors)
	mux.HandleFunc("GET /tos/statuses", s.handleStatuses)
	mux.HandleFunc("POST /tos/bulk-update", s.handleBulkUpdate)
	mux.HandleFunc("GET /tos/{id}", s.handleGet)
	mux.HandleFunc("GET /tos/{id}/history", s.handleHistory)
	mux.HandleFunc("PUT /tos/{id}", s.handleUpdate)
	mux.HandleFunc("GET /health", s.handleHealth)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(d.RateLimit, d.RateBurst, handler)
	handler = corsMiddleware(d.CORSOrigins, handler)
	handler = loggingMiddleware(d.Logger, handler)
	handler = requestIDMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.records.List(r.Context(), page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writePage(w, r, res)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	res, err := s.records.Search(r.Context(), types.SearchParams{
		Query: q.Get("q"),
		Filters: types.Filters{
			Contractor: strings.TrimSpace(q.Get("contractor")),
			Status:     strings.TrimSpace(q.Get("status")),
			DateStart:  strings.TrimSpace(q.Get("dateStart")),
			DateEnd:    strings.TrimSpace(q.Get("dateEnd")),
		},
		Page: page,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writePage(w, r, res)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.records.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, rec)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	changes, err := s.records.History(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, changes)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req types.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, types.CodeBadJSON, "invalid JSON body", nil)
		return
	}
	rec, err := s.records.UpdateField(r.Context(), id, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, rec)
}

func (s *Server) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req types.BulkUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, types.CodeBadJSON, "invalid JSON body", nil)
		return
	}
	res, err := s.records.BulkUpdate(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, res)
}

func (s *Server) handleContractors(w http.ResponseWriter, r *http.Request) {
	list, err := s.records.Contractors(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, list)
}

func (s *Server) handleStatuses(w http.ResponseWriter, r *http.Request) {
	list, err := s.records.Statuses(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, list)
}

// handleHealth always answers 200 while the process runs; store trouble
// shows up in the payload only.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, s.records.Health(r.Context()))
}

// fail maps a service error to its HTTP status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ve *types.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, r, http.StatusBadRequest, types.CodeValidation, "validation failed", ve.Fields)
	case errors.Is(err, types.ErrInvalidField):
		writeError(w, r, http.StatusBadRequest, types.CodeInvalidField, err.Error(), nil)
	case errors.Is(err, types.ErrInvalidValue):
		writeError(w, r, http.StatusBadRequest, types.CodeInvalidValue, err.Error(), nil)
	case errors.Is(err, types.ErrNotFound):
		writeError(w, r, http.StatusNotFound, types.CodeNotFound, err.Error(), nil)
	default:
		s.logger.WithError(err).WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": RequestIDFrom(r.Context()),
		}).Error("request failed")
		msg := "unexpected server error"
		if s.dev {
			msg = err.Error()
		}
		writeError(w, r, http.StatusInternalServerError, types.CodeInternal, msg, nil)
	}
}

func parsePage(r *http.Request) (types.Page, error) {
	q := r.URL.Query()
	var (
		p      types.Page
		fields = map[string]string{}
	)
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fields["limit"] = "must be an integer"
		}
		p.Limit = n
		if err == nil && n == 0 {
			fields["limit"] = "gte"
		}
	}
	if v := strings.TrimSpace(q.Get("offset")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fields["offset"] = "must be an integer"
		}
		p.Offset = n
	}
	if len(fields) > 0 {
		return p, &types.ValidationError{Fields: fields}
	}
	return p, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &types.ValidationError{Fields: map[string]string{"id": "must be a positive integer"}}
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
