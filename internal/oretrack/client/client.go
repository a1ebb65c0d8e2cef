// Package client talks to the oretrack REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/store"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

// DefaultTimeout bounds every outbound call.
const DefaultTimeout = 10 * time.Second

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	session string
	seq     atomic.Uint64
}

// New returns a client for the API at baseURL. timeout <= 0 selects
// DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		session: uuid.NewString(),
	}
}

// Session identifies this client in server logs. Each request carries
// X-Request-ID "<session>-<n>".
func (c *Client) Session() string { return c.session }

// envelope mirrors the server's response wrapper.
type envelope struct {
	Success    bool              `json:"success"`
	Data       json.RawMessage   `json:"data"`
	Error      string            `json:"error"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details"`
	Pagination *types.Pagination `json:"pagination"`
}

func (c *Client) List(ctx context.Context, page types.Page) (types.RecordPage, error) {
	q := url.Values{}
	setPage(q, page)
	return c.recordPage(ctx, "/tos", q)
}

func (c *Client) Search(ctx context.Context, p types.SearchParams) (types.RecordPage, error) {
	q := url.Values{}
	if p.Query != "" {
		q.Set("q", p.Query)
	}
	setIf(q, "contractor", p.Filters.Contractor)
	setIf(q, "status", p.Filters.Status)
	setIf(q, "dateStart", p.Filters.DateStart)
	setIf(q, "dateEnd", p.Filters.DateEnd)
	setPage(q, p.Page)
	return c.recordPage(ctx, "/tos/search", q)
}

func (c *Client) Get(ctx context.Context, id int64) (types.Record, error) {
	var rec types.Record
	_, err := c.do(ctx, http.MethodGet, "/tos/"+strconv.FormatInt(id, 10), nil, nil, &rec)
	return rec, err
}

func (c *Client) History(ctx context.Context, id int64) ([]store.FieldChange, error) {
	var out []store.FieldChange
	_, err := c.do(ctx, http.MethodGet, "/tos/"+strconv.FormatInt(id, 10)+"/history", nil, nil, &out)
	return out, err
}

func (c *Client) UpdateField(ctx context.Context, id int64, field types.Field, value string) (types.Record, error) {
	var rec types.Record
	body := types.UpdateRequest{Field: string(field), Value: value}
	_, err := c.do(ctx, http.MethodPut, "/tos/"+strconv.FormatInt(id, 10), nil, body, &rec)
	return rec, err
}

func (c *Client) BulkUpdate(ctx context.Context, items []types.BulkUpdateItem) (types.BulkUpdateResult, error) {
	var res types.BulkUpdateResult
	_, err := c.do(ctx, http.MethodPost, "/tos/bulk-update", nil, types.BulkUpdateRequest{Updates: items}, &res)
	return res, err
}

func (c *Client) Contractors(ctx context.Context) ([]string, error) {
	var out []string
	_, err := c.do(ctx, http.MethodGet, "/tos/contractors", nil, nil, &out)
	return out, err
}

func (c *Client) Statuses(ctx context.Context) ([]string, error) {
	var out []string
	_, err := c.do(ctx, http.MethodGet, "/tos/statuses", nil, nil, &out)
	return out, err
}

func (c *Client) Health(ctx context.Context) (types.Health, error) {
	var h types.Health
	_, err := c.do(ctx, http.MethodGet, "/health", nil, nil, &h)
	return h, err
}

// All pages through /tos until the server reports no more records.
func (c *Client) All(ctx context.Context) ([]types.Record, error) {
	page := types.Page{Limit: types.MaxPageLimit}
	var out []types.Record
	for {
		res, err := c.List(ctx, page)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Records...)
		if !res.Pagination.HasMore || len(res.Records) == 0 {
			return out, nil
		}
		page.Offset += len(res.Records)
	}
}

func (c *Client) recordPage(ctx context.Context, path string, q url.Values) (types.RecordPage, error) {
	var recs []types.Record
	env, err := c.do(ctx, http.MethodGet, path, q, nil, &recs)
	if err != nil {
		return types.RecordPage{}, err
	}
	res := types.RecordPage{Records: recs}
	if env.Pagination != nil {
		res.Pagination = *env.Pagination
	}
	return res, nil
}

// do performs one round trip. Transport failures, timeouts and 5xx answers
// are reported as types.ErrStoreUnavailable; 4xx answers map to the domain
// errors the server derived them from.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) (envelope, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return envelope{}, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return envelope{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", c.session+"-"+strconv.FormatUint(c.seq.Add(1), 10))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return envelope{}, err
		}
		return envelope{}, fmt.Errorf("%s %s: %w: %v", method, path, types.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 500 {
			return envelope{}, fmt.Errorf("%s %s: %w: status %d", method, path, types.ErrStoreUnavailable, resp.StatusCode)
		}
		return envelope{}, fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}

	if resp.StatusCode >= 300 || !env.Success {
		return env, statusError(resp.StatusCode, env)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env, fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	return env, nil
}

func statusError(status int, env envelope) error {
	msg := env.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status >= 500, status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", types.ErrStoreUnavailable, msg)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", types.ErrNotFound, msg)
	}
	switch env.Error {
	case types.CodeInvalidField:
		return fmt.Errorf("%w: %s", types.ErrInvalidField, msg)
	case types.CodeInvalidValue:
		return fmt.Errorf("%w: %s", types.ErrInvalidValue, msg)
	}
	fields := env.Details
	if len(fields) == 0 {
		fields = map[string]string{"request": msg}
	}
	return &types.ValidationError{Fields: fields}
}

func setPage(q url.Values, p types.Page) {
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
}

func setIf(q url.Values, key, v string) {
	if v != "" {
		q.Set(key, v)
	}
}
