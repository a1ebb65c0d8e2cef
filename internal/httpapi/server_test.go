package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/oretrack/internal/httpapi"
	"github.com/BrandonDHaskell/oretrack/internal/logging"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/search/searchtest"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/service"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/store"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/store/memory"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

type envelope struct {
	Success    bool              `json:"success"`
	Data       json.RawMessage   `json:"data"`
	Error      string            `json:"error"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details"`
	Pagination *types.Pagination `json:"pagination"`
}

type testOptions struct {
	env       string
	primary   store.RecordStore
	rateLimit int
}

// newTestServer wires the full dependency graph over an in-memory store
// seeded with the shared search fixtures.
func newTestServer(t *testing.T, opts testOptions) *httptest.Server {
	t.Helper()

	primary := opts.primary
	if primary == nil {
		primary = memory.New(searchtest.Records()...)
	}
	svc := service.NewRecordService(primary, nil, logging.Discard())

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:      logging.Discard(),
		Addr:        ":0",
		Env:         opts.env,
		Records:     svc,
		RateLimit:   opts.rateLimit,
		RateBurst:   opts.rateLimit,
		CORSOrigins: []string{"https://field.example"},
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url string, body string) (*http.Response, envelope) {
	t.Helper()

	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}

func stockIDs(t *testing.T, raw json.RawMessage) []string {
	t.Helper()
	var recs []types.Record
	if err := json.Unmarshal(raw, &recs); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	return searchtest.StockIDs(recs)
}

// ── Listing & search ─────────────────────────────────────────────────────────

func TestList_Paginated(t *testing.T) {
	ts := newTestServer(t, testOptions{})

	resp, env := do(t, http.MethodGet, ts.URL+"/tos?limit=2&offset=1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !env.Success {
		t.Error("expected success=true")
	}
	if got := stockIDs(t, env.Data); strings.Join(got, ",") != "BB.D.5349,5348" {
		t.Errorf("unexpected page: %v", got)
	}
	if env.Pagination == nil {
		t.Fatal("expected pagination")
	}
	want := types.Pagination{Total: 7, Limit: 2, Offset: 1, HasMore: true}
	if *env.Pagination != want {
		t.Errorf("pagination = %+v, want %+v", *env.Pagination, want)
	}
}

func TestList_BadLimit_400(t *testing.T) {
	ts := newTestServer(t, testOptions{})

	for _, q := range []string{"limit=abc", "limit=501", "offset=-1", "limit=0"} {
		resp, env := do(t, http.MethodGet, ts.URL+"/tos?"+q, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, resp.StatusCode)
		}
		if env.Error != types.CodeValidation || len(env.Details) == 0 {
			t.Errorf("%s: expected field details, got %+v", q, env)
		}
	}
}

func TestSearch_RankedWithRecordKeys(t *testing.T) {
	ts := newTestServer(t, testOptions{})

	resp, env := do(t, http.MethodGet, ts.URL+"/tos/search?q=5348", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := stockIDs(t, env.Data); strings.Join(got, ",") != "5348,5348.A,BB.D.5348" {
		t.Errorf("unexpected order: %v", got)
	}

	var raw []map[string]any
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, k := range []string{"ID", "CONTRACTOR", "DATE", "SHIFT", "STOCK_ID", "STOCK_STATUS"} {
		if _, ok := raw[0][k]; !ok {
			t.Errorf("record JSON missing %s: %v", k, raw[0])
		}
	}
}

func TestSearch_Filters(t *testing.T) {
	ts := newTestServer(t, testOptions{})

	_, env := do(t, http.MethodGet, ts.URL+"/tos/search?q=5348&contractor=northfield%20haulage&dateStart=2024-05-02&dateEnd=2024-05-02", "")
	if got := stockIDs(t, env.Data); strings.Join(got, ",") != "5348,5348.A" {
		t.Errorf("unexpected filtered result: %v", got)
	}

	resp, env := do(t, http.MethodGet, ts.URL+"/tos/search?status=LOST", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if env.Details["status"] != "oneof" {
		t.Errorf("unexpected details: %v", env.Details)
	}
}

// ── Single record ────────────────────────────────────────────────────────────

func TestGet_FoundAndMissing(t *testing.T) {
	ts := newTestServer(t, testOptions{})

	resp, env := do(t, http.MethodGet, ts.URL+"/tos/5", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var rec types.Record
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.StockID != "RL-2001" {
		t.Errorf("unexpected record: %+v", rec)
	}

	resp, env = do(t, http.MethodGet, ts.URL+"/tos/999", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if env.Success || env.Error != types.CodeNotFound {
		t.Errorf("unexpected envelope: %+v", env)
	}

	resp, _ = do(t, http.MethodGet, ts.URL+"/tos/abc", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for non-numeric id, got %d", resp.StatusCode)
	}
}

// ── Updates ──────────────────────────────────────────────────────────────────

func TestUpdate_OK_ThenHistory(t *testing.T) {
	ts := newTestServer(t, testOptions{})

	resp, env := do(t, http.MethodPut, ts.URL+"/tos/1", `{"field":"STOCK_STATUS","value":"COMPLETE"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%+v)", resp.StatusCode, env)
	}
	var rec types.Record
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Status != types.StatusComplete {
		t.Errorf("expected COMPLETE, got %q", rec.Status)
	}

	_, env = do(t, http.MethodGet, ts.URL+"/tos/1/history", "")
	var changes []store.FieldChange
	if err := json.Unmarshal(env.Data, &changes); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(changes) != 1 || changes[0].OldValue != types.StatusBuilding || changes[0].NewValue != types.StatusComplete {
		t.Errorf("unexpected history: %+v", changes)
	}
}

func TestUpdate_Rejections(t *testing.T) {
	ts := newTestServer(t, testOptions{})

	cases := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"immutable field", "/tos/1", `{"field":"CONTRACTOR","value":"X"}`, http.StatusBadRequest, types.CodeInvalidField},
		{"bad value", "/tos/1", `{"field":"SHIFT","value":"SWING"}`, http.StatusBadRequest, types.CodeInvalidValue},
		{"missing value", "/tos/1", `{"field":"SHIFT"}`, http.StatusBadRequest, types.CodeValidation},
		{"unknown member", "/tos/1", `{"field":"SHIFT","value":"DAY","extra":1}`, http.StatusBadRequest, types.CodeBadJSON},
		{"not json", "/tos/1", `not json at all`, http.StatusBadRequest, types.CodeBadJSON},
		{"missing record", "/tos/999", `{"field":"SHIFT","value":"DAY"}`, http.StatusNotFound, types.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, env := do(t, http.MethodPut, ts.URL+tc.path, tc.body)
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.StatusCode)
			}
			if env.Error != tc.code {
				t.Errorf("expected error=%s, got %q", tc.code, env.Error)
			}
		})
	}
}

func TestBulkUpdate_PartialFailure(t *testing.T) {
	ts := newTestServer(t, testOptions{})

	body := `{"updates":[
		{"id":1,"field":"SHIFT","value":"NIGHT"},
		{"id":2,"field":"DATE","value":"2024-01-01"},
		{"id":999,"field":"SHIFT","value":"DAY"},
		{"id":3,"field":"status","value":"DEPLETED"}
	]}`
	resp, env := do(t, http.MethodPost, ts.URL+"/tos/bulk-update", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var res types.BulkUpdateResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Successful != 2 || res.Failed != 2 {
		t.Errorf("unexpected counts: %+v", res)
	}
	if len(res.Errors) != 2 || res.Errors[0].ID != 2 || res.Errors[1].ID != 999 {
		t.Errorf("unexpected errors: %+v", res.Errors)
	}

	resp, _ = do(t, http.MethodPost, ts.URL+"/tos/bulk-update", `{"updates":[]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty batch, got %d", resp.StatusCode)
	}
}

// ── Lookups & health ─────────────────────────────────────────────────────────

func TestDistinctLists(t *testing.T) {
	ts := newTestServer(t, testOptions{})

	_, env := do(t, http.MethodGet, ts.URL+"/tos/statuses", "")
	var statuses []string
	if err := json.Unmarshal(env.Data, &statuses); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(statuses, ",") != "BUILDING,COMPLETE,DEPLETED,RECLAIMING" {
		t.Errorf("unexpected statuses: %v", statuses)
	}

	_, env = do(t, http.MethodGet, ts.URL+"/tos/contractors", "")
	var contractors []string
	if err := json.Unmarshal(env.Data, &contractors); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(contractors) != 4 || contractors[0] != "Acme Earthworks" {
		t.Errorf("unexpected contractors: %v", contractors)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, testOptions{})

	resp, env := do(t, http.MethodGet, ts.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var h types.Health
	if err := json.Unmarshal(env.Data, &h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Status != "ok" || h.Store != "memory" || !h.StoreConnected {
		t.Errorf("unexpected health: %+v", h)
	}
}

// ── Failures ─────────────────────────────────────────────────────────────────

type failingStore struct{ store.RecordStore }

func (failingStore) Name() string { return "failing" }
func (failingStore) Get(context.Context, int64) (types.Record, error) {
	return types.Record{}, errors.New("disk on fire")
}

func TestInternalError_MessageElidedOutsideDev(t *testing.T) {
	for _, tc := range []struct {
		env  string
		want string
	}{
		{"prod", "unexpected server error"},
		{"dev", "disk on fire"},
	} {
		ts := newTestServer(t, testOptions{env: tc.env, primary: failingStore{}})
		resp, env := do(t, http.MethodGet, ts.URL+"/tos/1", "")
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", tc.env, resp.StatusCode)
		}
		if env.Message != tc.want {
			t.Errorf("%s: message = %q, want %q", tc.env, env.Message, tc.want)
		}
	}
}

// ── Middleware ───────────────────────────────────────────────────────────────

func TestRequestID_EchoedOrMinted(t *testing.T) {
	ts := newTestServer(t, testOptions{})

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("expected echoed id, got %q", got)
	}

	resp, err = http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); len(got) != 36 {
		t.Errorf("expected a minted uuid, got %q", got)
	}
}

func TestRateLimit_429(t *testing.T) {
	ts := newTestServer(t, testOptions{rateLimit: 1})

	var last int
	for i := 0; i < 5; i++ {
		resp, _ := do(t, http.MethodGet, ts.URL+"/health", "")
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst, got %d", last)
	}
}

func TestCORS_Preflight(t *testing.T) {
	ts := newTestServer(t, testOptions{})

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/tos/1", nil)
	req.Header.Set("Origin", "https://field.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://field.example" {
		t.Errorf("unexpected allow-origin %q", got)
	}
}

// ── Protobuf negotiation ─────────────────────────────────────────────────────

func TestProtobufEnvelope(t *testing.T) {
	ts := newTestServer(t, testOptions{})

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/tos/search?q=rl-200", nil)
	req.Header.Set("Accept", "application/x-protobuf")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/x-protobuf" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var st structpb.Struct
	if err := proto.Unmarshal(body, &st); err != nil {
		t.Fatalf("proto unmarshal: %v", err)
	}
	m := st.AsMap()
	if m["success"] != true {
		t.Errorf("expected success=true, got %v", m["success"])
	}
	data, _ := m["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("expected 2 records, got %v", m["data"])
	}
	first, _ := data[0].(map[string]any)
	if first["STOCK_ID"] != "RL-200" {
		t.Errorf("unexpected first record: %v", first)
	}
}
