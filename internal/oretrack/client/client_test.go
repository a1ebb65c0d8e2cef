package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/oretrack/internal/httpapi"
	"github.com/BrandonDHaskell/oretrack/internal/logging"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/client"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/search/searchtest"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/service"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/store/memory"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

func newAPI(t *testing.T) *client.Client {
	t.Helper()
	svc := service.NewRecordService(memory.New(searchtest.Records()...), nil, logging.Discard())
	srv := httpapi.NewServer(httpapi.Dependencies{Logger: logging.Discard(), Records: svc})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return client.New(ts.URL+"/", time.Second)
}

func TestClient_ReadPaths(t *testing.T) {
	c := newAPI(t)
	ctx := context.Background()

	res, err := c.Search(ctx, types.SearchParams{Query: "5348", Filters: types.Filters{Contractor: "Northfield Haulage"}})
	require.NoError(t, err)
	require.Equal(t, []string{"5348", "5348.A"}, searchtest.StockIDs(res.Records))
	require.Equal(t, 2, res.Pagination.Total)

	page, err := c.List(ctx, types.Page{Limit: 3, Offset: 6})
	require.NoError(t, err)
	require.Equal(t, []string{"X9-17"}, searchtest.StockIDs(page.Records))
	require.False(t, page.Pagination.HasMore)

	rec, err := c.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "Bassett & Sons", rec.Contractor)

	all, err := c.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 7)

	cs, err := c.Contractors(ctx)
	require.NoError(t, err)
	require.Len(t, cs, 4)

	st, err := c.Statuses(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"BUILDING", "COMPLETE", "DEPLETED", "RECLAIMING"}, st)

	h, err := c.Health(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", h.Status)
}

func TestClient_WritePaths(t *testing.T) {
	c := newAPI(t)
	ctx := context.Background()

	rec, err := c.UpdateField(ctx, 2, types.FieldShift, types.ShiftDay)
	require.NoError(t, err)
	require.Equal(t, types.ShiftDay, rec.Shift)

	hist, err := c.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, types.ShiftNight, hist[0].OldValue)

	res, err := c.BulkUpdate(ctx, []types.BulkUpdateItem{
		{ID: 1, Field: "SHIFT", Value: types.ShiftNight},
		{ID: 1, Field: "STOCK_ID", Value: "X"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Successful)
	require.Equal(t, 1, res.Failed)
}

func TestClient_DomainErrors(t *testing.T) {
	c := newAPI(t)
	ctx := context.Background()

	_, err := c.Get(ctx, 404)
	require.ErrorIs(t, err, types.ErrNotFound)

	_, err = c.UpdateField(ctx, 1, types.Field("DATE"), "2024-01-01")
	require.ErrorIs(t, err, types.ErrInvalidField)

	_, err = c.UpdateField(ctx, 1, types.FieldShift, "SWING")
	require.ErrorIs(t, err, types.ErrInvalidValue)

	_, err = c.Search(ctx, types.SearchParams{Filters: types.Filters{Status: "LOST"}})
	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "oneof", ve.Fields["status"])
	require.NotErrorIs(t, err, types.ErrStoreUnavailable)
}

func TestClient_ServerErrorIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"internal_error","message":"unexpected server error"}`))
	}))
	defer ts.Close()

	_, err := client.New(ts.URL, time.Second).Get(context.Background(), 1)
	require.ErrorIs(t, err, types.ErrStoreUnavailable)
}

func TestClient_NonJSONGatewayErrorIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := client.New(ts.URL, time.Second).Statuses(context.Background())
	require.ErrorIs(t, err, types.ErrStoreUnavailable)
}

func TestClient_TimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	_, err := client.New(ts.URL, 50*time.Millisecond).Health(context.Background())
	require.ErrorIs(t, err, types.ErrStoreUnavailable)
}

func TestClient_UnreachableIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := client.New(url, time.Second).Contractors(context.Background())
	require.ErrorIs(t, err, types.ErrStoreUnavailable)
}

func TestClient_RequestIDsCarrySession(t *testing.T) {
	var seen []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("X-Request-ID"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":["BUILDING"]}`))
	}))
	defer ts.Close()

	c := client.New(ts.URL, time.Second)
	for i := 0; i < 2; i++ {
		_, err := c.Statuses(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, []string{c.Session() + "-1", c.Session() + "-2"}, seen)
}
