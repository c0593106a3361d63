package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"housing_search/internal/config"
	"housing_search/internal/domain"
	"housing_search/internal/lib/logger/handlers/slogdiscard"
	"housing_search/internal/services/embedding"
	"housing_search/internal/services/listing"
	"housing_search/internal/services/maintenance"
	"housing_search/internal/services/search"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearch struct {
	got  domain.SearchParams
	resp *domain.SearchResponse
	err  error
}

func (f *fakeSearch) Search(_ context.Context, params domain.SearchParams) (*domain.SearchResponse, error) {
	f.got = params
	return f.resp, f.err
}

type fakeListingService struct {
	listings   map[int64]domain.Listing
	filter     domain.ListingFilter
	reindexed  []int64
	reindexErr error
}

func (f *fakeListingService) GetListing(_ context.Context, id int64) (domain.Listing, error) {
	l, ok := f.listings[id]
	if !ok {
		return domain.Listing{}, fmt.Errorf("listing.Service.GetListing: %w", listing.ErrListingNotFound)
	}
	return l, nil
}

func (f *fakeListingService) ListListings(_ context.Context, filter domain.ListingFilter) (*domain.PaginatedResult[domain.Listing], error) {
	f.filter = filter
	items := lo.Values(f.listings)
	return &domain.PaginatedResult[domain.Listing]{Items: items, TotalCount: int32(len(items))}, nil
}

func (f *fakeListingService) ReindexListing(_ context.Context, id int64) error {
	if f.reindexErr != nil {
		return f.reindexErr
	}
	if _, ok := f.listings[id]; !ok {
		return listing.ErrListingNotFound
	}
	f.reindexed = append(f.reindexed, id)
	return nil
}

type fakeBackfiller struct {
	err    error
	report *maintenance.Report
}

func (f *fakeBackfiller) StartBackfill() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "run-1", nil
}

func (f *fakeBackfiller) LastReport() (maintenance.Report, bool) {
	if f.report == nil {
		return maintenance.Report{}, false
	}
	return *f.report, true
}

type testEnv struct {
	server     *httptest.Server
	search     *fakeSearch
	listings   *fakeListingService
	backfiller *fakeBackfiller
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.HTTP.Timeout = 5 * time.Second
	cfg.HTTP.AllowedOrigins = []string{"*"}
	cfg.HTTP.PublicURL = "https://homes.example.com"
	cfg.Search = config.SearchConfig{BM25PoolSize: 200, VectorPoolSize: 50, FusionK: 60}

	env := &testEnv{
		search: &fakeSearch{resp: &domain.SearchResponse{}},
		listings: &fakeListingService{listings: map[int64]domain.Listing{
			1: {ID: 1, Title: "Oakland apartment near campus", Price: lo.ToPtr(1400.0), Active: true},
		}},
		backfiller: &fakeBackfiller{},
	}

	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics\n"))
	})

	router := NewRouter(slogdiscard.NewDiscardLogger(), cfg, env.search, env.listings, env.backfiller, metricsHandler)
	env.server = httptest.NewServer(router)
	t.Cleanup(env.server.Close)

	return env
}

func (e *testEnv) do(t *testing.T, method, path string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, e.server.URL+path, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func TestSearch_ParsesParams(t *testing.T) {
	env := newTestEnv(t)
	env.search.resp = &domain.SearchResponse{
		Results: []domain.SearchResult{{ListingID: 1, Title: "Oakland apartment near campus", Scores: domain.SignalScores{Hybrid: 0.03}}},
		TookMs:  4,
	}

	resp, body := env.do(t, http.MethodGet, "/api/v1/search?q=Oakland+apartment&limit=2&fusion_k=30&target_price=1500&price_weight=0.5")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Oakland apartment", env.search.got.Query)
	assert.Equal(t, 2, env.search.got.Limit)
	assert.Equal(t, 30, env.search.got.FusionK)
	assert.Equal(t, 200, env.search.got.BM25PoolSize)
	require.NotNil(t, env.search.got.TargetPrice)
	assert.Equal(t, 1500.0, *env.search.got.TargetPrice)
	require.NotNil(t, env.search.got.PriceWeight)
	assert.Equal(t, 0.5, *env.search.got.PriceWeight)

	assert.Equal(t, float64(1), body["count"])
	results := body["results"].([]any)
	first := results[0].(map[string]any)
	assert.Equal(t, float64(1), first["listing_id"])
	assert.Contains(t, first, "scores")
}

func TestSearch_NoPriceParamsLeaveNil(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/search?q=loft")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, env.search.got.TargetPrice)
	assert.Nil(t, env.search.got.PriceWeight)
	assert.Equal(t, []any{}, body["results"])
}

func TestSearch_BadParams(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/api/v1/search?q=loft&limit=ten",
		"/api/v1/search?q=loft&target_price=NaN",
		"/api/v1/search?q=loft&price_weight=abc",
	} {
		resp, body := env.do(t, http.MethodGet, path)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		assert.NotEmpty(t, body["error"], path)
	}
}

func TestSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid params", fmt.Errorf("op: %w", search.ErrInvalidParams), http.StatusBadRequest},
		{"model unavailable", fmt.Errorf("op: %w", embedding.ErrModelUnavailable), http.StatusServiceUnavailable},
		{"internal", fmt.Errorf("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.search.err = tt.err
			env.search.resp = nil

			resp, body := env.do(t, http.MethodGet, "/api/v1/search?q=loft")
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestGetListing(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/listings/1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Oakland apartment near campus", body["title"])
	assert.Equal(t, 1400.0, body["price"])

	resp, _ = env.do(t, http.MethodGet, "/api/v1/listings/99")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/listings/abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetListingJSONLD(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/listings/1/jsonld")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/ld+json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "https://schema.org", body["@context"])
	assert.Equal(t, "https://homes.example.com/api/v1/listings/1", body["url"])

	offers, ok := body["offers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1400.0, offers["price"])

	resp, _ = env.do(t, http.MethodGet, "/api/v1/listings/99/jsonld")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListListings_Filters(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/listings?city=Pittsburgh&min_price=1000&active=true&page_size=5&order=asc")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	f := env.listings.filter
	require.NotNil(t, f.City)
	assert.Equal(t, "Pittsburgh", *f.City)
	require.NotNil(t, f.MinPrice)
	assert.Equal(t, 1000.0, *f.MinPrice)
	assert.Nil(t, f.MaxPrice)
	require.NotNil(t, f.Active)
	assert.True(t, *f.Active)
	require.NotNil(t, f.Pagination)
	assert.Equal(t, int32(5), f.Pagination.PageSize)
	assert.Equal(t, domain.OrderAsc, f.Pagination.OrderDirection)

	assert.Equal(t, float64(1), body["total_count"])

	resp, _ = env.do(t, http.MethodGet, "/api/v1/listings?active=maybe")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReindexListing(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/listings/1/reindex")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []int64{1}, env.listings.reindexed)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/listings/2/reindex")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	env.listings.reindexErr = fmt.Errorf("job: %w", embedding.ErrModelUnavailable)
	resp, _ = env.do(t, http.MethodPost, "/api/v1/listings/1/reindex")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestBackfill(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/api/v1/admin/embeddings/backfill")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/v1/admin/embeddings/backfill")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "run-1", body["run_id"])

	env.backfiller.err = maintenance.ErrRunInProgress
	resp, _ = env.do(t, http.MethodPost, "/api/v1/admin/embeddings/backfill")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	env.backfiller.report = &maintenance.Report{RunID: "run-1", Embedded: 3}
	resp, body = env.do(t, http.MethodGet, "/api/v1/admin/embeddings/backfill")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["embedded"])
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/api/v1/search", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
