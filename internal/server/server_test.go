package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/tscache/internal/testutil"
	"github.com/Sternrassler/tscache/pkg/batch"
	"github.com/Sternrassler/tscache/pkg/cache"
	"github.com/Sternrassler/tscache/pkg/config"
)

type fixture struct {
	redis   *testutil.MockRedis
	store   *cache.Store
	handler http.Handler
	reg     *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := testutil.NewMockRedis(t)
	store := cache.NewStore(mr.Manager, cache.FixedTTL(time.Hour), cache.WithLogger(zerolog.Nop()))
	reg := prometheus.NewRegistry()

	s := New(store, batch.NewRunner(store, batch.DefaultConfig()), mr.Manager, reg)
	s.logger = zerolog.Nop()

	return &fixture{redis: mr, store: store, handler: s.Router(), reg: reg}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestReadyEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	f.redis.Break()
	w = f.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unreachable")

	// A failed readiness check leaves writes enabled.
	assert.True(t, f.redis.Manager.IsActive())

	f.redis.Manager.ReportFailure(redis.ErrClosed)
	w = f.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}

func TestInsertAndGetSeries(t *testing.T) {
	f := newFixture(t)

	body := `[
		{"metricUrn":"thirdeye:metric:2","timestamp":1000,"metricId":2,"dataValue":"30.0","dimensionKeyHash":"3158902058"},
		{"metricUrn":"thirdeye:metric:2","timestamp":2000,"metricId":2,"dataValue":"893.0","dimensionKeyHash":"3158902058"},
		{"metricUrn":"thirdeye:metric:2","timestamp":3000,"metricId":2,"dataValue":"oops","dimensionKeyHash":"3158902058"}
	]`
	w := f.do(t, http.MethodPost, "/v1/points", body)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var summary batch.InsertSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Submitted)
	assert.Equal(t, 1, summary.Rejected)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, 2, summary.Errors[0].Index)

	w = f.do(t, http.MethodGet, "/v1/series/2/3158902058?start=1000&end=3000&granularity=1000&metricUrn=thirdeye:metric:2", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp cache.CacheResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Points, 2)
	assert.Equal(t, "30.0", resp.Points[0].DataValue)
	assert.Equal(t, "893.0", resp.Points[1].DataValue)
	assert.Equal(t, "thirdeye:metric:2", resp.Points[0].MetricURN)
}

func TestGetSeries_EmptyPointsIsArray(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/series/2/abc?start=1000&end=3000&granularity=1000", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"points":[]`)
}

func TestGetSeries_BadParameters(t *testing.T) {
	f := newFixture(t)

	targets := []string{
		"/v1/series/2/abc?start=1000&end=3000",
		"/v1/series/2/abc?start=x&end=3000&granularity=1000",
		"/v1/series/99999999999999999999/abc?start=1000&end=3000&granularity=1000",
		"/v1/series/2/abc?start=3000&end=1000&granularity=1000",
		"/v1/series/2/abc?start=1000&end=3000&granularity=0",
	}
	for _, target := range targets {
		w := f.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, target)

		var e errorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e), target)
		assert.Equal(t, http.StatusBadRequest, e.Code)
		assert.NotEmpty(t, e.Error)
	}
}

func TestQuerySeries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, p := range []cache.TimeSeriesPoint{
		{MetricURN: "a", MetricID: 1, Timestamp: 1000, DataValue: "1"},
		{MetricURN: "b", MetricID: 2, Timestamp: 1000, DataValue: "2"},
	} {
		require.NoError(t, f.store.Insert(ctx, p))
	}

	reqs := []cache.CacheRequest{
		cache.NewCacheRequest(2, "b", 1000, 2000, 1000),
		cache.NewCacheRequest(3, "c", 1000, 2000, 1000),
		cache.NewCacheRequest(1, "a", 1000, 2000, 1000),
	}
	body, err := json.Marshal(reqs)
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/v1/series/query", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out []cache.CacheResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 3)
	assert.Equal(t, "2.0", out[0].Points[0].DataValue)
	assert.Empty(t, out[1].Points)
	assert.Equal(t, "1.0", out[2].Points[0].DataValue)
}

func TestQuerySeries_InvalidRequest(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/series/query", `[{"metricId":1,"startTimeInclusive":5,"endTimeExclusive":1,"groupByGranularityMillis":1}]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "request 0")
}

func TestInvalidBodies(t *testing.T) {
	f := newFixture(t)

	for _, target := range []string{"/v1/points", "/v1/series/query"} {
		for _, body := range []string{"{", `{"metricId":1}`, `[{"unknownField":true}]`} {
			w := f.do(t, http.MethodPost, target, body)
			assert.Equal(t, http.StatusBadRequest, w.Code, "%s %s", target, body)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/points", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodGet, "/health", "")
	w := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `tscache_http_requests_total{code="200",route="/health"} 1`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(cache.ErrInvalidPoint))
	assert.Equal(t, http.StatusBadRequest, statusFor(ErrInvalidRequestBody))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestHTTPServerAndShutdown(t *testing.T) {
	f := newFixture(t)
	s := New(f.store, batch.NewRunner(f.store, batch.DefaultConfig()), f.redis.Manager, nil)

	cfg := config.Default().Server
	cfg.ListenAddr = "127.0.0.1:0"
	srv := s.HTTPServer(cfg)
	assert.Equal(t, cfg.ReadTimeout, srv.ReadTimeout)
	assert.Equal(t, cfg.WriteTimeout, srv.WriteTimeout)

	ts := httptest.NewUnstartedServer(srv.Handler)
	ts.Config = srv
	ts.Start()

	resp, err := http.Post(ts.URL+"/v1/points", "application/json", bytes.NewBufferString(`[]`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Without a registry there is no metrics route.
	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, Shutdown(srv, time.Second))
	ts.Listener.Close()
}
