// Package server exposes the time-series cache over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/tscache/pkg/batch"
	"github.com/Sternrassler/tscache/pkg/config"
	"github.com/Sternrassler/tscache/pkg/metrics"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 8 << 20

// Backend reports the health of the backing store.
// *connection.Manager implements it. Ping must not change whether writes
// are enabled.
type Backend interface {
	IsActive() bool
	Ping(ctx context.Context) error
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	cache    batch.Cache
	runner   *batch.Runner
	backend  Backend
	registry *prometheus.Registry
	logger   zerolog.Logger

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates a server. reg receives the HTTP metrics and is served on
// /metrics; nil disables both.
func New(c batch.Cache, runner *batch.Runner, backend Backend, reg *prometheus.Registry) *Server {
	s := &Server{
		cache:    c,
		runner:   runner,
		backend:  backend,
		registry: reg,
		logger:   log.With().Str("component", "tscache-server").Logger(),
	}

	if reg != nil {
		factory := promauto.With(reg)
		s.requests = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tscache_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"})
		s.duration = factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tscache_http_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"})
	}

	return s
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	if s.registry != nil {
		r.Handle("/metrics", metrics.Handler(s.registry)).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/series/query", s.handleQuerySeries).Methods(http.MethodPost)
	v1.HandleFunc("/series/{metricId:-?[0-9]+}/{dimensionKeyHash}", s.handleGetSeries).Methods(http.MethodGet)
	v1.HandleFunc("/points", s.handleInsertPoints).Methods(http.MethodPost)

	r.Use(s.loggingMiddleware)
	return r
}

// HTTPServer wraps the router with the configured timeouts.
func (s *Server) HTTPServer(cfg config.Server) *http.Server {
	return &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
}

// Shutdown stops srv, waiting at most timeout for in-flight requests.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return srv.Shutdown(ctx)
}
