// Package metrics builds the Prometheus registry of the tscache proxy.
// Metrics are defined in the packages that emit them and registered here
// through the registerer passed to each constructor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the exposition format for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - tscache_redis_calls_total{operation} (Counter): Fetch and insert calls
//   - tscache_redis_exceptions_total{reason} (Counter): miss, read_error, write_error, decode_error
//   - tscache_redis_writes_total{outcome} (Counter): created, updated, unchanged, failed
//
// Backend Metrics (pkg/connection):
//   - tscache_backend_state (Gauge): 0=uninitialized, 1=connected, 2=degraded, 3=probing
//   - tscache_backend_transitions_total{to} (Counter): State transitions by target state
//
// HTTP Metrics (internal/server):
//   - tscache_http_requests_total{route, code} (Counter): Requests by route and status
//   - tscache_http_request_duration_seconds{route} (Histogram): Request latency by route
//
// Example Prometheus Queries:
//
//   # Miss ratio of fetches
//   sum(rate(tscache_redis_exceptions_total{reason="miss"}[5m])) /
//   sum(rate(tscache_redis_calls_total{operation="fetch"}[5m]))
//
//   # Writes disabled
//   tscache_backend_state == 2
//
//   # Share of inserts that changed nothing
//   rate(tscache_redis_writes_total{outcome="unchanged"}[5m]) /
//   sum(rate(tscache_redis_writes_total[5m]))
