package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation labels for the call counter.
const (
	OpFetch  = "fetch"
	OpInsert = "insert"
)

// Exception reasons. A miss is counted here too.
const (
	ReasonMiss        = "miss"
	ReasonReadError   = "read_error"
	ReasonWriteError  = "write_error"
	ReasonDecodeError = "decode_error"
)

// Write outcomes.
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
)

// Recorder receives cache instrumentation events. Implementations must be
// safe for concurrent use and must not block.
type Recorder interface {
	Call(operation string)
	Exception(reason string)
	Write(outcome string)
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) Call(string)      {}
func (NopRecorder) Exception(string) {}
func (NopRecorder) Write(string)     {}

// PrometheusRecorder exports cache events as Prometheus counters.
type PrometheusRecorder struct {
	calls      *prometheus.CounterVec
	exceptions *prometheus.CounterVec
	writes     *prometheus.CounterVec
}

// NewPrometheusRecorder registers the cache counters with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		// calls counts every fetch and insert that reached the store
		calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tscache_redis_calls_total",
				Help: "Total number of cache calls against Redis by operation",
			},
			[]string{"operation"}, // "fetch", "insert"
		),

		exceptions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tscache_redis_exceptions_total",
				Help: "Total number of cache misses and backend errors by reason",
			},
			[]string{"reason"}, // "miss", "read_error", "write_error", "decode_error"
		),

		writes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tscache_redis_writes_total",
				Help: "Total number of insert attempts past the health gate by outcome",
			},
			[]string{"outcome"}, // "created", "updated", "unchanged", "failed"
		),
	}
}

func (r *PrometheusRecorder) Call(operation string) {
	r.calls.WithLabelValues(operation).Inc()
}

func (r *PrometheusRecorder) Exception(reason string) {
	r.exceptions.WithLabelValues(reason).Inc()
}

func (r *PrometheusRecorder) Write(outcome string) {
	r.writes.WithLabelValues(outcome).Inc()
}
