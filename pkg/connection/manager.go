package connection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Manager owns the shared Redis client and the backend health state.
type Manager struct {
	profile Profile
	options *redis.Options
	factory func(*redis.Options) *redis.Client
	logger  zerolog.Logger

	client atomic.Pointer[redis.Client]
	mu     sync.Mutex

	breaker *breaker

	stateGauge  prometheus.Gauge
	transitions *prometheus.CounterVec
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClientFactory replaces redis.NewClient (for testing).
func WithClientFactory(factory func(*redis.Options) *redis.Client) Option {
	return func(m *Manager) {
		if factory != nil {
			m.factory = factory
		}
	}
}

// WithClock replaces time.Now for the health state (for testing).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.breaker.now = now }
}

// WithRegisterer exports the backend state gauge and transition counter.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Manager) {
		factory := promauto.With(reg)
		m.stateGauge = factory.NewGauge(prometheus.GaugeOpts{
			Name: "tscache_backend_state",
			Help: "Backend state (0=uninitialized, 1=connected, 2=degraded, 3=probing)",
		})
		m.transitions = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tscache_backend_transitions_total",
			Help: "Total number of backend state transitions by target state",
		}, []string{"to"})
	}
}

// New validates the profile and returns a manager. No connection is made
// until Client is first called. Invalid settings return a
// *ConfigurationError.
func New(profile Profile, opts ...Option) (*Manager, error) {
	options, err := profile.validate()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		profile: profile,
		options: options,
		factory: redis.NewClient,
		logger:  log.With().Str("component", "tscache-connection").Logger(),
		breaker: newBreaker(profile.Recovery, time.Now),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.breaker.onChange = m.stateChanged

	m.logger.Info().
		Str("host", options.Addr).
		Dur("timeout", profile.Timeout).
		Int("retry_attempts", profile.RetryAttempts).
		Bool("recovery", profile.Recovery.Enabled).
		Msg("Redis connection configured")

	return m, nil
}

// Profile returns the validated connection profile.
func (m *Manager) Profile() Profile {
	return m.profile
}

// Client returns the shared client, constructing it on first use. Only one
// caller constructs it even under concurrent first access; later calls are
// a single atomic load.
func (m *Manager) Client() *redis.Client {
	if c := m.client.Load(); c != nil {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if c := m.client.Load(); c != nil {
		return c
	}

	m.logger.Info().Str("host", m.options.Addr).Msg("Starting Redis connection")
	c := m.factory(m.options)
	m.client.Store(c)
	m.breaker.connected()
	return c
}

// IsActive reports whether writes should be attempted.
func (m *Manager) IsActive() bool {
	return m.breaker.allow()
}

// State returns the current backend state.
func (m *Manager) State() State {
	return m.breaker.current()
}

// ReportFailure records a failed backend operation. Connectivity errors
// degrade the backend and return true; other errors are ignored.
func (m *Manager) ReportFailure(err error) bool {
	if !IsConnectivityError(err) {
		return false
	}
	m.breaker.recordFailure()
	return true
}

// ReportSuccess records a successful write.
func (m *Manager) ReportSuccess() {
	m.breaker.recordSuccess()
}

// Ping checks that Redis answers without touching the backend state.
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.Client().Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Probe pings Redis. Success restores a degraded backend when recovery is
// enabled; a connectivity failure degrades it.
func (m *Manager) Probe(ctx context.Context) error {
	if err := m.Client().Ping(ctx).Err(); err != nil {
		m.ReportFailure(err)
		return fmt.Errorf("redis ping: %w", err)
	}
	if m.breaker.restore() {
		m.logger.Info().Msg("Redis reachable again, writes re-enabled")
	}
	return nil
}

// Run probes Redis every PingConnectionInterval while the backend is not
// connected. It returns when ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.profile.PingConnectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state := m.State()
			if state != StateDegraded && state != StateProbing {
				continue
			}
			if err := m.Probe(ctx); err != nil {
				m.logger.Debug().Err(err).Str("state", state.String()).Msg("Redis probe failed")
			}
		}
	}
}

// Close closes the client if it was constructed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.client.Load()
	if c == nil {
		return nil
	}
	if err := c.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

func (m *Manager) stateChanged(from, to State) {
	if m.stateGauge != nil {
		m.stateGauge.Set(float64(to))
		m.transitions.WithLabelValues(to.String()).Inc()
	}

	event := m.logger.Info()
	if to == StateDegraded {
		event = m.logger.Error()
	}
	event.Str("from", from.String()).Str("to", to.String()).Msg("Redis backend state changed")
}
