// Package testutil provides test fixtures for the time-series cache.
package testutil

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/tscache/pkg/connection"
)

// MockRedis is an in-memory Redis with a connection manager pointed at it.
type MockRedis struct {
	*miniredis.Miniredis

	Manager *connection.Manager
}

// NewMockRedis starts miniredis and a manager with fast, retry-free
// timeouts. Both are closed when the test ends.
func NewMockRedis(t testing.TB) *MockRedis {
	t.Helper()

	mr := miniredis.RunT(t)
	m, err := connection.New(Profile(mr.Addr()), connection.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("create connection manager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })

	return &MockRedis{Miniredis: mr, Manager: m}
}

// Profile returns a connection profile for addr suited to tests: short
// timeouts, no retries, recovery only through an explicit probe.
func Profile(addr string) connection.Profile {
	p := connection.DefaultProfile()
	p.Hosts = []string{"redis://" + addr}
	p.ConnectTimeout = 200 * time.Millisecond
	p.Timeout = 200 * time.Millisecond
	p.RetryAttempts = 0
	p.PingConnectionInterval = 20 * time.Millisecond
	p.Recovery.OpenTimeout = time.Hour
	return p
}

// Break closes the in-memory server so every following command fails with
// a connectivity error.
func (m *MockRedis) Break() {
	m.Miniredis.Close()
}

// Recorder counts cache instrumentation events by label.
type Recorder struct {
	mu         sync.Mutex
	calls      map[string]int
	exceptions map[string]int
	writes     map[string]int
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		calls:      make(map[string]int),
		exceptions: make(map[string]int),
		writes:     make(map[string]int),
	}
}

func (r *Recorder) Call(operation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[operation]++
}

func (r *Recorder) Exception(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exceptions[reason]++
}

func (r *Recorder) Write(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes[outcome]++
}

// Calls returns the call count for operation.
func (r *Recorder) Calls(operation string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[operation]
}

// Exceptions returns the exception count for reason.
func (r *Recorder) Exceptions(reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exceptions[reason]
}

// Writes returns the write count for outcome.
func (r *Recorder) Writes(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes[outcome]
}

// TotalWrites returns the write count over all outcomes.
func (r *Recorder) TotalWrites() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.writes {
		total += n
	}
	return total
}

// String summarizes all counters, for failure messages.
func (r *Recorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("calls=%s exceptions=%s writes=%s",
		formatCounts(r.calls), formatCounts(r.exceptions), formatCounts(r.writes))
}

func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%d", k, m[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
