package connection

import (
	"sync"
	"time"
)

// State is the health of the backing store as seen by the cache.
type State int

const (
	// StateUninitialized means no client has been constructed yet
	StateUninitialized State = iota
	// StateConnected means writes are attempted (breaker closed)
	StateConnected
	// StateDegraded means writes are skipped (breaker open)
	StateDegraded
	// StateProbing means trial writes are let through to test recovery (breaker half-open)
	StateProbing
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// breaker tracks backend health. Any single connectivity failure opens it;
// with recovery enabled it half-opens after openTimeout and closes after
// successThreshold successes.
type breaker struct {
	recovery Recovery
	now      func() time.Time

	mu                  sync.Mutex
	state               State
	successCount        int
	lastStateChangeTime time.Time
	onChange            func(from, to State)
}

func newBreaker(recovery Recovery, now func() time.Time) *breaker {
	if now == nil {
		now = time.Now
	}
	return &breaker{
		recovery:            recovery,
		now:                 now,
		state:               StateUninitialized,
		lastStateChangeTime: now(),
	}
}

// allow reports whether a write may be attempted, moving an open breaker to
// half-open once the open timeout has elapsed.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateDegraded {
		return true
	}
	if !b.recovery.Enabled {
		return false
	}
	if b.now().Sub(b.lastStateChangeTime) < b.recovery.OpenTimeout {
		return false
	}
	b.transition(StateProbing)
	return true
}

// connected marks the first successful client construction.
func (b *breaker) connected() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateUninitialized {
		b.transition(StateConnected)
	}
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateDegraded {
		b.transition(StateDegraded)
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateProbing {
		return
	}
	b.successCount++
	if b.successCount >= b.recovery.SuccessThreshold {
		b.transition(StateConnected)
	}
}

// restore closes the breaker after a successful probe.
func (b *breaker) restore() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.recovery.Enabled {
		return false
	}
	if b.state == StateDegraded || b.state == StateProbing {
		b.transition(StateConnected)
		return true
	}
	return false
}

func (b *breaker) current() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition must be called with mu held.
func (b *breaker) transition(to State) {
	from := b.state
	b.state = to
	b.successCount = 0
	b.lastStateChangeTime = b.now()
	if b.onChange != nil {
		b.onChange(from, to)
	}
}
