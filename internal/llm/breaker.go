package llm

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrBreakerOpen is recorded for providers skipped because their breaker is open.
var ErrBreakerOpen = errors.New("circuit breaker open")

// CircuitState is the state of one provider's breaker.
type CircuitState string

const (
	CircuitClosed CircuitState = "CLOSED" // Calls allowed
	CircuitOpen   CircuitState = "OPEN"   // Quota exhausted; skipped until restart
)

// BreakerStatus is a point-in-time view of one provider's breaker.
type BreakerStatus struct {
	Provider  string       `json:"provider"`
	State     CircuitState `json:"state"`
	TrippedAt time.Time    `json:"tripped_at,omitzero"`
}

// BreakerState latches providers that reported quota exhaustion. A tripped
// provider stays open for the lifetime of the value; there is no half-open
// recovery, so restarting the process is the only reset.
//
// BreakerState is safe for concurrent use. The zero value is ready to use.
type BreakerState struct {
	mu      sync.RWMutex
	tripped map[string]time.Time
}

// NewBreakerState returns an empty BreakerState with every provider closed.
func NewBreakerState() *BreakerState {
	return &BreakerState{tripped: make(map[string]time.Time)}
}

// IsOpen reports whether provider has been tripped.
func (b *BreakerState) IsOpen(provider string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, open := b.tripped[provider]
	return open
}

// Trip opens the breaker for provider. It is idempotent and returns true only
// for the call that changed the state.
func (b *BreakerState) Trip(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, open := b.tripped[provider]; open {
		return false
	}
	if b.tripped == nil {
		b.tripped = make(map[string]time.Time)
	}
	b.tripped[provider] = time.Now()
	return true
}

// Status returns the breaker status of each named provider, in the given order.
func (b *BreakerState) Status(providers ...string) []BreakerStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	statuses := make([]BreakerStatus, len(providers))
	for i, name := range providers {
		statuses[i] = b.statusLocked(name)
	}
	return statuses
}

// Snapshot returns the status of every provider that has been tripped.
func (b *BreakerState) Snapshot() map[string]BreakerStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snapshot := make(map[string]BreakerStatus, len(b.tripped))
	for name := range b.tripped {
		snapshot[name] = b.statusLocked(name)
	}
	return snapshot
}

// Tripped returns the names of open providers, sorted.
func (b *BreakerState) Tripped() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.tripped))
	for name := range b.tripped {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *BreakerState) statusLocked(provider string) BreakerStatus {
	at, open := b.tripped[provider]
	if !open {
		return BreakerStatus{Provider: provider, State: CircuitClosed}
	}
	return BreakerStatus{Provider: provider, State: CircuitOpen, TrippedAt: at}
}
