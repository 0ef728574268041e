package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/curriculumgen/internal/llm"
)

// StatusSource reports provider breaker state. *llm.Router satisfies it.
type StatusSource interface {
	BreakerStatus() []llm.BreakerStatus
}

// GuardSource reports transport guard state per provider.
type GuardSource interface {
	GuardStates() map[string]string
}

// Updater periodically copies breaker and guard state into gauges, so every
// provider is exported even before its first trip or state change.
type Updater struct {
	breakers StatusSource
	guards   GuardSource
	interval time.Duration
	stopCh   chan struct{}
}

// NewUpdater creates a new metrics updater. guards may be nil.
func NewUpdater(breakers StatusSource, guards GuardSource, interval time.Duration) *Updater {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Updater{
		breakers: breakers,
		guards:   guards,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the update loop until ctx is cancelled or Stop is called.
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	// Update immediately on start
	u.update()

	for {
		select {
		case <-ticker.C:
			u.update()
		case <-u.stopCh:
			log.Info().Msg("Metrics updater stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("Metrics updater context cancelled")
			return
		}
	}
}

// Stop stops the metrics updater
func (u *Updater) Stop() {
	close(u.stopCh)
}

func (u *Updater) update() {
	for _, status := range u.breakers.BreakerStatus() {
		UpdateCircuitBreaker(status.Provider, status.State == llm.CircuitOpen)
	}

	if u.guards == nil {
		return
	}
	for provider, state := range u.guards.GuardStates() {
		UpdateGuardState(provider, state)
	}
}
