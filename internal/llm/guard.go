package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// Transport guard defaults. These are longer than typical service settings
// because generation calls are slow to recover.
const (
	GuardMinRequests     = 3                // Minimum requests before tripping
	GuardFailureRatio    = 0.6              // Failure ratio threshold (60%)
	GuardOpenTimeout     = 60 * time.Second // How long the guard stays open
	GuardHalfOpenMaxReqs = 2                // Max requests in half-open state
	GuardCountInterval   = 10 * time.Second // Window for counting failures
)

// GuardSettings configures a GuardedProvider.
type GuardSettings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration

	// OnStateChange is called with the provider name and the gobreaker state
	// names ("closed", "open", "half-open").
	OnStateChange func(provider, from, to string)
}

// DefaultGuardSettings returns the default transport guard settings.
func DefaultGuardSettings() GuardSettings {
	return GuardSettings{
		MinRequests:     GuardMinRequests,
		FailureRatio:    GuardFailureRatio,
		OpenTimeout:     GuardOpenTimeout,
		HalfOpenMaxReqs: GuardHalfOpenMaxReqs,
		CountInterval:   GuardCountInterval,
	}
}

// GuardedProvider wraps a Provider with a timed gobreaker that only counts
// transport failures. While it is open, calls fail fast as KindUnavailable
// without touching the network.
//
// This is independent of BreakerState: the guard recovers on its own after
// OpenTimeout, while a quota trip in BreakerState is permanent. Quota and
// output errors never move the guard.
type GuardedProvider struct {
	next Provider
	cb   *gobreaker.CircuitBreaker
}

// NewGuardedProvider wraps next. Zero-valued settings fall back to defaults.
func NewGuardedProvider(next Provider, settings GuardSettings) *GuardedProvider {
	defaults := DefaultGuardSettings()
	if settings.MinRequests == 0 {
		settings.MinRequests = defaults.MinRequests
	}
	if settings.FailureRatio <= 0 {
		settings.FailureRatio = defaults.FailureRatio
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = defaults.OpenTimeout
	}
	if settings.HalfOpenMaxReqs == 0 {
		settings.HalfOpenMaxReqs = defaults.HalfOpenMaxReqs
	}
	if settings.CountInterval <= 0 {
		settings.CountInterval = defaults.CountInterval
	}

	g := &GuardedProvider{next: next}
	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: settings.HalfOpenMaxReqs,
		Interval:    settings.CountInterval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= settings.MinRequests && failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if settings.OnStateChange != nil {
				settings.OnStateChange(name, from.String(), to.String())
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsUnavailable(err)
		},
	})
	return g
}

func (g *GuardedProvider) Name() string {
	return g.next.Name()
}

// State returns the guard state name.
func (g *GuardedProvider) State() string {
	return g.cb.State().String()
}

func (g *GuardedProvider) Call(ctx context.Context, prompt string) (string, error) {
	out, err := g.cb.Execute(func() (interface{}, error) {
		return g.next.Call(ctx, prompt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", NewProviderError(g.Name(), KindUnavailable, err)
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
