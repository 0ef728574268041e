package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Router sends a prompt to providers in priority order until one returns a
// usable JSON object.
//
// Within a Generate call providers are tried strictly one after another, and
// the first success ends the call. Concurrent Generate calls share nothing but
// the BreakerState.
type Router struct {
	providers []Provider
	names     []string
	breaker   *BreakerState
	repairer  Repairer
	observer  Observer
	logger    zerolog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithBreaker shares an existing BreakerState with the Router.
func WithBreaker(b *BreakerState) RouterOption {
	return func(r *Router) {
		if b != nil {
			r.breaker = b
		}
	}
}

// WithRepairer sets the corrective retry policy.
func WithRepairer(rep Repairer) RouterOption {
	return func(r *Router) {
		r.repairer = rep
	}
}

// WithObserver registers an event sink.
func WithObserver(o Observer) RouterOption {
	return func(r *Router) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithLogger sets the logger used for attempt and breaker logs.
func WithLogger(l zerolog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = l
	}
}

// NewRouter creates a Router over providers, highest priority first.
func NewRouter(providers []Provider, opts ...RouterOption) (*Router, error) {
	if len(providers) == 0 {
		return nil, errors.New("router requires at least one provider")
	}

	names := make([]string, len(providers))
	seen := make(map[string]struct{}, len(providers))
	for i, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("provider %d is nil", i)
		}
		name := p.Name()
		if name == "" {
			return nil, fmt.Errorf("provider %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate provider name %q", name)
		}
		seen[name] = struct{}{}
		names[i] = name
	}

	r := &Router{
		providers: providers,
		names:     names,
		breaker:   NewBreakerState(),
		repairer:  DefaultRepairer(),
		observer:  nopObserver{},
		logger:    log.Logger.With().Str("component", "llm-router").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Providers returns the provider names in priority order.
func (r *Router) Providers() []string {
	return append([]string(nil), r.names...)
}

// Breaker returns the breaker state shared by every Generate call.
func (r *Router) Breaker() *BreakerState {
	return r.breaker
}

// BreakerStatus returns each provider's breaker status in priority order.
func (r *Router) BreakerStatus() []BreakerStatus {
	return r.breaker.Status(r.names...)
}

// Generate composes system and payload into a prompt and returns the first
// provider result that parses as a JSON object.
//
// When every provider is skipped or fails, the error is *AllProvidersFailedError
// with one Attempt per provider. If ctx ends first, the context error is returned
// wrapped.
func (r *Router) Generate(ctx context.Context, system string, payload any) (*Result, error) {
	prompt, err := Prompt{System: system, Payload: payload}.Compose()
	if err != nil {
		return nil, err
	}
	return r.Complete(ctx, prompt)
}

// Complete runs an already composed prompt through the providers.
func (r *Router) Complete(ctx context.Context, prompt string) (*Result, error) {
	requestID, ok := RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
		ctx = WithRequestID(ctx, requestID)
	}
	logger := r.logger.With().Str("request_id", requestID).Logger()

	start := time.Now()
	attempts := make([]Attempt, 0, len(r.providers))

	for i, provider := range r.providers {
		name := r.names[i]

		if err := ctx.Err(); err != nil {
			return nil, r.interrupted(ctx, requestID, attempts, start, err)
		}

		if r.breaker.IsOpen(name) {
			logger.Warn().
				Str("provider", name).
				Msg("Circuit breaker open, skipping provider")

			attempt := Attempt{Provider: name, Outcome: OutcomeSkipped, Err: ErrBreakerOpen}
			attempts = append(attempts, attempt)
			r.observeAttempt(ctx, requestID, attempt)
			continue
		}

		logger.Debug().
			Str("provider", name).
			Int("attempt", i+1).
			Int("total_providers", len(r.providers)).
			Msg("Attempting generation")

		attemptStart := time.Now()
		result, err := r.attempt(ctx, requestID, provider, name, prompt, logger)
		duration := time.Since(attemptStart)

		if err == nil {
			attempt := Attempt{Provider: name, Outcome: OutcomeSuccess, Duration: duration}
			r.observeAttempt(ctx, requestID, attempt)

			logger.Info().
				Str("provider", name).
				Int("attempt", i+1).
				Bool("retried", result.Retried).
				Bool("truncated", result.Truncated).
				Dur("duration", duration).
				Msg("Generation succeeded")

			r.observer.Observe(ctx, Event{
				Type:      EventGenerate,
				RequestID: requestID,
				Provider:  name,
				Outcome:   OutcomeSuccess,
				Duration:  time.Since(start),
				Success:   true,
			})
			return result, nil
		}

		attempt := Attempt{Provider: name, Outcome: outcomeFor(err), Err: err, Duration: duration}
		attempts = append(attempts, attempt)
		r.observeAttempt(ctx, requestID, attempt)

		if IsQuotaExhausted(err) && r.breaker.Trip(name) {
			logger.Error().
				Err(err).
				Str("provider", name).
				Msg("Provider quota exhausted, circuit breaker opened")

			r.observer.Observe(ctx, Event{
				Type:      EventBreakerTripped,
				RequestID: requestID,
				Provider:  name,
				Err:       err,
			})
		}

		logger.Warn().
			Err(err).
			Str("provider", name).
			Str("outcome", string(attempt.Outcome)).
			Int("attempt", i+1).
			Dur("duration", duration).
			Msg("Generation failed, trying next provider")

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, r.interrupted(ctx, requestID, attempts, start, ctxErr)
		}
	}

	failure := &AllProvidersFailedError{Attempts: attempts}
	logger.Error().
		Int("providers", len(attempts)).
		Bool("all_unavailable", failure.AllUnavailable()).
		Bool("all_unusable_output", failure.AllUnusableOutput()).
		Dur("duration", time.Since(start)).
		Msg("All providers failed")

	r.observer.Observe(ctx, Event{
		Type:      EventGenerate,
		RequestID: requestID,
		Duration:  time.Since(start),
		Err:       failure,
	})
	return nil, failure
}

// attempt calls one provider and turns its text into a Result, spending the
// repair budget when the text holds JSON that does not parse.
func (r *Router) attempt(ctx context.Context, requestID string, provider Provider, name, prompt string, logger zerolog.Logger) (*Result, error) {
	text, err := provider.Call(ctx, prompt)
	if err != nil {
		return nil, asProviderError(name, err)
	}

	d, err := decode(text)
	if errors.Is(err, ErrNoJSONFound) {
		return nil, err
	}
	r.reportTruncation(ctx, requestID, name, d, logger)
	if err == nil {
		return d.result(name, false), nil
	}

	logger.Warn().
		Err(err).
		Str("provider", name).
		Int("max_attempts", r.repairer.MaxAttempts).
		Msg("Model output is not valid JSON, requesting repair")

	repairStart := time.Now()
	result, repairErr := r.repairer.Repair(ctx, provider, prompt, text, err)
	r.observer.Observe(ctx, Event{
		Type:      EventRepair,
		RequestID: requestID,
		Provider:  name,
		Duration:  time.Since(repairStart),
		Err:       repairErr,
		Success:   repairErr == nil,
	})
	if repairErr != nil {
		return nil, repairErr
	}

	// A parsed result is never incomplete, so Truncated here means closed.
	if result.Truncated {
		logger.Warn().
			Str("provider", name).
			Msg("Repaired output was truncated, closed open structures")
		r.observer.Observe(ctx, Event{
			Type:      EventTruncation,
			RequestID: requestID,
			Provider:  name,
			Closed:    true,
		})
	}
	return result, nil
}

func (r *Router) reportTruncation(ctx context.Context, requestID, name string, d decoded, logger zerolog.Logger) {
	if !d.closed && !d.incomplete {
		return
	}

	event := logger.Warn().
		Str("provider", name).
		Bool("closed", d.closed).
		Bool("incomplete", d.incomplete)
	if d.incomplete {
		event.Msg("Model output is still incomplete after closing open structures")
	} else {
		event.Msg("Model output was truncated, closed open structures")
	}

	r.observer.Observe(ctx, Event{
		Type:       EventTruncation,
		RequestID:  requestID,
		Provider:   name,
		Closed:     d.closed,
		Incomplete: d.incomplete,
	})
}

func (r *Router) observeAttempt(ctx context.Context, requestID string, a Attempt) {
	r.observer.Observe(ctx, Event{
		Type:      EventAttempt,
		RequestID: requestID,
		Provider:  a.Provider,
		Outcome:   a.Outcome,
		Duration:  a.Duration,
		Err:       a.Err,
		Success:   a.Outcome == OutcomeSuccess,
	})
}

func (r *Router) interrupted(ctx context.Context, requestID string, attempts []Attempt, start time.Time, cause error) error {
	err := fmt.Errorf("generate interrupted after %d attempts: %w", len(attempts), cause)
	r.observer.Observe(ctx, Event{
		Type:      EventGenerate,
		RequestID: requestID,
		Duration:  time.Since(start),
		Err:       err,
	})
	return err
}

// asProviderError makes sure an error returned by a Provider carries a kind.
// Context errors count as unavailability; anything else untyped is unknown.
func asProviderError(name string, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProviderError(name, KindUnavailable, err)
	}
	return NewProviderError(name, KindUnknown, err)
}
