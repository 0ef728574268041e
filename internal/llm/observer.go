package llm

import (
	"context"
	"time"
)

// EventType identifies what an Event reports.
type EventType string

const (
	EventAttempt        EventType = "attempt"         // one provider finished (or was skipped)
	EventBreakerTripped EventType = "breaker_tripped" // a provider's breaker opened
	EventTruncation     EventType = "truncation"      // output was cut off or remains incomplete
	EventRepair         EventType = "repair"          // a corrective retry finished
	EventGenerate       EventType = "generate"        // a Generate call finished
)

// Event is emitted by the Router at each observable step of a Generate call.
type Event struct {
	Type      EventType
	RequestID string
	Provider  string
	Outcome   AttemptOutcome
	Duration  time.Duration
	Err       error

	// Truncation events
	Closed     bool // closers were appended to the candidate
	Incomplete bool // the final candidate is still structurally incomplete

	// Repair and generate events
	Success bool
}

// Observer receives Router events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	Observe(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, event Event)

func (f ObserverFunc) Observe(ctx context.Context, event Event) {
	f(ctx, event)
}

// MultiObserver fans each event out to every observer in order.
type MultiObserver []Observer

func (m MultiObserver) Observe(ctx context.Context, event Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(ctx, event)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(context.Context, Event) {}

type requestIDKey struct{}

// WithRequestID returns a context carrying id. The Router tags its logs and
// events with it and generates one when absent.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID set by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}
