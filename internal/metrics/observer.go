package metrics

import (
	"context"

	"github.com/ajitpratap0/curriculumgen/internal/llm"
)

// Observer records Router events as Prometheus metrics.
type Observer struct{}

// NewObserver returns an llm.Observer backed by the package metrics.
func NewObserver() *Observer {
	return &Observer{}
}

func (o *Observer) Observe(_ context.Context, event llm.Event) {
	ms := float64(event.Duration.Milliseconds())

	switch event.Type {
	case llm.EventAttempt:
		RecordAttempt(event.Provider, string(event.Outcome), ms)
	case llm.EventBreakerTripped:
		RecordCircuitBreakerTrip(event.Provider)
	case llm.EventTruncation:
		RecordTruncation(event.Provider, event.Incomplete)
	case llm.EventRepair:
		RecordRepair(event.Provider, event.Success)
	case llm.EventGenerate:
		RecordGeneration(event.Success, ms)
	}
}

var _ llm.Observer = (*Observer)(nil)
