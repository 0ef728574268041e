package events

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/curriculumgen/internal/llm"
	"github.com/ajitpratap0/curriculumgen/internal/metrics"
)

// Publisher is an llm.Observer that publishes each Router event to
// <prefix>.<event type>. Publishing is fire-and-forget; a failed publish is
// logged and never affects generation.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// NewPublisher creates a Publisher. prefix defaults to "curriculumgen.events".
func NewPublisher(nc *nats.Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = "curriculumgen.events"
	}
	return &Publisher{nc: nc, prefix: strings.TrimSuffix(prefix, ".")}
}

// Subject returns the subject events of type t are published on
func (p *Publisher) Subject(t llm.EventType) string {
	return p.prefix + "." + string(t)
}

func (p *Publisher) Observe(_ context.Context, event llm.Event) {
	if p == nil || p.nc == nil || !p.nc.IsConnected() {
		return
	}

	data, err := json.Marshal(newEventMessage(event))
	if err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to marshal event")
		return
	}

	subject := p.Subject(event.Type)
	if err := p.nc.Publish(subject, data); err != nil {
		metrics.RecordError("nats_publish", metrics.ComponentEvents)
		log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish event")
		return
	}
	metrics.RecordNATSPublished(subject)
}

var _ llm.Observer = (*Publisher)(nil)
