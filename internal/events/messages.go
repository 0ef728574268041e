// Package events carries generation over NATS: a queue-group worker that
// answers Generate requests, a client for it, and a publisher that emits
// Router events.
package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/curriculumgen/internal/llm"
)

// GenerateRequest asks a worker to run Generate
type GenerateRequest struct {
	ID        uuid.UUID       `json:"id"`
	System    string          `json:"system"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// GenerateReply is the worker's answer. Exactly one of Output and Error is set.
type GenerateReply struct {
	ID        uuid.UUID       `json:"id"`
	RequestID uuid.UUID       `json:"request_id"`
	Output    json.RawMessage `json:"output,omitempty"`
	Provider  string          `json:"provider,omitempty"`
	Retried   bool            `json:"retried,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
	Error     *ReplyError     `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ReplyError describes a failed generation
type ReplyError struct {
	Message        string           `json:"message"`
	AllUnavailable bool             `json:"all_unavailable,omitempty"`
	Attempts       []AttemptSummary `json:"attempts,omitempty"`
}

func (e *ReplyError) Error() string {
	return e.Message
}

// AttemptSummary is the wire form of llm.Attempt
type AttemptSummary struct {
	Provider   string `json:"provider"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// EventMessage is the wire form of llm.Event
type EventMessage struct {
	ID         uuid.UUID `json:"id"`
	RequestID  string    `json:"request_id,omitempty"`
	Type       string    `json:"type"`
	Provider   string    `json:"provider,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
	Closed     bool      `json:"closed,omitempty"`
	Incomplete bool      `json:"incomplete,omitempty"`
	Success    bool      `json:"success,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewReplyError converts a Generate error to its wire form
func NewReplyError(err error) *ReplyError {
	re := &ReplyError{Message: err.Error()}

	var failed *llm.AllProvidersFailedError
	if errors.As(err, &failed) {
		re.AllUnavailable = failed.AllUnavailable()
		re.Attempts = Summarize(failed.Attempts)
	}
	return re
}

// Summarize converts attempts to their wire form
func Summarize(attempts []llm.Attempt) []AttemptSummary {
	out := make([]AttemptSummary, len(attempts))
	for i, a := range attempts {
		out[i] = AttemptSummary{
			Provider:   a.Provider,
			Outcome:    string(a.Outcome),
			DurationMs: a.Duration.Milliseconds(),
		}
		if a.Err != nil {
			out[i].Error = a.Err.Error()
		}
	}
	return out
}

func newEventMessage(event llm.Event) EventMessage {
	msg := EventMessage{
		ID:         uuid.New(),
		RequestID:  event.RequestID,
		Type:       string(event.Type),
		Provider:   event.Provider,
		Outcome:    string(event.Outcome),
		DurationMs: event.Duration.Milliseconds(),
		Closed:     event.Closed,
		Incomplete: event.Incomplete,
		Success:    event.Success,
		Timestamp:  time.Now().UTC(),
	}
	if event.Err != nil {
		msg.Error = event.Err.Error()
	}
	return msg
}
