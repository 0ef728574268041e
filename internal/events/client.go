package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/ajitpratap0/curriculumgen/internal/llm"
)

// Client sends Generate requests to workers over NATS. It implements
// llm.Generator.
type Client struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
}

// NewClient creates a client for the workers listening on subject
func NewClient(nc *nats.Conn, subject string, timeout time.Duration) *Client {
	if subject == "" {
		subject = "curriculumgen.generate"
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{nc: nc, subject: subject, timeout: timeout}
}

// Generate sends a request and waits for the worker's reply. A failed
// generation is returned as *ReplyError.
func (c *Client) Generate(ctx context.Context, system string, payload any) (*llm.Result, error) {
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	id := uuid.New()
	if rid, ok := llm.RequestIDFromContext(ctx); ok {
		if parsed, err := uuid.Parse(rid); err == nil {
			id = parsed
		}
	}

	data, err := json.Marshal(GenerateRequest{
		ID:        id,
		System:    system,
		Payload:   rawPayload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(reqCtx, c.subject, data)
	if err != nil {
		return nil, fmt.Errorf("generate request failed: %w", err)
	}

	var reply GenerateReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reply: %w", err)
	}
	if reply.Error != nil {
		return nil, reply.Error
	}

	var output map[string]any
	if err := json.Unmarshal(reply.Output, &output); err != nil {
		return nil, fmt.Errorf("reply output is not a JSON object: %w", err)
	}

	return &llm.Result{
		Output:    output,
		Raw:       reply.Output,
		Provider:  reply.Provider,
		Retried:   reply.Retried,
		Truncated: reply.Truncated,
	}, nil
}

var _ llm.Generator = (*Client)(nil)
