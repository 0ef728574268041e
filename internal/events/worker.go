package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/curriculumgen/internal/llm"
	"github.com/ajitpratap0/curriculumgen/internal/metrics"
)

// WorkerConfig configures a Worker
type WorkerConfig struct {
	Subject     string        // request subject
	QueueGroup  string        // workers in the same group share requests
	Timeout     time.Duration // upper bound for one Generate call
	Concurrency int           // requests handled at once
}

// Worker answers GenerateRequests received on a NATS queue group
type Worker struct {
	nc     *nats.Conn
	gen    llm.Generator
	config WorkerConfig
}

// NewWorker creates a worker that serves gen
func NewWorker(nc *nats.Conn, gen llm.Generator, config WorkerConfig) *Worker {
	if config.Subject == "" {
		config.Subject = "curriculumgen.generate"
	}
	if config.QueueGroup == "" {
		config.QueueGroup = "curriculumgen-workers"
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	if config.Concurrency < 1 {
		config.Concurrency = 4
	}
	return &Worker{nc: nc, gen: gen, config: config}
}

// Run serves requests until ctx is cancelled. In-flight requests are allowed
// to finish within the configured timeout.
func (w *Worker) Run(ctx context.Context) error {
	msgs := make(chan *nats.Msg, w.config.Concurrency*2)
	sub, err := w.nc.ChanQueueSubscribe(w.config.Subject, w.config.QueueGroup, msgs)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", w.config.Subject, err)
	}

	log.Info().
		Str("subject", w.config.Subject).
		Str("queue_group", w.config.QueueGroup).
		Int("concurrency", w.config.Concurrency).
		Msg("Generation worker started")

	var g errgroup.Group
	g.SetLimit(w.config.Concurrency)
	base := context.WithoutCancel(ctx)

loop:
	for {
		select {
		case msg := <-msgs:
			g.Go(func() error {
				w.handle(base, msg)
				return nil
			})
		case <-ctx.Done():
			break loop
		}
	}

	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		log.Warn().Err(err).Msg("Failed to unsubscribe worker")
	}

	// Requests already delivered to the buffer are still answered
	drained := 0
drain:
	for {
		select {
		case msg := <-msgs:
			drained++
			g.Go(func() error {
				w.handle(base, msg)
				return nil
			})
		default:
			break drain
		}
	}
	if drained > 0 {
		log.Info().Int("requests", drained).Msg("Answering buffered requests before stopping")
	}
	_ = g.Wait()

	log.Info().Str("subject", w.config.Subject).Msg("Generation worker stopped")
	return nil
}

func (w *Worker) handle(ctx context.Context, msg *nats.Msg) {
	metrics.RecordNATSReceived(msg.Subject)

	reply := GenerateReply{ID: uuid.New()}

	var req GenerateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		reply.Error = &ReplyError{Message: fmt.Sprintf("invalid request: %v", err)}
		w.respond(msg, reply)
		return
	}
	reply.RequestID = req.ID

	if req.System == "" {
		reply.Error = &ReplyError{Message: "invalid request: system prompt is required"}
		w.respond(msg, reply)
		return
	}

	if req.ID == uuid.Nil {
		req.ID = uuid.New()
		reply.RequestID = req.ID
	}

	genCtx, cancel := context.WithTimeout(llm.WithRequestID(ctx, req.ID.String()), w.config.Timeout)
	defer cancel()

	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}

	result, err := w.gen.Generate(genCtx, req.System, payload)
	if err != nil {
		metrics.RecordError("generate_failed", metrics.ComponentWorker)
		log.Warn().Err(err).Str("request_id", req.ID.String()).Msg("Generation request failed")
		reply.Error = NewReplyError(err)
	} else {
		reply.Output = result.Raw
		reply.Provider = result.Provider
		reply.Retried = result.Retried
		reply.Truncated = result.Truncated
	}

	w.respond(msg, reply)
}

func (w *Worker) respond(msg *nats.Msg, reply GenerateReply) {
	if msg.Reply == "" {
		log.Debug().Str("subject", msg.Subject).Msg("Request has no reply subject, dropping reply")
		return
	}

	reply.Timestamp = time.Now().UTC()
	data, err := json.Marshal(reply)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		metrics.RecordError("nats_respond", metrics.ComponentWorker)
		log.Error().Err(err).Str("request_id", reply.RequestID.String()).Msg("Failed to send reply")
	}
}
