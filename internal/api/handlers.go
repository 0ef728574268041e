package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/curriculumgen/internal/events"
	"github.com/ajitpratap0/curriculumgen/internal/llm"
	"github.com/ajitpratap0/curriculumgen/internal/metrics"
	"github.com/ajitpratap0/curriculumgen/internal/refine"
)

var startTime = time.Now()

// GenerateRequest is the body of POST /v1/generate
type GenerateRequest struct {
	System  string          `json:"system" binding:"required"`
	Payload json.RawMessage `json:"payload"`
}

// GenerateResponse is returned by generate and refine
type GenerateResponse struct {
	RequestID string         `json:"request_id"`
	Provider  string         `json:"provider"`
	Retried   bool           `json:"retried"`
	Truncated bool           `json:"truncated"`
	Output    map[string]any `json:"output"`
}

// ProviderStatus is one entry of GET /v1/providers
type ProviderStatus struct {
	Name       string           `json:"name"`
	Breaker    llm.CircuitState `json:"breaker"`
	TrippedAt  *time.Time       `json:"tripped_at,omitempty"`
	GuardState string           `json:"guard_state,omitempty"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "curriculumgen",
		"version": s.version,
		"status":  "running",
		"time":    time.Now().UTC(),
	})
}

// handleGetHealth reports unhealthy once every provider's breaker is open,
// since no request can succeed until restart.
func (s *Server) handleGetHealth(c *gin.Context) {
	if s.breakers != nil {
		statuses := s.breakers.BreakerStatus()
		open := 0
		for _, st := range statuses {
			if st.State == llm.CircuitOpen {
				open++
			}
		}
		if len(statuses) > 0 && open == len(statuses) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "all provider circuit breakers are open",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(startTime).Seconds(),
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleListProviders(c *gin.Context) {
	if s.breakers == nil {
		c.JSON(http.StatusOK, gin.H{"providers": []ProviderStatus{}, "total": 0})
		return
	}

	var guards map[string]string
	if s.guards != nil {
		guards = s.guards.GuardStates()
	}

	statuses := s.breakers.BreakerStatus()
	providers := make([]ProviderStatus, len(statuses))
	for i, st := range statuses {
		providers[i] = ProviderStatus{
			Name:       st.Provider,
			Breaker:    st.State,
			GuardState: guards[st.Provider],
		}
		if !st.TrippedAt.IsZero() {
			tripped := st.TrippedAt
			providers[i].TrippedAt = &tripped
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"providers": providers,
		"total":     len(providers),
	})
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	result, err := s.generator.Generate(ctx, req.System, payload)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newGenerateResponse(c, result))
}

func (s *Server) handleRefine(c *gin.Context) {
	var req refine.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	result, err := s.refiner.Refine(ctx, req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newGenerateResponse(c, result))
}

func newGenerateResponse(c *gin.Context, result *llm.Result) GenerateResponse {
	return GenerateResponse{
		RequestID: c.GetString("request_id"),
		Provider:  result.Provider,
		Retried:   result.Retried,
		Truncated: result.Truncated,
		Output:    result.Output,
	}
}

// respondError maps a generation error to a status code. Failures of every
// provider are a bad gateway and carry the per-provider attempts.
func (s *Server) respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	requestID := c.GetString("request_id")

	var replyErr *events.ReplyError
	var failed *llm.AllProvidersFailedError
	switch {
	case errors.As(err, &replyErr):
		// Already in wire form when the generator is a remote worker
	case errors.As(err, &failed):
		replyErr = events.NewReplyError(err)
	case errors.Is(err, context.DeadlineExceeded):
		metrics.RecordError("generate_timeout", metrics.ComponentAPI)
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "generation timed out", "request_id": requestID})
		return
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the body
		c.Status(499)
		return
	default:
		metrics.RecordError("generate_failed", metrics.ComponentAPI)
		log.Error().Err(err).Str("request_id", requestID).Msg("Generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "request_id": requestID})
		return
	}

	metrics.RecordError("all_providers_failed", metrics.ComponentAPI)
	c.JSON(http.StatusBadGateway, gin.H{
		"error":           replyErr.Message,
		"request_id":      requestID,
		"all_unavailable": replyErr.AllUnavailable,
		"attempts":        replyErr.Attempts,
	})
}
