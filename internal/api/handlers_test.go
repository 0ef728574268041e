package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/curriculumgen/internal/llm"
)

func fixed(name, output string, err error) llm.ProviderFunc {
	return llm.ProviderFunc{ID: name, Fn: func(context.Context, string) (string, error) {
		return output, err
	}}
}

func newTestServer(t *testing.T, providers ...llm.Provider) *Server {
	t.Helper()
	router, err := llm.NewRouter(providers)
	require.NoError(t, err)

	server := NewServer(Config{
		Host:           "127.0.0.1",
		Port:           0,
		Version:        "test",
		Generator:      router,
		Breakers:       router,
		RequestTimeout: 5 * time.Second,
	})
	return server
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleRoot(t *testing.T) {
	server := newTestServer(t, fixed("a", `{}`, nil))

	w := doJSON(t, server.Handler(), http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "curriculumgen", body["service"])
	assert.Equal(t, "test", body["version"])
}

func TestHandleGenerate_Success(t *testing.T) {
	server := newTestServer(t, fixed("primary", "Sure!\n```json\n{\"title\": \"Go\", \"weeks\": 4}\n```", nil))

	w := doJSON(t, server.Handler(), http.MethodPost, "/v1/generate", map[string]any{
		"system":  "Plan a course.",
		"payload": map[string]any{"topic": "go"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "primary", resp.Provider)
	assert.Equal(t, "Go", resp.Output["title"])
	assert.False(t, resp.Retried)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, resp.RequestID, w.Header().Get(RequestIDHeader))
}

func TestHandleGenerate_PropagatesRequestID(t *testing.T) {
	var seen string
	server := newTestServer(t, llm.ProviderFunc{ID: "a", Fn: func(ctx context.Context, _ string) (string, error) {
		seen, _ = llm.RequestIDFromContext(ctx)
		return `{"ok": true}`, nil
	}})

	body, _ := json.Marshal(map[string]any{"system": "s"})
	req := httptest.NewRequest(http.MethodPost, "/v1/generate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}

func TestHandleGenerate_MissingSystem(t *testing.T) {
	server := newTestServer(t, fixed("a", `{}`, nil))

	w := doJSON(t, server.Handler(), http.MethodPost, "/v1/generate", map[string]any{"payload": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request")
}

func TestHandleGenerate_AllProvidersFailed(t *testing.T) {
	server := newTestServer(t,
		fixed("quota", "", &llm.ProviderError{Provider: "quota", Kind: llm.KindQuotaExhausted, StatusCode: 429}),
		fixed("down", "", llm.NewProviderError("down", llm.KindUnavailable, errors.New("connection refused"))),
	)

	w := doJSON(t, server.Handler(), http.MethodPost, "/v1/generate", map[string]any{"system": "s"})
	require.Equal(t, http.StatusBadGateway, w.Code)

	var body struct {
		Error          string `json:"error"`
		AllUnavailable bool   `json:"all_unavailable"`
		Attempts       []struct {
			Provider string `json:"provider"`
			Outcome  string `json:"outcome"`
		} `json:"attempts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.AllUnavailable)
	require.Len(t, body.Attempts, 2)
	assert.Equal(t, "quota", body.Attempts[0].Provider)
	assert.Equal(t, "quota_exhausted", body.Attempts[0].Outcome)
	assert.Equal(t, "unavailable", body.Attempts[1].Outcome)
}

func TestHandleProvidersAndHealth_AfterQuotaTrip(t *testing.T) {
	server := newTestServer(t,
		fixed("quota", "", &llm.ProviderError{Provider: "quota", Kind: llm.KindQuotaExhausted}),
	)

	w := doJSON(t, server.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, server.Handler(), http.MethodPost, "/v1/generate", map[string]any{"system": "s"})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = doJSON(t, server.Handler(), http.MethodGet, "/v1/providers", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Providers []ProviderStatus `json:"providers"`
		Total     int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Total)
	assert.Equal(t, "quota", body.Providers[0].Name)
	assert.Equal(t, llm.CircuitOpen, body.Providers[0].Breaker)
	assert.NotNil(t, body.Providers[0].TrippedAt)

	w = doJSON(t, server.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type fakeGuards map[string]string

func (f fakeGuards) GuardStates() map[string]string { return f }

func TestHandleProviders_IncludesGuardState(t *testing.T) {
	router, err := llm.NewRouter([]llm.Provider{fixed("a", `{}`, nil), fixed("b", `{}`, nil)})
	require.NoError(t, err)

	server := NewServer(Config{
		Generator: router,
		Breakers:  router,
		Guards:    fakeGuards{"a": "closed", "b": "open"},
	})

	w := doJSON(t, server.Handler(), http.MethodGet, "/v1/providers", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Providers []ProviderStatus `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Providers, 2)
	assert.Equal(t, "a", body.Providers[0].Name)
	assert.Equal(t, llm.CircuitClosed, body.Providers[0].Breaker)
	assert.Equal(t, "open", body.Providers[1].GuardState)
}

func TestHandleRefine(t *testing.T) {
	server := newTestServer(t, fixed("primary", `{"title": "Go", "total_weeks": 6}`, nil))

	w := doJSON(t, server.Handler(), http.MethodPost, "/v1/refine", map[string]any{
		"instruction":  "Make it six weeks",
		"current_plan": map[string]any{"title": "Go", "total_weeks": 8},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.InDelta(t, 6, resp.Output["total_weeks"], 1e-9)
}

func TestHandleRefine_Validation(t *testing.T) {
	server := newTestServer(t, fixed("primary", `{}`, nil))

	w := doJSON(t, server.Handler(), http.MethodPost, "/v1/refine", map[string]any{
		"current_plan": map[string]any{"title": "Go"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "instruction is required")
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, fixed("a", `{}`, nil))

	// One request so the API counters have a sample
	doJSON(t, server.Handler(), http.MethodGet, "/health", nil)

	w := doJSON(t, server.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "curriculumgen_http_requests_total")
}
