package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/curriculumgen/internal/llm"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	temperature := 0.0
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), Config{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/",
		Temperature: &temperature,
		MaxTokens:   512,
		Timeout:     5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	assert.ErrorContains(t, err, "API key is required")
}

func TestClient_Call(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/"+DefaultModel+":generateContent"), r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "{\"weeks\": "}, {"text": "4}"}]},
				"finishReason": "STOP"
			}]
		}`))
	})

	out, err := client.Call(context.Background(), "Plan a course.")
	require.NoError(t, err)
	assert.Equal(t, `{"weeks": 4}`, out)
	assert.Equal(t, "gemini", client.Name())

	assert.Contains(t, body, "contents")
	generation, ok := body["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 512, generation["maxOutputTokens"])
	temperature, ok := generation["temperature"]
	require.True(t, ok, "explicit zero temperature must be sent")
	assert.EqualValues(t, 0, temperature)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   llm.ErrorKind
	}{
		{"resource exhausted", http.StatusTooManyRequests, `{"error": {"code": 429, "message": "Quota exceeded for metric", "status": "RESOURCE_EXHAUSTED"}}`, llm.KindQuotaExhausted},
		{"unavailable", http.StatusServiceUnavailable, `{"error": {"code": 503, "message": "The model is overloaded", "status": "UNAVAILABLE"}}`, llm.KindUnavailable},
		{"invalid argument", http.StatusBadRequest, `{"error": {"code": 400, "message": "Invalid JSON payload", "status": "INVALID_ARGUMENT"}}`, llm.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Call(context.Background(), "prompt")
			var pe *llm.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.kind, pe.Kind, pe.Error())
			assert.Equal(t, tt.status, pe.StatusCode)
		})
	}
}

func TestClient_NoCandidates(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates": [], "promptFeedback": {"blockReason": "SAFETY"}}`))
	})

	_, err := client.Call(context.Background(), "prompt")
	var pe *llm.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, llm.KindMalformed, pe.Kind)
	assert.Equal(t, "prompt blocked: SAFETY", pe.Message)
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, err := NewClient(context.Background(), Config{APIKey: "k", BaseURL: url + "/", Timeout: time.Second})
	require.NoError(t, err)

	_, err = client.Call(context.Background(), "prompt")
	assert.True(t, llm.IsUnavailable(err))
}
