package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/curriculumgen/internal/llm"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{Name: "gateway", Endpoint: srv.URL, APIKey: "sk-test", Timeout: 5 * time.Second})
}

func TestClient_Call(t *testing.T) {
	var got ChatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"ok\": true}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	})

	out, err := client.Call(context.Background(), "Plan a course.")
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)
	assert.Equal(t, "gateway", client.Name())

	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "Plan a course.", got.Messages[0].Content)
	assert.Equal(t, 2000, got.MaxTokens)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   llm.ErrorKind
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error": {"message": "Rate limit reached", "type": "requests"}}`, llm.KindQuotaExhausted},
		{"insufficient quota code", http.StatusForbidden, `{"error": {"message": "You exceeded your current plan", "code": "insufficient_quota"}}`, llm.KindQuotaExhausted},
		{"server error", http.StatusBadGateway, `upstream connect error`, llm.KindUnavailable},
		{"bad request", http.StatusBadRequest, `{"error": {"message": "invalid model"}}`, llm.KindUnknown},
		{"error envelope with 200", http.StatusOK, `{"error": {"message": "quota exceeded"}}`, llm.KindQuotaExhausted},
		{"malformed body", http.StatusOK, `<html>oops</html>`, llm.KindMalformed},
		{"no choices", http.StatusOK, `{"choices": []}`, llm.KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Call(context.Background(), "prompt")
			require.Error(t, err)

			var pe *llm.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.kind, pe.Kind, pe.Error())
			assert.Equal(t, "gateway", pe.Provider)
			assert.Equal(t, tt.status, pe.StatusCode)
		})
	}
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewClient(Config{Endpoint: url, Timeout: time.Second})
	_, err := client.Call(context.Background(), "prompt")
	assert.True(t, llm.IsUnavailable(err))
}

func TestClient_Timeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Call(ctx, "prompt")
	assert.True(t, llm.IsUnavailable(err))
}

func TestClient_Temperature(t *testing.T) {
	tests := []struct {
		name        string
		temperature *float64
		want        float64
	}{
		{"unset uses default", nil, 0.3},
		{"explicit zero is sent", new(float64), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "{}"}}]}`))
			}))
			defer srv.Close()

			client := NewClient(Config{Endpoint: srv.URL, Temperature: tt.temperature})
			_, err := client.Call(context.Background(), "prompt")
			require.NoError(t, err)

			temperature, ok := got["temperature"]
			require.True(t, ok)
			assert.InDelta(t, tt.want, temperature, 1e-9)
		})
	}
}
