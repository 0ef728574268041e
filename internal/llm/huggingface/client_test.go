package huggingface

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
	return NewClient(Config{BaseURL: srv.URL + "/models/", APIKey: "hf_test", Model: "org/model", Timeout: 5 * time.Second})
}

func TestClient_Call(t *testing.T) {
	var got GenerationRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/org/model", r.URL.Path)
		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`[{"generated_text": "{\"weeks\": 4}"}]`))
	})

	out, err := client.Call(context.Background(), "Plan a course.")
	require.NoError(t, err)
	assert.Equal(t, `{"weeks": 4}`, out)
	assert.Equal(t, "huggingface", client.Name())

	assert.Equal(t, "Plan a course.", got.Inputs)
	assert.Equal(t, DefaultMaxNewTokens, got.Parameters.MaxNewTokens)
	assert.InDelta(t, DefaultTemperature, got.Parameters.Temperature, 1e-9)
	assert.False(t, got.Parameters.ReturnFullText)
	require.NotNil(t, got.Options)
	assert.True(t, got.Options.WaitForModel)
}

func TestClient_SingleObjectResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"generated_text": "{}"}`))
	})

	out, err := client.Call(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "{}", out)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   llm.ErrorKind
		msg    string
	}{
		{"credits exhausted", http.StatusPaymentRequired, `{"error": "You have exceeded your monthly included credits"}`, llm.KindQuotaExhausted, ""},
		{"rate limited", http.StatusTooManyRequests, `Too Many Requests`, llm.KindQuotaExhausted, ""},
		{"model loading", http.StatusServiceUnavailable, `{"error": "Model is currently loading", "estimated_time": 20.5}`, llm.KindUnavailable, "Model is currently loading (estimated 20s)"},
		{"quota message with 400", http.StatusBadRequest, `{"error": "Rate limit reached. Please log in"}`, llm.KindQuotaExhausted, ""},
		{"error envelope with 200", http.StatusOK, `{"error": "Input validation error"}`, llm.KindUnknown, "Input validation error"},
		{"empty list", http.StatusOK, `[]`, llm.KindMalformed, ""},
		{"empty body", http.StatusOK, ``, llm.KindMalformed, ""},
		{"unexpected shape", http.StatusOK, `"just a string"`, llm.KindMalformed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Call(context.Background(), "prompt")
			var pe *llm.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.kind, pe.Kind, pe.Error())
			assert.Equal(t, tt.status, pe.StatusCode)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, pe.Message)
			}
		})
	}
}

func TestParseGenerated(t *testing.T) {
	text, err := parseGenerated([]byte(` [{"generated_text": "a"}, {"generated_text": "b"}] `))
	require.NoError(t, err)
	assert.Equal(t, "a", text)

	_, err = parseGenerated([]byte(`{"generated_text": ""}`))
	assert.ErrorContains(t, err, "no generated_text")
}

func TestClient_ZeroTemperature(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`[{"generated_text": "{}"}]`))
	}))
	defer srv.Close()

	zero := 0.0
	client := NewClient(Config{BaseURL: srv.URL, Model: "m", Temperature: &zero})
	_, err := client.Call(context.Background(), "prompt")
	require.NoError(t, err)

	params, ok := got["parameters"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 0, params["temperature"])
}
