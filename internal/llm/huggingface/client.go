// Package huggingface implements llm.Provider for the HuggingFace Inference
// API text-generation task.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/curriculumgen/internal/llm"
)

const (
	DefaultBaseURL      = "https://api-inference.huggingface.co/models/"
	DefaultModel        = "mistralai/Mistral-7B-Instruct-v0.2"
	DefaultMaxNewTokens = 1500
	DefaultTemperature  = 0.3
	DefaultTimeout      = 120 * time.Second
)

// Client calls a text-generation model hosted on the Inference API
type Client struct {
	name         string
	url          string
	apiKey       string
	model        string
	maxNewTokens int
	temperature  float64
	httpClient   *http.Client
}

// Config contains configuration for the Inference API client
type Config struct {
	Name         string
	BaseURL      string
	APIKey       string
	Model        string
	MaxNewTokens int
	Temperature  *float64 // nil means DefaultTemperature
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// NewClient creates a new Inference API client
func NewClient(config Config) *Client {
	if config.Name == "" {
		config.Name = "huggingface"
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxNewTokens == 0 {
		config.MaxNewTokens = DefaultMaxNewTokens
	}
	temperature := DefaultTemperature
	if config.Temperature != nil {
		temperature = *config.Temperature
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		name:         config.Name,
		url:          strings.TrimSuffix(config.BaseURL, "/") + "/" + config.Model,
		apiKey:       config.APIKey,
		model:        config.Model,
		maxNewTokens: config.MaxNewTokens,
		temperature:  temperature,
		httpClient:   config.HTTPClient,
	}
}

func (c *Client) Name() string {
	return c.name
}

// Call posts prompt as the inputs of a text-generation request.
func (c *Client) Call(ctx context.Context, prompt string) (string, error) {
	request := GenerationRequest{
		Inputs: prompt,
		Parameters: GenerationParameters{
			MaxNewTokens:   c.maxNewTokens,
			Temperature:    c.temperature,
			ReturnFullText: false,
		},
		Options: &GenerationOptions{WaitForModel: true},
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", llm.NewProviderError(c.name, llm.KindUnknown, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(requestBody))
	if err != nil {
		return "", llm.NewProviderError(c.name, llm.KindUnknown, fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Debug().
		Str("provider", c.name).
		Str("model", c.model).
		Int("max_new_tokens", c.maxNewTokens).
		Msg("Sending text generation request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", llm.ClassifyTransport(c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", llm.ClassifyTransport(c.name, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", c.statusError(resp.StatusCode, body)
	}

	text, err := parseGenerated(body)
	if err != nil {
		return "", c.bodyError(resp.StatusCode, err)
	}

	log.Debug().
		Str("provider", c.name).
		Int("output_length", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Text generation request completed")

	return text, nil
}

// parseGenerated reads the generated text from either the list form
// ([{"generated_text": ...}]) or the single object form.
func parseGenerated(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", errors.New("empty response body")
	}

	if trimmed[0] == '[' {
		var outputs []GeneratedOutput
		if err := json.Unmarshal(trimmed, &outputs); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if len(outputs) == 0 {
			return "", errors.New("no generations in response")
		}
		return outputs[0].GeneratedText, nil
	}

	var output GeneratedOutput
	if err := json.Unmarshal(trimmed, &output); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if output.Error != "" {
		return "", &envelopeError{message: output.Error}
	}
	if output.GeneratedText == "" {
		return "", errors.New("no generated_text in response")
	}
	return output.GeneratedText, nil
}

type envelopeError struct {
	message string
}

func (e *envelopeError) Error() string {
	return e.message
}

func (c *Client) bodyError(status int, err error) error {
	var env *envelopeError
	if errors.As(err, &env) {
		return c.envelope(status, env.message)
	}
	return &llm.ProviderError{
		Provider:   c.name,
		Kind:       llm.KindMalformed,
		StatusCode: status,
		Message:    err.Error(),
		Err:        err,
	}
}

func (c *Client) statusError(status int, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		pe := c.envelope(status, errResp.Error)
		if status == http.StatusServiceUnavailable && errResp.EstimatedTime > 0 {
			pe.Message = fmt.Sprintf("%s (estimated %.0fs)", errResp.Error, errResp.EstimatedTime)
		}
		return pe
	}

	message := strings.TrimSpace(string(body))
	return &llm.ProviderError{
		Provider:   c.name,
		Kind:       llm.ClassifyStatus(status, message),
		StatusCode: status,
		Message:    message,
	}
}

// envelope classifies a {"error": "..."} payload. Without a failing status the
// payload is an application-level error, so it is unknown unless it names a
// quota condition.
func (c *Client) envelope(status int, message string) *llm.ProviderError {
	kind := llm.KindUnknown
	if status != http.StatusOK {
		kind = llm.ClassifyStatus(status, message)
	} else if llm.IsQuotaMessage(message) {
		kind = llm.KindQuotaExhausted
	}
	return &llm.ProviderError{
		Provider:   c.name,
		Kind:       kind,
		StatusCode: status,
		Message:    message,
	}
}
