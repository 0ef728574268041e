// Package openai implements llm.Provider for OpenAI-compatible chat
// completion endpoints, such as self-hosted gateways.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/curriculumgen/internal/llm"
)

// Client sends prompts to an OpenAI-compatible /chat/completions endpoint
type Client struct {
	name        string
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	httpClient  *http.Client
}

// Config contains configuration for the chat completions client
type Config struct {
	Name        string
	Endpoint    string
	APIKey      string
	Model       string
	Temperature *float64 // nil means 0.3
	MaxTokens   int
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// NewClient creates a new chat completions client
func NewClient(config Config) *Client {
	if config.Name == "" {
		config.Name = "openai"
	}
	if config.Endpoint == "" {
		config.Endpoint = "http://localhost:8080/v1/chat/completions"
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	temperature := 0.3
	if config.Temperature != nil {
		temperature = *config.Temperature
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		name:        config.Name,
		endpoint:    config.Endpoint,
		apiKey:      config.APIKey,
		model:       config.Model,
		temperature: temperature,
		maxTokens:   config.MaxTokens,
		timeout:     config.Timeout,
		httpClient:  config.HTTPClient,
	}
}

func (c *Client) Name() string {
	return c.name
}

// Call sends prompt as a single user message and returns the first choice.
func (c *Client) Call(ctx context.Context, prompt string) (string, error) {
	request := ChatRequest{
		Model:       c.model,
		Messages:    []ChatMessage{{Role: "user", Content: prompt}},
		Temperature: &c.temperature,
		MaxTokens:   c.maxTokens,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", llm.NewProviderError(c.name, llm.KindUnknown, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return "", llm.NewProviderError(c.name, llm.KindUnknown, fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Debug().
		Str("provider", c.name).
		Str("endpoint", c.endpoint).
		Str("model", c.model).
		Int("prompt_length", len(prompt)).
		Msg("Sending chat completion request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", llm.ClassifyTransport(c.name, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", llm.ClassifyTransport(c.name, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", c.statusError(resp.StatusCode, body)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", &llm.ProviderError{
			Provider:   c.name,
			Kind:       llm.KindMalformed,
			StatusCode: resp.StatusCode,
			Message:    "failed to parse response",
			Err:        err,
		}
	}

	// Some gateways answer 200 with an error envelope.
	if chatResp.Error != nil && chatResp.Error.Message != "" {
		return "", c.envelopeError(resp.StatusCode, chatResp.Error)
	}

	if len(chatResp.Choices) == 0 {
		return "", &llm.ProviderError{
			Provider:   c.name,
			Kind:       llm.KindMalformed,
			StatusCode: resp.StatusCode,
			Message:    "no choices in response",
		}
	}

	choice := chatResp.Choices[0]
	log.Debug().
		Str("provider", c.name).
		Str("model", chatResp.Model).
		Str("finish_reason", choice.FinishReason).
		Int("prompt_tokens", chatResp.Usage.PromptTokens).
		Int("completion_tokens", chatResp.Usage.CompletionTokens).
		Dur("duration", duration).
		Msg("Chat completion request completed")

	return choice.Message.Content, nil
}

func (c *Client) statusError(status int, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		message := strings.TrimSpace(string(body))
		return &llm.ProviderError{
			Provider:   c.name,
			Kind:       llm.ClassifyStatus(status, message),
			StatusCode: status,
			Message:    message,
		}
	}
	return c.envelopeError(status, &errResp.Error)
}

func (c *Client) envelopeError(status int, e *APIError) error {
	kind := llm.ClassifyStatus(status, e.Message)
	if e.Type == "insufficient_quota" || e.Code == "insufficient_quota" || e.Code == "rate_limit_exceeded" {
		kind = llm.KindQuotaExhausted
	}
	return &llm.ProviderError{
		Provider:   c.name,
		Kind:       kind,
		StatusCode: status,
		Message:    e.Message,
	}
}
