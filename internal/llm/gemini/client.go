// Package gemini implements llm.Provider on the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/ajitpratap0/curriculumgen/internal/llm"
)

const (
	DefaultModel   = "gemini-2.5-flash-lite"
	DefaultTimeout = 60 * time.Second
)

// Client generates content with a Gemini model
type Client struct {
	name        string
	model       string
	temperature *float32
	maxTokens   int32
	client      *genai.Client
}

// Config contains configuration for the Gemini client
type Config struct {
	Name        string
	APIKey      string
	Model       string
	Temperature *float64 // nil leaves the model default
	MaxTokens   int
	Timeout     time.Duration

	// BaseURL overrides the API endpoint, e.g. for a proxy.
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a Gemini client. The API key is required.
func NewClient(ctx context.Context, config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if config.Name == "" {
		config.Name = "gemini"
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	var temperature *float32
	if config.Temperature != nil {
		temperature = genai.Ptr(float32(*config.Temperature))
	}

	cc := &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: config.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: config.BaseURL,
			Timeout: &config.Timeout,
		},
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		name:        config.Name,
		model:       config.Model,
		temperature: temperature,
		maxTokens:   int32(config.MaxTokens),
		client:      client,
	}, nil
}

func (c *Client) Name() string {
	return c.name
}

// Call sends prompt as a single user turn and returns the concatenated text of
// the first candidate.
func (c *Client) Call(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	generateConfig := &genai.GenerateContentConfig{}
	if c.temperature != nil {
		generateConfig.Temperature = genai.Ptr(*c.temperature)
	}
	if c.maxTokens > 0 {
		generateConfig.MaxOutputTokens = c.maxTokens
	}

	log.Debug().
		Str("provider", c.name).
		Str("model", c.model).
		Int("prompt_length", len(prompt)).
		Msg("Sending generate content request")

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, generateConfig)
	if err != nil {
		return "", c.classify(err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		message := "no candidates in response"
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			message = fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", &llm.ProviderError{Provider: c.name, Kind: llm.KindMalformed, Message: message}
	}

	text := resp.Text()
	finishReason := resp.Candidates[0].FinishReason

	log.Debug().
		Str("provider", c.name).
		Str("finish_reason", string(finishReason)).
		Int("output_length", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Generate content request completed")

	if text == "" {
		return "", &llm.ProviderError{
			Provider: c.name,
			Kind:     llm.KindMalformed,
			Message:  fmt.Sprintf("empty response text (finish reason %s)", finishReason),
		}
	}
	if finishReason == genai.FinishReasonMaxTokens {
		log.Warn().
			Str("provider", c.name).
			Int32("max_tokens", c.maxTokens).
			Msg("Gemini output hit the token limit")
	}

	return text, nil
}

// classify maps SDK errors onto provider error kinds. The SDK returns
// genai.APIError by value for every non-2xx response.
func (c *Client) classify(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return llm.ClassifyTransport(c.name, err)
	}

	kind := llm.ClassifyStatus(apiErr.Code, apiErr.Message)
	switch {
	case strings.EqualFold(apiErr.Status, "RESOURCE_EXHAUSTED"):
		kind = llm.KindQuotaExhausted
	case apiErr.Code == http.StatusForbidden && llm.IsQuotaMessage(apiErr.Message):
		kind = llm.KindQuotaExhausted
	case strings.EqualFold(apiErr.Status, "UNAVAILABLE"), strings.EqualFold(apiErr.Status, "DEADLINE_EXCEEDED"):
		kind = llm.KindUnavailable
	}

	return &llm.ProviderError{
		Provider:   c.name,
		Kind:       kind,
		StatusCode: apiErr.Code,
		Message:    apiErr.Message,
		Err:        err,
	}
}
