package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Provider is an external text-generation service. Call sends a fully composed
// prompt and returns the raw model text. Failures are reported as *ProviderError
// so callers can dispatch on Kind.
type Provider interface {
	Name() string
	Call(ctx context.Context, prompt string) (string, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc struct {
	ID string
	Fn func(ctx context.Context, prompt string) (string, error)
}

func (p ProviderFunc) Name() string { return p.ID }

func (p ProviderFunc) Call(ctx context.Context, prompt string) (string, error) {
	return p.Fn(ctx, prompt)
}

// Prompt is the immutable input of a Generate call.
type Prompt struct {
	System  string
	Payload any
}

const promptTrailer = "\n\nReturn ONLY valid JSON.\nNo explanations.\nNo markdown.\n"

// Compose renders the prompt as the single request string sent to providers:
// the system instructions followed by the payload as compact JSON.
func (p Prompt) Compose() (string, error) {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal prompt payload: %w", err)
	}

	var b strings.Builder
	b.Grow(len(p.System) + len(payload) + 64)
	b.WriteString(p.System)
	b.WriteString("\nInput Data:\n")
	b.Write(payload)
	b.WriteString(promptTrailer)
	return b.String(), nil
}
