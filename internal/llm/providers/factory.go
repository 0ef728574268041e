// Package providers builds the configured generation providers in priority
// order and applies the optional rate limit and transport guard wrappers.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/curriculumgen/internal/config"
	"github.com/ajitpratap0/curriculumgen/internal/llm"
	"github.com/ajitpratap0/curriculumgen/internal/llm/gemini"
	"github.com/ajitpratap0/curriculumgen/internal/llm/huggingface"
	"github.com/ajitpratap0/curriculumgen/internal/llm/openai"
)

// ErrNoProviders is returned when no enabled provider could be built.
var ErrNoProviders = errors.New("no generation providers available")

// Options customizes provider construction.
type Options struct {
	// HTTPClient is shared by every provider when set.
	HTTPClient *http.Client

	// OnGuardStateChange is forwarded to each transport guard.
	OnGuardStateChange func(provider, from, to string)
}

// Set is the ordered provider list handed to the Router, plus the transport
// guards so their state can be reported.
type Set struct {
	Providers []llm.Provider
	guards    map[string]*llm.GuardedProvider
}

// Names returns the provider names in priority order.
func (s *Set) Names() []string {
	names := make([]string, len(s.Providers))
	for i, p := range s.Providers {
		names[i] = p.Name()
	}
	return names
}

// GuardStates returns the transport guard state per provider. It is empty when
// guards are disabled.
func (s *Set) GuardStates() map[string]string {
	states := make(map[string]string, len(s.guards))
	for name, g := range s.guards {
		states[name] = g.State()
	}
	return states
}

// Build constructs every enabled provider in cfg. A provider that cannot be
// constructed, typically for a missing key, is skipped with a warning so the
// remaining providers still serve.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Set, error) {
	set := &Set{guards: make(map[string]*llm.GuardedProvider)}
	var skipped []string

	for _, pc := range cfg.EnabledProviders() {
		plog := config.NewProviderLogger(pc.Name, pc.Kind)

		provider, err := New(ctx, pc, opts.HTTPClient)
		if err != nil {
			plog.Warn().Err(err).Msg("Skipping provider")
			skipped = append(skipped, pc.Name)
			continue
		}

		if cfg.RateLimit.Enabled {
			provider = llm.NewRateLimitedProvider(provider, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		}

		if cfg.Guard.Enabled {
			guarded := llm.NewGuardedProvider(provider, llm.GuardSettings{
				MinRequests:     cfg.Guard.MinRequests,
				FailureRatio:    cfg.Guard.FailureRatio,
				OpenTimeout:     cfg.Guard.GetOpenTimeout(),
				HalfOpenMaxReqs: cfg.Guard.HalfOpenMaxReqs,
				CountInterval:   cfg.Guard.GetCountInterval(),
				OnStateChange:   opts.OnGuardStateChange,
			})
			set.guards[pc.Name] = guarded
			provider = guarded
		}

		plog.Debug().
			Str("model", pc.Model).
			Dur("timeout", pc.GetTimeout()).
			Msg("Provider built")
		set.Providers = append(set.Providers, provider)
	}

	if len(set.Providers) == 0 {
		sort.Strings(skipped)
		return nil, fmt.Errorf("%w (skipped: %v)", ErrNoProviders, skipped)
	}

	log.Info().
		Strs("providers", set.Names()).
		Bool("rate_limited", cfg.RateLimit.Enabled).
		Bool("guarded", cfg.Guard.Enabled).
		Msg("Generation providers initialized")

	return set, nil
}

// New constructs the unwrapped provider for one configuration entry.
func New(ctx context.Context, pc config.ProviderConfig, httpClient *http.Client) (llm.Provider, error) {
	switch pc.Kind {
	case config.ProviderGemini:
		return gemini.NewClient(ctx, gemini.Config{
			Name:        pc.Name,
			APIKey:      pc.APIKey,
			Model:       pc.Model,
			Temperature: pc.Temperature,
			MaxTokens:   pc.MaxTokens,
			Timeout:     pc.GetTimeout(),
			BaseURL:     pc.Endpoint,
			HTTPClient:  httpClient,
		})

	case config.ProviderHuggingFace:
		if pc.APIKey == "" {
			return nil, errors.New("huggingface API key is required")
		}
		return huggingface.NewClient(huggingface.Config{
			Name:         pc.Name,
			BaseURL:      pc.Endpoint,
			APIKey:       pc.APIKey,
			Model:        pc.Model,
			MaxNewTokens: pc.MaxTokens,
			Temperature:  pc.Temperature,
			Timeout:      pc.GetTimeout(),
			HTTPClient:   httpClient,
		}), nil

	case config.ProviderOpenAI:
		return openai.NewClient(openai.Config{
			Name:        pc.Name,
			Endpoint:    pc.Endpoint,
			APIKey:      pc.APIKey,
			Model:       pc.Model,
			Temperature: pc.Temperature,
			MaxTokens:   pc.MaxTokens,
			Timeout:     pc.GetTimeout(),
			HTTPClient:  httpClient,
		}), nil

	default:
		return nil, fmt.Errorf("unknown provider kind %q", pc.Kind)
	}
}
