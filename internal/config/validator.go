package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ValidatorOptions contains options for startup validation
type ValidatorOptions struct {
	VerifyConnectivity bool // Check Redis/NATS connectivity
	Timeout            time.Duration
}

// DefaultValidatorOptions returns default validator options for startup
func DefaultValidatorOptions() ValidatorOptions {
	return ValidatorOptions{
		VerifyConnectivity: true,
		Timeout:            5 * time.Second,
	}
}

// Validator handles configuration validation at startup
type Validator struct {
	config  *Config
	options ValidatorOptions
}

// NewValidator creates a new startup validator
func NewValidator(config *Config, options ValidatorOptions) *Validator {
	if options.Timeout == 0 {
		options.Timeout = 5 * time.Second
	}
	return &Validator{
		config:  config,
		options: options,
	}
}

// ValidateStartup checks provider credentials and the reachability of the
// backing services that are enabled. Call it before serving traffic.
func (v *Validator) ValidateStartup(ctx context.Context) error {
	log.Info().Msg("Validating configuration...")

	if err := v.validateAPIKeysPresence(); err != nil {
		return fmt.Errorf("API key validation failed: %w", err)
	}

	if v.options.VerifyConnectivity && v.config.Cache.Enabled {
		if err := v.checkRedisConnectivity(ctx); err != nil {
			return fmt.Errorf("redis connectivity check failed: %w", err)
		}
	}

	if v.options.VerifyConnectivity && v.config.NATS.Enabled {
		if err := v.checkNATSConnectivity(); err != nil {
			return fmt.Errorf("NATS connectivity check failed: %w", err)
		}
	}

	log.Info().Msg("Configuration validation completed successfully")
	return nil
}

// validateAPIKeysPresence checks that every enabled hosted provider has a key.
// A provider without a key would fail every call, so it is reported here
// rather than at the first request.
func (v *Validator) validateAPIKeysPresence() error {
	var missing []string

	for _, p := range v.config.EnabledProviders() {
		if p.Kind == ProviderOpenAI {
			continue
		}
		if p.APIKey == "" {
			hint := p.APIKeyEnv
			if hint == "" {
				hint = "api_key"
			}
			missing = append(missing, fmt.Sprintf("%s (set %s)", p.Name, hint))
		}
	}

	if len(missing) > 0 {
		var errMsg strings.Builder
		errMsg.WriteString("API keys are missing for enabled providers:\n\n")
		for _, m := range missing {
			errMsg.WriteString(fmt.Sprintf("  - %s\n", m))
		}
		return fmt.Errorf("%s", errMsg.String())
	}

	log.Info().Int("providers", len(v.config.EnabledProviders())).Msg("API key presence validation passed")
	return nil
}

// checkRedisConnectivity tests Redis connection with timeout
func (v *Validator) checkRedisConnectivity(ctx context.Context) error {
	log.Info().Msg("Checking Redis connectivity...")

	connCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	client := redis.NewClient(&redis.Options{
		Addr:     v.config.Redis.GetRedisAddr(),
		Password: v.config.Redis.Password,
		DB:       v.config.Redis.DB,
	})
	defer client.Close()

	if err := client.Ping(connCtx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis at %s: %w", v.config.Redis.GetRedisAddr(), err)
	}

	log.Info().
		Str("addr", v.config.Redis.GetRedisAddr()).
		Int("db", v.config.Redis.DB).
		Msg("Redis connectivity check passed")

	return nil
}

// checkNATSConnectivity opens and closes a NATS connection
func (v *Validator) checkNATSConnectivity() error {
	log.Info().Msg("Checking NATS connectivity...")

	nc, err := nats.Connect(v.config.NATS.URL, nats.Timeout(v.options.Timeout))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", v.config.NATS.URL, err)
	}
	defer nc.Close()

	log.Info().Str("url", v.config.NATS.URL).Msg("NATS connectivity check passed")
	return nil
}
