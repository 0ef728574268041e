package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	// Validate App configuration
	errors = append(errors, c.validateApp()...)

	// Validate provider list
	errors = append(errors, c.validateProviders()...)

	// Validate repair budget
	errors = append(errors, c.validateRepair()...)

	// Validate guard and rate limit settings
	errors = append(errors, c.validateGuard()...)
	errors = append(errors, c.validateRateLimit()...)

	// Validate cache and Redis configuration
	errors = append(errors, c.validateCache()...)

	// Validate NATS configuration
	errors = append(errors, c.validateNATS()...)

	// Validate API configuration
	errors = append(errors, c.validateAPI()...)

	// Validate environment-specific requirements
	errors = append(errors, c.validateEnvironmentRequirements()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	validEnvs := []string{"development", "staging", "production"}
	if c.App.Environment == "" {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: "Environment is required (development, staging, or production)",
		})
	} else if !slices.Contains(validEnvs, c.App.Environment) {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
		})
	}

	if c.App.LogLevel == "" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: "Log level is required (debug, info, warn, error)",
		})
	}

	if c.App.LogFormat != "" && c.App.LogFormat != "json" && c.App.LogFormat != "console" {
		errors = append(errors, ValidationError{
			Field:   "app.log_format",
			Message: fmt.Sprintf("Invalid log format '%s'. Must be 'json' or 'console'", c.App.LogFormat),
		})
	}

	return errors
}

func (c *Config) validateProviders() ValidationErrors {
	var errors ValidationErrors

	if len(c.EnabledProviders()) == 0 {
		errors = append(errors, ValidationError{
			Field:   "providers",
			Message: "At least one enabled provider is required",
		})
	}

	validKinds := []string{ProviderGemini, ProviderHuggingFace, ProviderOpenAI}
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		field := fmt.Sprintf("providers[%d]", i)

		if p.Name == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".name",
				Message: "Provider name is required",
			})
		} else if seen[p.Name] {
			errors = append(errors, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("Duplicate provider name '%s'", p.Name),
			})
		}
		seen[p.Name] = true

		if !slices.Contains(validKinds, p.Kind) {
			errors = append(errors, ValidationError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("Invalid provider kind '%s'. Must be one of: %v", p.Kind, validKinds),
			})
		}

		if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
			errors = append(errors, ValidationError{
				Field:   field + ".temperature",
				Message: fmt.Sprintf("Invalid temperature %.2f. Must be between 0-2", *p.Temperature),
			})
		}

		if p.MaxTokens < 0 {
			errors = append(errors, ValidationError{
				Field:   field + ".max_tokens",
				Message: "max_tokens must not be negative",
			})
		}

		if p.Timeout != 0 && p.Timeout < 1000 {
			errors = append(errors, ValidationError{
				Field:   field + ".timeout",
				Message: "Provider timeout must be at least 1000ms",
			})
		}

		if p.Kind == ProviderOpenAI && p.Enabled && p.Endpoint == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".endpoint",
				Message: "Endpoint is required for openai providers",
			})
		}
	}

	return errors
}

func (c *Config) validateRepair() ValidationErrors {
	var errors ValidationErrors

	if c.Repair.MaxAttempts < 0 || c.Repair.MaxAttempts > 1 {
		errors = append(errors, ValidationError{
			Field:   "repair.max_attempts",
			Message: fmt.Sprintf("Invalid max_attempts %d. Must be 0 or 1", c.Repair.MaxAttempts),
		})
	}

	return errors
}

func (c *Config) validateGuard() ValidationErrors {
	var errors ValidationErrors

	if !c.Guard.Enabled {
		return errors
	}

	if c.Guard.FailureRatio <= 0 || c.Guard.FailureRatio > 1 {
		errors = append(errors, ValidationError{
			Field:   "guard.failure_ratio",
			Message: fmt.Sprintf("Invalid failure_ratio %.2f. Must be between 0-1", c.Guard.FailureRatio),
		})
	}

	for field, value := range map[string]string{
		"guard.open_timeout":   c.Guard.OpenTimeout,
		"guard.count_interval": c.Guard.CountInterval,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("Invalid duration '%s'", value),
			})
		}
	}

	return errors
}

func (c *Config) validateRateLimit() ValidationErrors {
	var errors ValidationErrors

	if !c.RateLimit.Enabled {
		return errors
	}

	if c.RateLimit.RequestsPerSecond <= 0 {
		errors = append(errors, ValidationError{
			Field:   "rate_limit.requests_per_second",
			Message: "requests_per_second must be greater than 0",
		})
	}

	if c.RateLimit.Burst < 1 {
		errors = append(errors, ValidationError{
			Field:   "rate_limit.burst",
			Message: "burst must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateCache() ValidationErrors {
	var errors ValidationErrors

	if !c.Cache.Enabled {
		return errors
	}

	if c.Cache.TTL != "" {
		if ttl, err := time.ParseDuration(c.Cache.TTL); err != nil || ttl <= 0 {
			errors = append(errors, ValidationError{
				Field:   "cache.ttl",
				Message: fmt.Sprintf("Invalid cache TTL '%s'", c.Cache.TTL),
			})
		}
	}

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required when the cache is enabled",
		})
	}

	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Redis.Port),
		})
	}

	return errors
}

func (c *Config) validateNATS() ValidationErrors {
	var errors ValidationErrors

	if !c.NATS.Enabled {
		return errors
	}

	if c.NATS.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL is required",
		})
	} else if !strings.HasPrefix(c.NATS.URL, "nats://") {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL must start with 'nats://'",
		})
	}

	if c.NATS.RequestSubject == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.request_subject",
			Message: "NATS request subject is required",
		})
	}

	return errors
}

func (c *Config) validateAPI() ValidationErrors {
	var errors ValidationErrors

	if c.API.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "api.port",
			Message: "API port is required",
		})
	} else if c.API.Port < 1 || c.API.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "api.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.API.Port),
		})
	}

	return errors
}

func (c *Config) validateEnvironmentRequirements() ValidationErrors {
	var errors ValidationErrors

	if c.App.Environment != "production" {
		return errors
	}

	// Production needs credentials for every enabled hosted provider
	for i, p := range c.Providers {
		if !p.Enabled || p.Kind == ProviderOpenAI {
			continue
		}
		if p.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("providers[%d].api_key", i),
				Message: fmt.Sprintf("API key for provider '%s' is required in production", p.Name),
			})
		}
	}

	errors = append(errors, ValidateProductionSecrets(c)...)

	return errors
}
