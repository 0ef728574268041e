package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider kinds understood by the provider factory
const (
	ProviderGemini      = "gemini"
	ProviderHuggingFace = "huggingface"
	ProviderOpenAI      = "openai"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Providers  []ProviderConfig `mapstructure:"providers"`
	Repair     RepairConfig     `mapstructure:"repair"`
	Guard      GuardConfig      `mapstructure:"guard"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	API        APIConfig        `mapstructure:"api"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // json or console
}

// ProviderConfig describes one generation provider. Providers are tried in
// the order they are listed.
type ProviderConfig struct {
	Name        string  `mapstructure:"name"`
	Kind        string  `mapstructure:"kind"`     // gemini, huggingface, openai
	Enabled     bool    `mapstructure:"enabled"`  // disabled providers are not built
	Model       string  `mapstructure:"model"`    // "gemini-2.5-flash-lite"
	Endpoint    string  `mapstructure:"endpoint"` // base URL override
	APIKey      string  `mapstructure:"api_key"`
	APIKeyEnv   string  `mapstructure:"api_key_env"` // environment variable holding the key
	Temperature *float64 `mapstructure:"temperature"` // nil keeps the provider default
	MaxTokens   int     `mapstructure:"max_tokens"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds
}

// RepairConfig bounds the corrective retry on malformed JSON
type RepairConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"` // 0 or 1
}

// GuardConfig configures the optional timed transport breaker per provider
type GuardConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	MinRequests     uint32  `mapstructure:"min_requests"`
	FailureRatio    float64 `mapstructure:"failure_ratio"`
	OpenTimeout     string  `mapstructure:"open_timeout"`
	HalfOpenMaxReqs uint32  `mapstructure:"half_open_max_requests"`
	CountInterval   string  `mapstructure:"count_interval"`
}

// RateLimitConfig configures client-side rate limiting per provider
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// CacheConfig configures the result cache
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	TTL     string `mapstructure:"ttl"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains NATS messaging settings
type NATSConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	URL            string `mapstructure:"url"`
	RequestSubject string `mapstructure:"request_subject"` // generate requests
	QueueGroup     string `mapstructure:"queue_group"`
	EventSubject   string `mapstructure:"event_subject"` // prefix for generation events
}

// APIConfig contains REST API settings
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("CURRICULUMGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyEnvKeys()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "curriculumgen")
	v.SetDefault("app.version", Version)
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Provider defaults: Gemini first, HuggingFace Inference as fallback
	v.SetDefault("providers", []map[string]interface{}{
		{
			"name":        "gemini",
			"kind":        ProviderGemini,
			"enabled":     true,
			"model":       "gemini-2.5-flash-lite",
			"api_key_env": "GEMINI_API_KEY",
			"timeout":     60000,
		},
		{
			"name":        "huggingface",
			"kind":        ProviderHuggingFace,
			"enabled":     true,
			"model":       "mistralai/Mistral-7B-Instruct-v0.2",
			"api_key_env": "HF_API_KEY",
			"temperature": 0.3,
			"max_tokens":  1500,
			"timeout":     120000,
		},
	})

	// Repair defaults
	v.SetDefault("repair.max_attempts", 1)

	// Guard defaults
	v.SetDefault("guard.enabled", false)
	v.SetDefault("guard.min_requests", 3)
	v.SetDefault("guard.failure_ratio", 0.6)
	v.SetDefault("guard.open_timeout", "60s")
	v.SetDefault("guard.half_open_max_requests", 2)
	v.SetDefault("guard.count_interval", "10s")

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_second", 1.0)
	v.SetDefault("rate_limit.burst", 2)

	// Cache defaults
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", "1h")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// NATS defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.request_subject", "curriculumgen.generate")
	v.SetDefault("nats.queue_group", "curriculumgen-workers")
	v.SetDefault("nats.event_subject", "curriculumgen.events")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// applyEnvKeys fills empty provider API keys from their api_key_env variable.
func (c *Config) applyEnvKeys() {
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.APIKey == "" && p.APIKeyEnv != "" {
			p.APIKey = os.Getenv(p.APIKeyEnv)
		}
	}
}

// EnabledProviders returns the enabled providers in priority order
func (c *Config) EnabledProviders() []ProviderConfig {
	enabled := make([]ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAPIAddr returns the API server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetTimeout returns the provider timeout as time.Duration
func (c *ProviderConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// GetOpenTimeout returns the guard open timeout, or the default when unset or invalid
func (c *GuardConfig) GetOpenTimeout() time.Duration {
	return ParseDuration(c.OpenTimeout, 60*time.Second)
}

// GetCountInterval returns the guard failure counting window
func (c *GuardConfig) GetCountInterval() time.Duration {
	return ParseDuration(c.CountInterval, 10*time.Second)
}

// GetTTL returns the cache TTL
func (c *CacheConfig) GetTTL() time.Duration {
	return ParseDuration(c.TTL, time.Hour)
}

// ParseDuration parses a duration string and returns the duration or a default value
func ParseDuration(durationStr string, defaultValue time.Duration) time.Duration {
	if durationStr == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(durationStr)
	if err != nil {
		return defaultValue
	}
	return duration
}
