package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// Common placeholder values that should never reach production
var commonPlaceholders = []string{
	"changeme",
	"please_change_me",
	"your_api_key",
	"your-api-key",
	"your_hf_token",
	"your_secret",
	"replace_me",
	"example",
	"sample",
	"dummy",
	"xxxxxxxx",
}

// minAPIKeyLength is shorter than any key issued by the supported providers
const minAPIKeyLength = 16

// ValidateAPIKey checks a provider API key for placeholder values and an
// implausible length. Keys are issued by the provider, so character
// composition is not checked.
func ValidateAPIKey(key, name string) []string {
	var problems []string

	if key == "" {
		return append(problems, fmt.Sprintf("%s cannot be empty", name))
	}

	lower := strings.ToLower(key)
	for _, placeholder := range commonPlaceholders {
		if strings.Contains(lower, placeholder) {
			return append(problems, fmt.Sprintf("%s appears to be a placeholder value (%s)", name, placeholder))
		}
	}

	if len(key) < minAPIKeyLength {
		problems = append(problems, fmt.Sprintf("%s must be at least %d characters (got %d)", name, minAPIKeyLength, len(key)))
	}

	return problems
}

// ValidateProductionSecrets validates provider keys and service passwords for
// production use
func ValidateProductionSecrets(cfg *Config) ValidationErrors {
	var errors ValidationErrors

	for i, p := range cfg.Providers {
		if !p.Enabled || p.APIKey == "" {
			continue
		}
		for _, problem := range ValidateAPIKey(p.APIKey, fmt.Sprintf("%s API key", p.Name)) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("providers[%d].api_key", i),
				Message: problem,
			})
		}
	}

	if cfg.Cache.Enabled && cfg.Redis.Password != "" {
		for _, problem := range ValidateAPIKey(cfg.Redis.Password, "Redis password") {
			errors = append(errors, ValidationError{
				Field:   "redis.password",
				Message: problem,
			})
		}
	}

	return errors
}

// ================================================
// HashiCorp Vault Integration
// ================================================

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled    bool   // Enable Vault integration
	Address    string // Vault server address (e.g., "https://vault.example.com:8200")
	Token      string // Vault authentication token
	AuthMethod string // Authentication method: "token" or "approle"
	MountPath  string // Secrets mount path (default: "secret")
	SecretPath string // Base path for application secrets (e.g., "curriculumgen/production")
	Namespace  string // Vault namespace (for Vault Enterprise)
}

// VaultClient wraps HashiCorp Vault client for secrets management
type VaultClient struct {
	client *vault.Client
	config VaultConfig
}

// NewVaultClient creates a new Vault client from configuration
func NewVaultClient(cfg VaultConfig) (*VaultClient, error) {
	if !cfg.Enabled {
		return nil, errors.New("vault is not enabled in configuration")
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	switch cfg.AuthMethod {
	case "token", "":
		if cfg.Token == "" {
			cfg.Token = os.Getenv("VAULT_TOKEN")
		}
		if cfg.Token == "" {
			return nil, errors.New("VAULT_TOKEN not set for token authentication")
		}
		client.SetToken(cfg.Token)

	case "approle":
		if err := authenticateAppRole(client); err != nil {
			return nil, fmt.Errorf("AppRole authentication failed: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported Vault auth method: %s", cfg.AuthMethod)
	}

	log.Info().
		Str("address", cfg.Address).
		Str("auth_method", cfg.AuthMethod).
		Str("secret_path", cfg.SecretPath).
		Msg("Vault client initialized")

	return &VaultClient{client: client, config: cfg}, nil
}

// GetSecret retrieves a secret from Vault. path is relative to SecretPath.
func (vc *VaultClient) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	fullPath := fmt.Sprintf("%s/data/%s/%s", vc.config.MountPath, vc.config.SecretPath, path)

	log.Debug().Str("path", fullPath).Msg("Reading secret from Vault")

	secret, err := vc.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("secret not found at path: %s", fullPath)
	}

	// For KV v2, secrets are nested under "data" key
	if data, ok := secret.Data["data"].(map[string]interface{}); ok {
		return data, nil
	}
	return secret.Data, nil
}

// providerKeyEnv maps Vault secret keys to the environment variables the
// provider configuration reads.
var providerKeyEnv = map[string]string{
	"gemini_api_key": "GEMINI_API_KEY",
	"hf_api_key":     "HF_API_KEY",
	"openai_api_key": "OPENAI_API_KEY",
}

// LoadSecretsFromVault exports provider API keys stored under "<secret path>/llm"
// as environment variables. Call it before Load so api_key_env picks them up.
func LoadSecretsFromVault(ctx context.Context, vaultCfg VaultConfig) error {
	if !vaultCfg.Enabled {
		log.Info().Msg("Vault integration disabled - using environment variables for secrets")
		return nil
	}

	vaultClient, err := NewVaultClient(vaultCfg)
	if err != nil {
		return fmt.Errorf("failed to create Vault client: %w", err)
	}

	loaded, err := vaultClient.exportProviderKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to load provider secrets: %w", err)
	}

	log.Info().Int("keys", loaded).Msg("Provider secrets loaded from Vault")
	return nil
}

func (vc *VaultClient) exportProviderKeys(ctx context.Context) (int, error) {
	secrets, err := vc.GetSecret(ctx, "llm")
	if err != nil {
		return 0, err
	}

	loaded := 0
	for secretKey, envVar := range providerKeyEnv {
		value, ok := secrets[secretKey].(string)
		if !ok || value == "" {
			continue
		}
		if err := os.Setenv(envVar, value); err != nil {
			log.Warn().Err(err).Str("env", envVar).Msg("Failed to export provider key")
			continue
		}
		loaded++
		log.Debug().Str("env", envVar).Msg("Loaded provider key from Vault")
	}
	return loaded, nil
}

// authenticateAppRole performs AppRole authentication
func authenticateAppRole(client *vault.Client) error {
	roleID := os.Getenv("VAULT_ROLE_ID")
	secretID := os.Getenv("VAULT_SECRET_ID")
	if roleID == "" || secretID == "" {
		return errors.New("VAULT_ROLE_ID and VAULT_SECRET_ID must be set for AppRole authentication")
	}

	secret, err := client.Logical().Write("auth/approle/login", map[string]interface{}{
		"role_id":   roleID,
		"secret_id": secretID,
	})
	if err != nil {
		return fmt.Errorf("failed to login with AppRole: %w", err)
	}
	if secret == nil || secret.Auth == nil {
		return errors.New("AppRole authentication returned no token")
	}

	client.SetToken(secret.Auth.ClientToken)
	log.Info().Msg("Authenticated to Vault using AppRole")
	return nil
}

// GetVaultConfigFromEnv creates VaultConfig from environment variables
func GetVaultConfigFromEnv() VaultConfig {
	if os.Getenv("VAULT_ENABLED") != "true" {
		return VaultConfig{Enabled: false}
	}

	return VaultConfig{
		Enabled:    true,
		Address:    getEnvOrDefault("VAULT_ADDR", "http://localhost:8200"),
		Token:      os.Getenv("VAULT_TOKEN"),
		AuthMethod: getEnvOrDefault("VAULT_AUTH_METHOD", "token"),
		MountPath:  getEnvOrDefault("VAULT_MOUNT_PATH", "secret"),
		SecretPath: getEnvOrDefault("VAULT_SECRET_PATH", "curriculumgen/production"),
		Namespace:  os.Getenv("VAULT_NAMESPACE"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
