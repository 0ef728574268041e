// curriculumgen serves structured JSON generation over HTTP and NATS, routing
// each request through the configured LLM providers in priority order.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/curriculumgen/internal/app"
	"github.com/ajitpratap0/curriculumgen/internal/config"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./configs/config.yaml)")
	verifyKeys := flag.Bool("verify-keys", false, "Verify provider keys and backing services, then exit")
	flushCache := flag.Bool("flush-cache", false, "Delete all cached results, then exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(config.GetVersion())
		return
	}

	config.InitLogger("info", "console")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	if *verifyKeys {
		os.Exit(verify(ctx, cfg))
	}

	if *flushCache {
		os.Exit(flush(ctx, cfg))
	}

	log.Info().
		Str("version", cfg.App.Version).
		Str("environment", cfg.App.Environment).
		Msg("Starting curriculumgen")

	validateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = config.NewValidator(cfg, config.DefaultValidatorOptions()).ValidateStartup(validateCtx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Startup validation failed")
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize generation service")
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Generation service stopped with error")
		a.Close()
		os.Exit(1)
	}

	log.Info().Msg("Shutdown complete")
}

// loadConfig exports Vault secrets into the environment, when Vault is
// enabled, and then loads the configuration.
func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	if err := config.LoadSecretsFromVault(ctx, config.GetVaultConfigFromEnv()); err != nil {
		return nil, err
	}
	return config.Load(path)
}

// verify checks provider keys and backing services and returns the exit code
func verify(ctx context.Context, cfg *config.Config) int {
	log.Info().Msg("Verifying provider keys and backing services...")

	if errs := config.ValidateProductionSecrets(cfg); len(errs) > 0 {
		for _, e := range errs {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return 1
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := config.NewValidator(cfg, config.DefaultValidatorOptions()).ValidateStartup(verifyCtx); err != nil {
		log.Error().Err(err).Msg("Verification failed")
		return 1
	}

	for _, p := range cfg.EnabledProviders() {
		log.Info().
			Str("provider", p.Name).
			Str("kind", p.Kind).
			Str("model", p.Model).
			Bool("key_configured", p.APIKey != "").
			Msg("Provider configured")
	}

	log.Info().Int("providers", len(cfg.EnabledProviders())).Msg("All provider keys and services verified")
	return 0
}

// flush clears the result cache and returns the exit code
func flush(ctx context.Context, cfg *config.Config) int {
	cfg.NATS.Enabled = false

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize generation service")
		return 1
	}
	defer a.Close()

	deleted, err := a.FlushCache(ctx)
	if err != nil {
		log.Error().Err(err).Int("keys_deleted", deleted).Msg("Failed to flush result cache")
		return 1
	}

	log.Info().Int("keys_deleted", deleted).Msg("Result cache flushed")
	return 0
}
