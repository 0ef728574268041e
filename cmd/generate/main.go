// generate runs one generation request and prints the resulting JSON object.
// It calls the providers directly, or a running worker over NATS with -remote.
//
// Usage:
//
//	generate -system-file prompts/plan.txt -payload request.yaml
//	generate -refine "Make it six weeks" -payload plan.json
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/curriculumgen/internal/app"
	"github.com/ajitpratap0/curriculumgen/internal/config"
	"github.com/ajitpratap0/curriculumgen/internal/events"
	"github.com/ajitpratap0/curriculumgen/internal/llm"
	"github.com/ajitpratap0/curriculumgen/internal/refine"
)

var (
	configPath  = flag.String("config", "", "Path to config file (default: ./configs/config.yaml)")
	system      = flag.String("system", "", "System prompt")
	systemFile  = flag.String("system-file", "", "File containing the system prompt (overrides -system)")
	payloadPath = flag.String("payload", "", "YAML or JSON payload file, or - for stdin")
	instruction = flag.String("refine", "", "Refine the payload plan with this instruction instead of generating")
	remote      = flag.Bool("remote", false, "Send the request to a worker over NATS")
	outputFile  = flag.String("output", "", "Write the result to a file instead of stdout")
	timeout     = flag.Duration("timeout", 5*time.Minute, "Upper bound for the whole request")
	verbose     = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	config.InitLogger(level, "console")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		var failed *llm.AllProvidersFailedError
		var replyErr *events.ReplyError
		switch {
		case errors.As(err, &failed):
			for _, a := range failed.Attempts {
				log.Error().Err(a.Err).Str("provider", a.Provider).Str("outcome", string(a.Outcome)).Msg("Provider failed")
			}
		case errors.As(err, &replyErr):
			for _, a := range replyErr.Attempts {
				log.Error().Str("error", a.Error).Str("provider", a.Provider).Str("outcome", a.Outcome).Msg("Provider failed")
			}
		}
		log.Error().Err(err).Msg("Generation failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	prompt, err := readSystem(*system, *systemFile)
	if err != nil {
		return err
	}
	payload, err := readPayload(*payloadPath, os.Stdin)
	if err != nil {
		return err
	}
	if *instruction == "" && prompt == "" {
		return errors.New("-system or -system-file is required")
	}

	if err := config.LoadSecretsFromVault(ctx, config.GetVaultConfigFromEnv()); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if !*verbose {
		config.InitLogger(cfg.App.LogLevel, "console")
	}

	gen, closeFn, err := newGenerator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	var result *llm.Result
	if *instruction != "" {
		plan, ok := payload.(map[string]any)
		if !ok {
			return errors.New("-refine needs a plan object as -payload")
		}
		result, err = refine.New(gen).Refine(ctx, refine.Request{Instruction: *instruction, CurrentPlan: plan})
	} else {
		result, err = gen.Generate(ctx, prompt, payload)
	}
	if err != nil {
		return err
	}

	log.Info().
		Str("provider", result.Provider).
		Bool("retried", result.Retried).
		Bool("truncated", result.Truncated).
		Msg("Generation succeeded")

	out, err := json.MarshalIndent(result.Output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	out = append(out, '\n')

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, out, 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		log.Info().Str("file", *outputFile).Msg("Result written to file")
		return nil
	}

	_, err = os.Stdout.Write(out)
	return err
}

// newGenerator returns the local provider chain, or a NATS client when
// -remote is set
func newGenerator(ctx context.Context, cfg *config.Config) (llm.Generator, func(), error) {
	if *remote {
		nc, err := events.Connect(cfg.NATS.URL, cfg.App.Name+"-cli")
		if err != nil {
			return nil, nil, err
		}
		return events.NewClient(nc, cfg.NATS.RequestSubject, *timeout), nc.Close, nil
	}

	// The CLI answers one request, so the worker side of NATS stays off
	cfg.NATS.Enabled = false
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return a.Generator, a.Close, nil
}
