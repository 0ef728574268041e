// Package app wires configuration into a running generation service: the
// provider chain, the Router and its observers, the optional Redis cache,
// and the NATS, HTTP and metrics front ends.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/curriculumgen/internal/api"
	"github.com/ajitpratap0/curriculumgen/internal/cache"
	"github.com/ajitpratap0/curriculumgen/internal/config"
	"github.com/ajitpratap0/curriculumgen/internal/events"
	"github.com/ajitpratap0/curriculumgen/internal/llm"
	"github.com/ajitpratap0/curriculumgen/internal/llm/providers"
	"github.com/ajitpratap0/curriculumgen/internal/metrics"
)

// App holds the components built from one Config
type App struct {
	Config    *config.Config
	Providers *providers.Set
	Router    *llm.Router
	Generator llm.Generator // Router, or the caching wrapper around it

	nats  *nats.Conn              // nil when NATS is disabled
	redis *redis.Client           // nil when the cache is disabled
	cache *cache.RedisResultCache // nil when the cache is disabled
	log   zerolog.Logger
}

// New builds the provider chain and connects to NATS and Redis when enabled.
// Close releases the connections.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Config: cfg,
		log:    config.NewLogger("app"),
	}

	set, err := providers.Build(ctx, cfg, providers.Options{
		OnGuardStateChange: func(provider, from, to string) {
			metrics.UpdateGuardState(provider, to)
			a.log.Warn().
				Str("provider", provider).
				Str("from", from).
				Str("to", to).
				Msg("Provider transport guard changed state")
		},
	})
	if err != nil {
		return nil, err
	}
	a.Providers = set

	observers := llm.MultiObserver{metrics.NewObserver()}

	if cfg.NATS.Enabled {
		nc, err := events.Connect(cfg.NATS.URL, cfg.App.Name)
		if err != nil {
			return nil, err
		}
		a.nats = nc
		observers = append(observers, events.NewPublisher(nc, cfg.NATS.EventSubject))
	}

	router, err := llm.NewRouter(set.Providers,
		llm.WithRepairer(llm.Repairer{MaxAttempts: cfg.Repair.MaxAttempts}),
		llm.WithObserver(observers),
		llm.WithLogger(config.NewLogger("llm-router")),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create router: %w", err)
	}
	a.Router = router
	a.Generator = router

	if cfg.Cache.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.cache = cache.NewRedisResultCache(a.redis)
		a.Generator = llm.NewCachingGenerator(router, a.cache, cfg.Cache.GetTTL())

		// Cache errors fall through to the providers, so an unreachable Redis
		// degrades to uncached generation.
		if err := a.cache.Health(ctx); err != nil {
			a.log.Warn().Err(err).Msg("Result cache unreachable, requests will not be cached")
		}
		a.log.Info().
			Str("redis_addr", cfg.Redis.GetRedisAddr()).
			Dur("ttl", cfg.Cache.GetTTL()).
			Msg("Result cache enabled")
	}

	return a, nil
}

// FlushCache deletes every cached result and returns the number removed
func (a *App) FlushCache(ctx context.Context) (int, error) {
	if a.cache == nil {
		return 0, errors.New("result cache is not enabled")
	}
	return a.cache.Clear(ctx)
}

// NATS returns the NATS connection, or nil when NATS is disabled
func (a *App) NATS() *nats.Conn {
	return a.nats
}

// Run serves until ctx is cancelled: the HTTP API, the metrics server and
// gauge updater when metrics are enabled, and the NATS worker when NATS is
// enabled. The first component to fail stops the others.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	server := api.NewServer(api.Config{
		Host:      a.Config.API.Host,
		Port:      a.Config.API.Port,
		Version:   a.Config.App.Version,
		Generator: a.Generator,
		Breakers:  a.Router,
		Guards:    a.Providers,
	})
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	if a.Config.Monitoring.EnableMetrics {
		metricsServer := metrics.NewServer(a.Config.Monitoring.PrometheusPort, log.Logger)
		g.Go(func() error {
			return metricsServer.Run(ctx)
		})

		updater := metrics.NewUpdater(a.Router, a.Providers, 15*time.Second)
		g.Go(func() error {
			updater.Start(ctx)
			return nil
		})
	}

	if a.nats != nil {
		worker := events.NewWorker(a.nats, a.Generator, events.WorkerConfig{
			Subject:    a.Config.NATS.RequestSubject,
			QueueGroup: a.Config.NATS.QueueGroup,
		})
		g.Go(func() error {
			return worker.Run(ctx)
		})
	}

	a.log.Info().
		Strs("providers", a.Router.Providers()).
		Str("api_addr", a.Config.API.GetAPIAddr()).
		Bool("metrics", a.Config.Monitoring.EnableMetrics).
		Bool("nats", a.nats != nil).
		Bool("cache", a.redis != nil).
		Msg("Generation service running")

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close drains the NATS connection and closes the Redis client
func (a *App) Close() {
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to drain NATS connection")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
}
