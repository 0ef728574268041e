// Package cache provides a Redis-backed store for successful generation results.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/curriculumgen/internal/llm"
	"github.com/ajitpratap0/curriculumgen/internal/metrics"
)

const (
	keyPrefix  = "curriculumgen:result:"
	opTimeout  = 500 * time.Millisecond
	defaultTTL = time.Hour
)

// ErrNotInitialized is returned by writes on a nil cache.
var ErrNotInitialized = errors.New("cache not initialized")

// RedisResultCache stores results as JSON under curriculumgen:result:<key>
type RedisResultCache struct {
	client *redis.Client
}

// ResultEntry is the stored form of an llm.Result
type ResultEntry struct {
	Output    json.RawMessage `json:"output"`
	Provider  string          `json:"provider"`
	Retried   bool            `json:"retried"`
	Truncated bool            `json:"truncated"`
	CachedAt  time.Time       `json:"cached_at"`
}

// NewRedisResultCache creates a Redis-backed result cache.
// If client is nil, returns nil (optional Redis support)
func NewRedisResultCache(client *redis.Client) *RedisResultCache {
	if client == nil {
		return nil
	}
	return &RedisResultCache{client: client}
}

// Get returns the cached result for key, or (nil, nil) on a miss. A nil cache
// always misses.
func (c *RedisResultCache) Get(ctx context.Context, key string) (*llm.Result, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	// Use a short timeout for cache operations to prevent blocking
	cacheCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	metrics.RecordRedisOperation(metrics.CacheOpGet)
	cached, err := c.client.Get(cacheCtx, buildKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheLookup("miss")
		return nil, nil
	}
	if err != nil {
		metrics.RecordCacheLookup("error")
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var entry ResultEntry
	if err := json.Unmarshal(cached, &entry); err != nil {
		metrics.RecordCacheLookup("error")
		return nil, fmt.Errorf("failed to unmarshal cached result: %w", err)
	}

	var output map[string]any
	if err := json.Unmarshal(entry.Output, &output); err != nil {
		metrics.RecordCacheLookup("error")
		return nil, fmt.Errorf("failed to unmarshal cached output: %w", err)
	}

	metrics.RecordCacheLookup("hit")
	log.Debug().
		Str("key", key).
		Str("provider", entry.Provider).
		Time("cached_at", entry.CachedAt).
		Msg("Cache hit for result")

	return &llm.Result{
		Output:    output,
		Raw:       entry.Output,
		Provider:  entry.Provider,
		Retried:   entry.Retried,
		Truncated: entry.Truncated,
	}, nil
}

// Set stores result under key. A zero ttl uses the default of one hour.
func (c *RedisResultCache) Set(ctx context.Context, key string, result *llm.Result, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return ErrNotInitialized
	}
	if result == nil || len(result.Raw) == 0 {
		return errors.New("refusing to cache empty result")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	data, err := json.Marshal(ResultEntry{
		Output:    result.Raw,
		Provider:  result.Provider,
		Retried:   result.Retried,
		Truncated: result.Truncated,
		CachedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal result entry: %w", err)
	}

	cacheCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	metrics.RecordRedisOperation(metrics.CacheOpSet)
	if err := c.client.Set(cacheCtx, buildKey(key), data, ttl).Err(); err != nil {
		metrics.RecordError("redis_set", metrics.ComponentCache)
		return fmt.Errorf("redis set failed: %w", err)
	}

	log.Debug().
		Str("key", key).
		Str("provider", result.Provider).
		Dur("ttl", ttl).
		Msg("Cached result")

	return nil
}

// Clear removes all cached results
func (c *RedisResultCache) Clear(ctx context.Context) (int, error) {
	if c == nil || c.client == nil {
		return 0, ErrNotInitialized
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	iter := c.client.Scan(cacheCtx, 0, keyPrefix+"*", 0).Iterator()
	count := 0

	for iter.Next(cacheCtx) {
		if err := c.client.Del(cacheCtx, iter.Val()).Err(); err != nil {
			log.Warn().
				Err(err).
				Str("key", iter.Val()).
				Msg("Failed to delete cache key")
			continue
		}
		count++
	}

	if err := iter.Err(); err != nil {
		return count, fmt.Errorf("cache scan error: %w", err)
	}

	log.Info().Int("keys_deleted", count).Msg("Cleared result cache")
	return count, nil
}

// Health checks if the Redis connection is healthy
func (c *RedisResultCache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return ErrNotInitialized
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Ping(cacheCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func buildKey(key string) string {
	return keyPrefix + key
}

var _ llm.Cache = (*RedisResultCache)(nil)
