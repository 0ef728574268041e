package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Cache stores successful results keyed by prompt hash. Get returns (nil, nil)
// on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*Result, error)
	Set(ctx context.Context, key string, result *Result, ttl time.Duration) error
}

// CachingGenerator serves repeated prompts from a Cache and collapses
// concurrent identical prompts into one upstream Generate call. Failures are
// never cached, so a provider that recovers is used on the next call.
type CachingGenerator struct {
	next        Completer
	cache       Cache
	ttl         time.Duration
	callTimeout time.Duration
	group       singleflight.Group
}

// DefaultCallTimeout bounds one shared upstream call
const DefaultCallTimeout = 5 * time.Minute

// Completer runs an already composed prompt. *Router implements it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (*Result, error)
}

// NewCachingGenerator wraps next. A nil cache only de-duplicates in-flight calls.
func NewCachingGenerator(next Completer, cache Cache, ttl time.Duration) *CachingGenerator {
	return &CachingGenerator{next: next, cache: cache, ttl: ttl, callTimeout: DefaultCallTimeout}
}

// WithCallTimeout sets the upper bound of one shared upstream call.
func (c *CachingGenerator) WithCallTimeout(d time.Duration) *CachingGenerator {
	if d > 0 {
		c.callTimeout = d
	}
	return c
}

// CacheKey returns the cache key of a composed prompt.
func CacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// Generate composes the prompt and returns a cached result when one exists.
func (c *CachingGenerator) Generate(ctx context.Context, system string, payload any) (*Result, error) {
	prompt, err := Prompt{System: system, Payload: payload}.Compose()
	if err != nil {
		return nil, err
	}
	return c.Complete(ctx, prompt)
}

// Complete is Generate for an already composed prompt.
func (c *CachingGenerator) Complete(ctx context.Context, prompt string) (*Result, error) {
	key := CacheKey(prompt)

	if c.cache != nil {
		cached, err := c.cache.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Result cache read failed")
		} else if cached != nil {
			log.Debug().Str("key", key).Str("provider", cached.Provider).Msg("Result cache hit")
			return cached, nil
		}
	}

	// The shared call outlives any one caller: it runs detached from the
	// caller that started it, and each caller stops waiting on its own ctx.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
		defer cancel()

		result, err := c.next.Complete(callCtx, prompt)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			if err := c.cache.Set(callCtx, key, result, c.ttl); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Result cache write failed")
			}
		}
		return result, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			requestID, _ := RequestIDFromContext(ctx)
			log.Debug().Str("key", key).Str("request_id", requestID).Msg("Joined in-flight generation")
		}
		return res.Val.(*Result), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
