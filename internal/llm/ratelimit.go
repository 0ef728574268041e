package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedProvider spaces out calls to a provider so a burst of Generate
// calls does not itself cause quota exhaustion.
type RateLimitedProvider struct {
	next    Provider
	limiter *rate.Limiter
}

// NewRateLimitedProvider allows rps calls per second with the given burst.
func NewRateLimitedProvider(next Provider, rps float64, burst int) *RateLimitedProvider {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedProvider{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (p *RateLimitedProvider) Name() string {
	return p.next.Name()
}

func (p *RateLimitedProvider) Call(ctx context.Context, prompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", NewProviderError(p.Name(), KindUnavailable, err)
	}
	return p.next.Call(ctx, prompt)
}
