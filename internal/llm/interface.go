package llm

import "context"

// Generator produces structured output for a prompt. Both the Router and the
// caching wrapper implement it, so callers can use either transparently.
type Generator interface {
	Generate(ctx context.Context, system string, payload any) (*Result, error)
}

// Ensure Router implements Generator and Completer
var (
	_ Generator = (*Router)(nil)
	_ Completer = (*Router)(nil)
)

// Ensure CachingGenerator implements Generator and Completer
var (
	_ Generator = (*CachingGenerator)(nil)
	_ Completer = (*CachingGenerator)(nil)
)

// Ensure decorators implement Provider
var (
	_ Provider = (*GuardedProvider)(nil)
	_ Provider = (*RateLimitedProvider)(nil)
	_ Provider = ProviderFunc{}
)
