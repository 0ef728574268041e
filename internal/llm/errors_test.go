package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ProviderError
		want string
	}{
		{
			name: "status and message",
			err:  &ProviderError{Provider: "gemini", Kind: KindQuotaExhausted, StatusCode: 429, Message: "RESOURCE_EXHAUSTED"},
			want: "gemini: quota_exhausted (status 429): RESOURCE_EXHAUSTED",
		},
		{
			name: "wrapped error only",
			err:  &ProviderError{Provider: "hf", Kind: KindUnavailable, Err: errors.New("dial tcp: refused")},
			want: "hf: unavailable: dial tcp: refused",
		},
		{
			name: "kind only",
			err:  &ProviderError{Provider: "openai", Kind: KindMalformed},
			want: "openai: malformed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("call failed: %w", NewProviderError("gemini", KindQuotaExhausted, errors.New("quota")))

	kind, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindQuotaExhausted, kind)
	assert.True(t, IsQuotaExhausted(wrapped))
	assert.False(t, IsUnavailable(wrapped))

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, IsQuotaExhausted(nil))
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "unknown", KindUnknown.String())
	assert.Equal(t, "unavailable", KindUnavailable.String())
	assert.Equal(t, "quota_exhausted", KindQuotaExhausted.String())
	assert.Equal(t, "malformed", KindMalformed.String())
	assert.Equal(t, "unknown", ErrorKind(42).String())
}

func TestOutcomeFor(t *testing.T) {
	tests := []struct {
		err  error
		want AttemptOutcome
	}{
		{ErrNoJSONFound, OutcomeNoJSON},
		{ErrBreakerOpen, OutcomeSkipped},
		{&RepairFailedError{Provider: "a", Cause: errors.New("bad")}, OutcomeRepairFailed},
		{NewProviderError("a", KindUnavailable, nil), OutcomeUnavailable},
		{NewProviderError("a", KindQuotaExhausted, nil), OutcomeQuotaExhausted},
		{NewProviderError("a", KindMalformed, nil), OutcomeMalformed},
		{NewProviderError("a", KindUnknown, nil), OutcomeUnknown},
		{errors.New("untyped"), OutcomeUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, outcomeFor(tt.err), "outcomeFor(%v)", tt.err)
	}
}

func TestAllProvidersFailedError(t *testing.T) {
	quotaErr := NewProviderError("a", KindQuotaExhausted, errors.New("quota"))
	failed := &AllProvidersFailedError{Attempts: []Attempt{
		{Provider: "a", Outcome: OutcomeQuotaExhausted, Err: quotaErr},
		{Provider: "b", Outcome: OutcomeNoJSON, Err: ErrNoJSONFound},
	}}

	assert.Contains(t, failed.Error(), "all 2 providers failed")
	assert.Contains(t, failed.Error(), "a: quota_exhausted")
	assert.ErrorIs(t, failed, ErrNoJSONFound)
	assert.True(t, IsQuotaExhausted(failed))
	assert.False(t, failed.AllUnavailable())
	assert.False(t, failed.AllUnusableOutput())

	allSkipped := &AllProvidersFailedError{Attempts: []Attempt{
		{Provider: "a", Outcome: OutcomeSkipped, Err: ErrBreakerOpen},
	}}
	assert.True(t, allSkipped.AllUnavailable())
	assert.False(t, allSkipped.AllUnusableOutput(), "no provider was called")

	assert.False(t, (&AllProvidersFailedError{}).AllUnavailable())
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status  int
		message string
		want    ErrorKind
	}{
		{http.StatusTooManyRequests, "", KindQuotaExhausted},
		{http.StatusPaymentRequired, "", KindQuotaExhausted},
		{http.StatusBadRequest, "You exceeded your monthly included credits", KindQuotaExhausted},
		{http.StatusForbidden, "insufficient_quota", KindQuotaExhausted},
		{http.StatusInternalServerError, "", KindUnavailable},
		{http.StatusServiceUnavailable, "Model is currently loading", KindUnavailable},
		{http.StatusRequestTimeout, "", KindUnavailable},
		{http.StatusBadRequest, "invalid model", KindUnknown},
		{http.StatusUnauthorized, "invalid api key", KindUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyStatus(tt.status, tt.message), "status %d %q", tt.status, tt.message)
	}
}

func TestClassifyTransport(t *testing.T) {
	pe := ClassifyTransport("gemini", context.DeadlineExceeded)
	assert.Equal(t, KindUnavailable, pe.Kind)
	assert.Equal(t, "request timed out", pe.Message)
	assert.ErrorIs(t, pe, context.DeadlineExceeded)

	pe = ClassifyTransport("gemini", fmt.Errorf("do: %w", context.Canceled))
	assert.Equal(t, "request cancelled", pe.Message)

	pe = ClassifyTransport("gemini", errors.New("connection refused"))
	assert.Equal(t, KindUnavailable, pe.Kind)
	assert.Equal(t, "connection refused", pe.Message)
}

func TestIsQuotaMessage(t *testing.T) {
	assert.True(t, IsQuotaMessage("429 RESOURCE_EXHAUSTED: Quota exceeded for metric"))
	assert.True(t, IsQuotaMessage("Rate limit reached"))
	assert.False(t, IsQuotaMessage("model not found"))
}
