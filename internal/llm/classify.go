package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// quotaMarkers are vendor error fragments that mean the account is out of
// requests, tokens or credit.
var quotaMarkers = []string{
	"resource_exhausted",
	"resource exhausted",
	"insufficient_quota",
	"quota",
	"rate limit",
	"rate_limit",
	"too many requests",
	"billing",
	"payment required",
	"exceeded your monthly included credits",
}

// IsQuotaMessage reports whether a vendor error message signals quota or rate
// exhaustion.
func IsQuotaMessage(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range quotaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ClassifyStatus maps an HTTP error status and the vendor's error message onto
// an ErrorKind. It is shared by the HTTP-based providers.
func ClassifyStatus(status int, message string) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusPaymentRequired:
		return KindQuotaExhausted
	case status >= 500:
		return KindUnavailable
	case status == http.StatusRequestTimeout:
		return KindUnavailable
	case IsQuotaMessage(message):
		return KindQuotaExhausted
	default:
		return KindUnknown
	}
}

// ClassifyTransport maps an error from sending a request, before any response
// was received. Everything at this layer is unavailability.
func ClassifyTransport(provider string, err error) *ProviderError {
	pe := NewProviderError(provider, KindUnavailable, err)

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		pe.Message = "request timed out"
	case errors.Is(err, context.Canceled):
		pe.Message = "request cancelled"
	case errors.As(err, &netErr) && netErr.Timeout():
		pe.Message = "request timed out"
	}
	return pe
}
