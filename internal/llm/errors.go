package llm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies a provider failure so the Router can act on it without
// inspecting error text.
type ErrorKind int

const (
	// KindUnknown is an error payload the provider could not classify further.
	KindUnknown ErrorKind = iota
	// KindUnavailable is a transport-level failure: connection errors, timeouts, 5xx.
	KindUnavailable
	// KindQuotaExhausted means the provider reported resource or quota exhaustion.
	// It trips the provider's breaker for the rest of the process lifetime.
	KindQuotaExhausted
	// KindMalformed is a response whose envelope could not be interpreted.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindQuotaExhausted:
		return "quota_exhausted"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ProviderError is the only error type a Provider returns from Call.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int // 0 when no HTTP response was received
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a ProviderError without an HTTP status.
func NewProviderError(provider string, kind ErrorKind, err error) *ProviderError {
	pe := &ProviderError{Provider: provider, Kind: kind, Err: err}
	if err != nil {
		pe.Message = err.Error()
	}
	return pe
}

// KindOf returns the kind of the first ProviderError in err's chain and whether
// one was found.
func KindOf(err error) (ErrorKind, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return KindUnknown, false
}

// IsQuotaExhausted reports whether err carries a quota exhaustion signal.
func IsQuotaExhausted(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindQuotaExhausted
}

// IsUnavailable reports whether err is a transport-level provider failure.
func IsUnavailable(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindUnavailable
}

// RepairFailedError is returned when the corrective retry answered but still did
// not yield parseable JSON. A failed provider call during repair is returned as
// the ProviderError itself.
type RepairFailedError struct {
	Provider string
	Cause    error
}

func (e *RepairFailedError) Error() string {
	return fmt.Sprintf("%s: repair failed: %v", e.Provider, e.Cause)
}

func (e *RepairFailedError) Unwrap() error {
	return e.Cause
}

// AttemptOutcome describes what happened to one provider during a Generate call.
type AttemptOutcome string

const (
	OutcomeSkipped        AttemptOutcome = "skipped"
	OutcomeUnavailable    AttemptOutcome = "unavailable"
	OutcomeQuotaExhausted AttemptOutcome = "quota_exhausted"
	OutcomeNoJSON         AttemptOutcome = "no_json"
	OutcomeMalformed      AttemptOutcome = "malformed"
	OutcomeRepairFailed   AttemptOutcome = "repair_failed"
	OutcomeUnknown        AttemptOutcome = "unknown"
	OutcomeSuccess        AttemptOutcome = "success"
)

// unusable reports whether the outcome means the provider answered but its text
// could not be turned into a structured value.
func (o AttemptOutcome) unusable() bool {
	return o == OutcomeNoJSON || o == OutcomeMalformed || o == OutcomeRepairFailed
}

// unreachable reports whether the outcome means the provider produced no
// output at all.
func (o AttemptOutcome) unreachable() bool {
	return o == OutcomeSkipped || o == OutcomeUnavailable || o == OutcomeQuotaExhausted
}

// Attempt records one provider's result within a Generate call.
type Attempt struct {
	Provider string
	Outcome  AttemptOutcome
	Err      error
	Duration time.Duration
}

func (a Attempt) String() string {
	if a.Err == nil {
		return fmt.Sprintf("%s: %s", a.Provider, a.Outcome)
	}
	return fmt.Sprintf("%s: %s: %v", a.Provider, a.Outcome, a.Err)
}

// outcomeFor maps an attempt error onto its outcome.
func outcomeFor(err error) AttemptOutcome {
	var repairErr *RepairFailedError
	switch {
	case errors.As(err, &repairErr):
		return OutcomeRepairFailed
	case errors.Is(err, ErrBreakerOpen):
		return OutcomeSkipped
	case errors.Is(err, ErrNoJSONFound):
		return OutcomeNoJSON
	}

	kind, ok := KindOf(err)
	if !ok {
		return OutcomeUnknown
	}
	switch kind {
	case KindUnavailable:
		return OutcomeUnavailable
	case KindQuotaExhausted:
		return OutcomeQuotaExhausted
	case KindMalformed:
		return OutcomeMalformed
	default:
		return OutcomeUnknown
	}
}

// AllProvidersFailedError is returned by Router.Generate when no provider
// produced a usable result. Attempts are in priority order.
type AllProvidersFailedError struct {
	Attempts []Attempt
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.String()
	}
	return fmt.Sprintf("all %d providers failed: [%s]", len(e.Attempts), strings.Join(parts, "; "))
}

// Unwrap exposes the per-attempt errors to errors.Is and errors.As.
func (e *AllProvidersFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// AllUnavailable reports whether no provider produced any output. Breaker skips
// and quota exhaustion count as unavailable.
func (e *AllProvidersFailedError) AllUnavailable() bool {
	if len(e.Attempts) == 0 {
		return false
	}
	for _, a := range e.Attempts {
		if !a.Outcome.unreachable() {
			return false
		}
	}
	return true
}

// AllUnusableOutput reports whether every provider that was actually called
// returned text that could not be turned into JSON.
func (e *AllProvidersFailedError) AllUnusableOutput() bool {
	called := 0
	for _, a := range e.Attempts {
		if a.Outcome == OutcomeSkipped {
			continue
		}
		called++
		if !a.Outcome.unusable() {
			return false
		}
	}
	return called > 0
}
