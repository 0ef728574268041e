package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultRepairAttempts is the corrective retry budget per provider per call.
const DefaultRepairAttempts = 1

var errRepairDisabled = errors.New("repair disabled")

// Repairer asks a provider to fix its own malformed JSON.
type Repairer struct {
	// MaxAttempts bounds the corrective calls made to the same provider. Zero
	// disables repair.
	MaxAttempts int
}

// DefaultRepairer returns a Repairer with one corrective attempt.
func DefaultRepairer() Repairer {
	return Repairer{MaxAttempts: DefaultRepairAttempts}
}

// Repair sends prompt together with the rejected output back to provider and
// parses the answer. parseErr is the error that rejected badOutput and is
// quoted to the model.
//
// A provider failure during repair is returned unchanged so quota exhaustion
// still reaches the breaker. Unusable repaired output yields *RepairFailedError.
func (r Repairer) Repair(ctx context.Context, provider Provider, prompt, badOutput string, parseErr error) (*Result, error) {
	name := provider.Name()
	if r.MaxAttempts <= 0 {
		return nil, &RepairFailedError{Provider: name, Cause: errRepairDisabled}
	}

	repairPrompt := BuildRepairPrompt(prompt, badOutput, parseErr)

	var lastErr error
	for attempt := 0; attempt < r.MaxAttempts; attempt++ {
		text, err := provider.Call(ctx, repairPrompt)
		if err != nil {
			return nil, asProviderError(name, err)
		}

		d, err := decode(text)
		if err == nil {
			return d.result(name, true), nil
		}
		lastErr = err
	}

	return nil, &RepairFailedError{Provider: name, Cause: lastErr}
}

// BuildRepairPrompt renders the corrective follow-up prompt: the original
// instructions, the literal rejected output and a demand for JSON only.
func BuildRepairPrompt(prompt, badOutput string, parseErr error) string {
	var b strings.Builder
	b.Grow(len(prompt) + len(badOutput) + 256)

	b.WriteString(prompt)
	b.WriteString("\n\nYour previous response could not be parsed as JSON")
	if parseErr != nil {
		fmt.Fprintf(&b, " (%v)", parseErr)
	}
	b.WriteString(".\nPrevious response:\n")
	b.WriteString(badOutput)
	b.WriteString("\n\nReturn ONLY the corrected JSON object. Do not add any other text.\n")
	return b.String()
}
