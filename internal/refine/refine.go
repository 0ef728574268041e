// Package refine edits an existing curriculum plan according to a plain
// language instruction, using any llm.Generator.
package refine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/curriculumgen/internal/llm"
)

// SystemPrompt instructs the model to apply an instruction to a plan while
// keeping its shape.
const SystemPrompt = `You refine curriculum plans.

The input is an existing curriculum JSON object with one extra key,
"refinement_instruction", holding a plain language change request.

Apply the instruction to the plan and nothing else:
- Keep the top-level keys of the plan exactly as they are. Do not wrap or rename the object.
- Keep the plan's format. A plan organized in "semesters" stays in semesters; a plan with a "roadmap" of phases stays a roadmap.
- When durations change, scale duration_weeks, timeline_weeks, weeks and per-topic estimated_hours proportionally.
- When total_weeks is present, the phase duration_weeks must sum to it.
- Do not include "refinement_instruction" in the result.

Return the complete refined plan object.`

// InstructionKey is the payload key carrying the instruction
const InstructionKey = "refinement_instruction"

var (
	ErrMissingInstruction = errors.New("instruction is required")
	ErrMissingPlan        = errors.New("current_plan is required")
)

// Request is a refinement of CurrentPlan by Instruction
type Request struct {
	Instruction string         `json:"instruction"`
	CurrentPlan map[string]any `json:"current_plan"`
}

// Validate checks that both fields are present
func (r Request) Validate() error {
	if r.Instruction == "" {
		return ErrMissingInstruction
	}
	if len(r.CurrentPlan) == 0 {
		return ErrMissingPlan
	}
	return nil
}

// Refiner runs refinement requests through a Generator
type Refiner struct {
	gen llm.Generator
}

// New creates a Refiner
func New(gen llm.Generator) *Refiner {
	return &Refiner{gen: gen}
}

// Refine returns the refined plan. The plan is sent flat with the instruction
// under InstructionKey.
func (r *Refiner) Refine(ctx context.Context, req Request) (*llm.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	payload := maps.Clone(req.CurrentPlan)
	payload[InstructionKey] = req.Instruction

	result, err := r.gen.Generate(ctx, SystemPrompt, payload)
	if err != nil {
		return nil, fmt.Errorf("refine failed: %w", err)
	}

	// Results may be shared with other callers, so edit a copy
	refined := *result
	if _, echoed := result.Output[InstructionKey]; echoed {
		refined.Output = maps.Clone(result.Output)
		delete(refined.Output, InstructionKey)
		raw, err := json.Marshal(refined.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to encode refined plan: %w", err)
		}
		refined.Raw = raw
	}

	if missing := missingKeys(req.CurrentPlan, refined.Output); len(missing) > 0 {
		log.Warn().
			Strs("missing_keys", missing).
			Str("provider", result.Provider).
			Msg("Refined plan dropped top-level keys")
	}

	return &refined, nil
}

func missingKeys(before, after map[string]any) []string {
	var missing []string
	for key := range before {
		if _, ok := after[key]; !ok {
			missing = append(missing, key)
		}
	}
	slices.Sort(missing)
	return missing
}
