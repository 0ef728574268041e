package llm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Result is the parsed output of a successful Generate call. Output is always
// a complete JSON object; partially parsed data is never returned.
type Result struct {
	Output   map[string]any  `json:"output"`
	Raw      json.RawMessage `json:"-"`
	Provider string          `json:"provider"`

	// Retried is set when the output came from the corrective retry.
	Retried bool `json:"retried"`
	// Truncated is set when the model output was cut off and closed by Extract,
	// or when the final candidate is still structurally incomplete.
	Truncated bool `json:"truncated"`
}

// Decode unmarshals the raw JSON object into v.
func (r *Result) Decode(v any) error {
	if r == nil || len(r.Raw) == 0 {
		return errors.New("empty result")
	}
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("failed to decode result from %s: %w", r.Provider, err)
	}
	return nil
}

// decoded is one pass of Extract, IsTruncated and json.Unmarshal over raw text.
type decoded struct {
	candidate  string
	closed     bool
	incomplete bool
	output     map[string]any
}

// decode runs raw model text through extraction and parsing. The returned
// decoded is populated as far as extraction got, even when err is non-nil.
func decode(raw string) (decoded, error) {
	candidate, closed, err := extract(raw)
	if err != nil {
		return decoded{}, err
	}

	d := decoded{
		candidate:  candidate,
		closed:     closed,
		incomplete: IsTruncated(candidate),
	}
	if err := json.Unmarshal([]byte(candidate), &d.output); err != nil {
		return d, fmt.Errorf("invalid JSON in model output: %w", err)
	}
	return d, nil
}

func (d decoded) result(provider string, retried bool) *Result {
	return &Result{
		Output:    d.output,
		Raw:       json.RawMessage(d.candidate),
		Provider:  provider,
		Retried:   retried,
		Truncated: d.closed || d.incomplete,
	}
}
