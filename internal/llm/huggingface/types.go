package huggingface

// GenerationRequest is the text-generation task payload
type GenerationRequest struct {
	Inputs     string               `json:"inputs"`
	Parameters GenerationParameters `json:"parameters"`
	Options    *GenerationOptions   `json:"options,omitempty"`
}

// GenerationParameters tunes the generation
type GenerationParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	ReturnFullText bool    `json:"return_full_text"`
}

// GenerationOptions controls how the API serves the request
type GenerationOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// GeneratedOutput is one element of the response list
type GeneratedOutput struct {
	GeneratedText string `json:"generated_text"`
	Error         string `json:"error,omitempty"`
}

// ErrorResponse is the Inference API error envelope
type ErrorResponse struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time,omitempty"`
}
