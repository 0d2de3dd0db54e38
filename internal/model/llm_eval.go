package model

import "time"

// LLMEval records one model call for offline review.
type LLMEval struct {
	ID         int64   `json:"id"`
	EventLogID *int64  `json:"event_log_id,omitempty"`
	MicrofoxID *string `json:"microfox_id,omitempty"`

	Stage string `json:"stage"`

	InputText  string `json:"input_text"`
	OutputJSON []byte `json:"output_json"`

	Model         string   `json:"model"`
	Temperature   *float64 `json:"temperature,omitempty"`
	PromptVersion *string  `json:"prompt_version,omitempty"`

	LatencyMs        *int `json:"latency_ms,omitempty"`
	PromptTokens     *int `json:"prompt_tokens,omitempty"`
	CompletionTokens *int `json:"completion_tokens,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
