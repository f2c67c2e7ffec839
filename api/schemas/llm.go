package schemas

import "context"

// -- LLM Schemas --

// GenerationOptions tunes a single generation request.
type GenerationOptions struct {
	Temperature     float32 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
}

// GenerationRequest is the provider-agnostic payload sent to an LLM client.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient abstracts a hosted completion API. Implementations live in
// internal/llmclient; the decision layer depends only on this interface.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
