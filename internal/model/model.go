// Package model provides the cloud model interface and its providers.
//
// Supports:
// - Gemini via google.golang.org/genai
// - OpenAI-compatible chat completions (OpenRouter, GLM)
// - Ordered failover across configured providers
package model

import "context"

// Model represents a cloud vision-capable AI model.
type Model interface {
	// Generate runs inference on the model.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// IsAvailable checks if the model is configured.
	IsAvailable() bool

	// Name returns the model identifier.
	Name() string

	// Status returns the current status of the model.
	Status() *ModelStatus
}
