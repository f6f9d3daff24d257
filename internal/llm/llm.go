// Package llm provides clients for the reasoning and embedding capabilities.
// Responses carry no structured-output guarantee; parsing and repair are the
// caller's responsibility.
package llm

import "context"

// Generator produces free-form text from a system and user prompt.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)
}

// Embedder converts text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
