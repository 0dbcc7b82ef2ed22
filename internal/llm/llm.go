// Package llm holds the completion and embedding clients the question
// pipeline talks to, plus the error types that decide retry behaviour.
package llm

import "context"

// Format selects the shape of a completion reply.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Request is a single-prompt completion call.
type Request struct {
	Prompt    string
	MaxTokens int
	Format    Format
}

// Completer produces text for a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Embedder turns text into a fixed-width vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Modeler is implemented by clients that can report their model name.
type Modeler interface {
	Model() string
}
