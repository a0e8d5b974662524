// Package engine abstracts the local inference backend used for composing
// recommendation messages and embedding assistant descriptions.
package engine

import (
	"context"

	"github.com/kalambet/agora/internal/ollama"
)

type (
	Message        = ollama.Message
	Schema         = ollama.Schema
	SchemaProperty = ollama.SchemaProperty
	PullProgress   = ollama.PullProgress
)

// Engine is a local inference backend. *ollama.Client satisfies it.
type Engine interface {
	// Chat sends messages to model and returns the reply. A non-nil schema
	// requests structured JSON output.
	Chat(ctx context.Context, model string, messages []Message, schema *Schema) (string, error)

	// Embed returns the embedding vector of text under model.
	Embed(ctx context.Context, model, text string) ([]float32, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool

	// HasModel reports whether model is available locally.
	HasModel(ctx context.Context, model string) bool

	// PullModel downloads model; onProgress may be nil.
	PullModel(ctx context.Context, model string, onProgress func(PullProgress)) error
}

var _ Engine = (*ollama.Client)(nil)
