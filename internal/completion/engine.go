package completion

import (
	"context"
	"fmt"

	"github.com/kalambet/agora/internal/engine"
)

// EngineCompleter completes prompts on a local inference engine.
type EngineCompleter struct {
	eng    engine.Engine
	model  string
	system string
	schema *engine.Schema
}

// NewEngineCompleter creates a completer for model on eng. schema may be
// nil for free-form replies.
func NewEngineCompleter(eng engine.Engine, model, system string, schema *engine.Schema) *EngineCompleter {
	return &EngineCompleter{eng: eng, model: model, system: system, schema: schema}
}

// Complete implements Completer.
func (c *EngineCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	msgs := make([]engine.Message, 0, 2)
	if c.system != "" {
		msgs = append(msgs, engine.Message{Role: "system", Content: c.system})
	}
	msgs = append(msgs, engine.Message{Role: "user", Content: prompt})

	text, err := c.eng.Chat(ctx, c.model, msgs, c.schema)
	if err != nil {
		return "", fmt.Errorf("engine chat: %w", err)
	}
	return text, nil
}
