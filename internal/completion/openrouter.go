package completion

import (
	"context"
	"fmt"

	"github.com/kalambet/agora/internal/proxy"
)

// OpenRouter completes prompts through the OpenRouter API.
type OpenRouter struct {
	client *proxy.Client
	model  string
	system string
}

// NewOpenRouter creates a completer for model.
func NewOpenRouter(client *proxy.Client, model, system string) *OpenRouter {
	return &OpenRouter{client: client, model: model, system: system}
}

// Complete implements Completer. The reply is requested as a JSON object.
func (o *OpenRouter) Complete(ctx context.Context, prompt string) (string, error) {
	msgs := make([]proxy.Message, 0, 2)
	if o.system != "" {
		msgs = append(msgs, proxy.Message{Role: "system", Content: o.system})
	}
	msgs = append(msgs, proxy.Message{Role: "user", Content: prompt})

	text, err := o.client.Complete(ctx, o.model, msgs, true)
	if err != nil {
		return "", fmt.Errorf("openrouter: %w", err)
	}
	return text, nil
}
