package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Eino completes prompts with an eino chat model.
type Eino struct {
	model  model.BaseChatModel
	system string
}

// NewEino creates an OpenAI-compatible chat model from cfg. BaseURL points
// it at any compatible endpoint.
func NewEino(ctx context.Context, cfg Config) (*Eino, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("llm.api_key is required for provider %s", ProviderOpenAI)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm.model is required for provider %s", ProviderOpenAI)
	}

	mc := &openai.ChatModelConfig{
		Model:  cfg.Model,
		APIKey: apiKey,
	}
	if cfg.BaseURL != "" {
		mc.BaseURL = cfg.BaseURL
	}
	cm, err := openai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("creating openai chat model: %w", err)
	}
	return NewEinoWithModel(cm, cfg.System), nil
}

// NewEinoWithModel wraps an existing chat model.
func NewEinoWithModel(m model.BaseChatModel, system string) *Eino {
	return &Eino{model: m, system: system}
}

// Complete implements Completer.
func (e *Eino) Complete(ctx context.Context, prompt string) (string, error) {
	messages := make([]*schema.Message, 0, 2)
	if e.system != "" {
		messages = append(messages, schema.SystemMessage(e.system))
	}
	messages = append(messages, schema.UserMessage(prompt))

	resp, err := e.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("LLM generate: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("LLM generate: empty response")
	}
	return resp.Content, nil
}
