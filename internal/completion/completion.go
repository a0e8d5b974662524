// Package completion turns a prompt into generated text through one of the
// configured language-model backends.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/agora/internal/engine"
	"github.com/kalambet/agora/internal/proxy"
)

// Provider names accepted by New.
const (
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderNone       = "none"
)

// ErrDisabled is returned by the Completer used when no provider is
// configured.
var ErrDisabled = errors.New("language model completion is disabled")

// Completer generates text for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Func adapts a function to Completer.
type Func func(ctx context.Context, prompt string) (string, error)

// Complete implements Completer.
func (f Func) Complete(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

// Disabled always fails with ErrDisabled.
type Disabled struct{}

// Complete implements Completer.
func (Disabled) Complete(context.Context, string) (string, error) { return "", ErrDisabled }

// Config selects and configures a backend.
type Config struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	// System is sent as the system message ahead of every prompt.
	System string
	// Schema constrains the reply of the ollama backend to a JSON object.
	Schema *engine.Schema
}

// New builds the Completer for cfg.Provider. eng is required for the
// ollama provider and ignored otherwise.
func New(ctx context.Context, cfg Config, eng engine.Engine) (Completer, error) {
	switch ProviderName(cfg.Provider) {
	case ProviderOllama:
		if eng == nil {
			return nil, fmt.Errorf("ollama provider requires an inference engine")
		}
		if cfg.Model == "" {
			return nil, fmt.Errorf("llm.model is required for provider %s", ProviderOllama)
		}
		return NewEngineCompleter(eng, cfg.Model, cfg.System, cfg.Schema), nil
	case ProviderOpenRouter:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm.api_key is required for provider %s", ProviderOpenRouter)
		}
		client := proxy.NewClient(cfg.APIKey)
		if cfg.BaseURL != "" {
			client = proxy.NewClientWithBaseURL(cfg.APIKey, cfg.BaseURL)
		}
		return NewOpenRouter(client, cfg.Model, cfg.System), nil
	case ProviderOpenAI:
		return NewEino(ctx, cfg)
	case ProviderNone:
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// ProviderName normalizes an llm.provider value. An empty provider is
// ollama.
func ProviderName(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	if p == "" {
		return ProviderOllama
	}
	return p
}

// Observer records completion latency per provider.
type Observer interface {
	ObserveCompletion(provider string, d time.Duration, err error)
}

type observed struct {
	next     Completer
	provider string
	obs      Observer
}

// Observe wraps c so every call is reported to obs under the normalized
// provider name.
func Observe(c Completer, provider string, obs Observer) Completer {
	if obs == nil {
		return c
	}
	return &observed{next: c, provider: ProviderName(provider), obs: obs}
}

func (o *observed) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := o.next.Complete(ctx, prompt)
	o.obs.ObserveCompletion(o.provider, time.Since(start), err)
	return text, err
}
