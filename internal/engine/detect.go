package engine

import (
	"fmt"

	"github.com/kalambet/agora/internal/ollama"
)

// DetectConfig holds parameters for backend detection.
type DetectConfig struct {
	OllamaBaseURL string
}

// Detect returns the inference backend for cfg. Ollama is the only local
// backend.
func Detect(cfg DetectConfig) (Engine, error) {
	if cfg.OllamaBaseURL == "" {
		return nil, fmt.Errorf("ollama base URL is not configured")
	}
	return ollama.New(cfg.OllamaBaseURL), nil
}
