// Package config loads agora settings from the platform backend, AGORA_*
// environment variables and the platform secret store.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// keychainService is the service name secrets are stored under.
const keychainService = "agora"

type Config struct {
	Server    ServerConfig
	Catalog   CatalogConfig
	LLM       LLMConfig
	Ollama    OllamaConfig
	Recommend RecommendConfig
	Storage   StorageConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

// CatalogConfig selects the assistant catalog source. File, when set,
// replaces the HTTP upstream.
type CatalogConfig struct {
	BaseURL string
	Path    string
	APIKey  string
	File    string
	Timeout time.Duration
}

type LLMConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
}

type RecommendConfig struct {
	TopK            int
	MaxPromptTokens int
	EmbeddingWeight float64
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Catalog: CatalogConfig{
			Path:    "/assistants",
			Timeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.2",
			Timeout:  20 * time.Second,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
		},
		Recommend: RecommendConfig{
			TopK:            5,
			MaxPromptTokens: 2000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.kalambet.agora) and
// secrets fall back to macOS Keychain (service: agora).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/agora/config.json
// and secrets fall back to $XDG_DATA_HOME/agora/secrets.json.
//
// Environment variables (AGORA_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	var errs []error
	if cfg.Catalog.BaseURL == "" && cfg.Catalog.File == "" {
		errs = append(errs, errors.New("missing required config: catalog source. "+
			"Set catalog.base_url (AGORA_CATALOG_BASE_URL) or catalog.file (AGORA_CATALOG_FILE)"))
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", cfg.Server.Port))
	}
	if w := cfg.Recommend.EmbeddingWeight; w < 0 || w > 1 {
		errs = append(errs, fmt.Errorf("recommend.embedding_weight %v must be within [0, 1]", w))
	}
	if cfg.Recommend.TopK < 0 {
		errs = append(errs, fmt.Errorf("recommend.top_k %d must not be negative", cfg.Recommend.TopK))
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be one of debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.LLM.Provider == "openrouter" && cfg.LLM.APIKey == "" {
		errs = append(errs, errors.New("missing required config: LLM API key for openrouter. "+
			"Set it via environment variable AGORA_LLM_API_KEY"+secretHint("llm_api_key")))
	}
	return errors.Join(errs...)
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	return keychainGet(service, account)
}
