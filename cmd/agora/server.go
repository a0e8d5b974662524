package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/kalambet/agora/internal/api"
	"github.com/kalambet/agora/internal/catalog"
	"github.com/kalambet/agora/internal/completion"
	"github.com/kalambet/agora/internal/config"
	"github.com/kalambet/agora/internal/engine"
	"github.com/kalambet/agora/internal/metrics"
	"github.com/kalambet/agora/internal/recommend"
	"github.com/kalambet/agora/internal/retrieval"
	"github.com/kalambet/agora/internal/similarity"
	"github.com/kalambet/agora/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Start the agora server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running agora server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agora system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "agora.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// newCatalogClient picks the file source when catalog.file is set.
func newCatalogClient(cfg config.CatalogConfig) catalog.Client {
	if cfg.File != "" {
		return catalog.NewFileClient(cfg.File)
	}
	return catalog.NewHTTPClient(cfg.BaseURL, cfg.Path, cfg.APIKey)
}

// needsEngine reports whether the local inference engine is used for
// completions or embeddings.
func needsEngine(cfg config.Config) bool {
	return completion.ProviderName(cfg.LLM.Provider) == completion.ProviderOllama || embeddingsEnabled(cfg)
}

func embeddingsEnabled(cfg config.Config) bool {
	return cfg.Recommend.EmbeddingWeight > 0 && cfg.Ollama.EmbedModel != ""
}

// vectorPruner drops cached embeddings of assistants that left the catalog
// whenever a new snapshot is published.
func vectorPruner(h *retrieval.HybridScorer) func(*catalog.Snapshot) {
	return func(snap *catalog.Snapshot) {
		n, err := h.Prune(snap)
		if err != nil {
			slog.Warn("pruning cached vectors", "error", err, "version", snap.Version())
			return
		}
		if n > 0 {
			slog.Debug("pruned cached vectors", "removed", n, "version", snap.Version())
		}
	}
}

func runServer(withMCP bool) error {
	fmt.Fprintln(os.Stderr, versionLine())

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	slog.SetDefault(newLogger(cfg.Log.Level))
	if cfg.Server.APIToken == "" {
		slog.Warn("server.api_token is not set; API routes are unauthenticated")
	}

	// Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("agora is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("agora is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Detect and check local inference engine readiness.
	var eng engine.Engine
	if needsEngine(cfg) {
		eng, err = engine.Detect(engine.DetectConfig{OllamaBaseURL: cfg.Ollama.BaseURL})
		if err != nil {
			return fmt.Errorf("detecting inference engine: %w", err)
		}
		chatModel := ""
		if completion.ProviderName(cfg.LLM.Provider) == completion.ProviderOllama {
			chatModel = cfg.LLM.Model
		}
		embedModel := ""
		if embeddingsEnabled(cfg) {
			embedModel = cfg.Ollama.EmbedModel
		}
		printStep("Checking local models")
		if err := engine.EnsureReady(ctx, eng, chatModel, embedModel, os.Stderr); err != nil {
			return err
		}
	}

	completer, err := completion.New(ctx, completion.Config{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
		System:   recommend.SystemPrompt,
		Schema:   recommend.ReplySchema(),
	}, eng)
	if err != nil {
		return fmt.Errorf("configuring language model: %w", err)
	}
	completer = completion.Observe(completer, cfg.LLM.Provider, m)

	var scorer similarity.Scorer = similarity.NewRanker()
	var hybrid *retrieval.HybridScorer
	if embeddingsEnabled(cfg) {
		hybrid = retrieval.NewHybridScorer(scorer, retrieval.NewEmbedder(eng, cfg.Ollama.EmbedModel), store, cfg.Recommend.EmbeddingWeight)
		scorer = hybrid
	}

	composer := recommend.NewComposer(scorer, completer,
		recommend.WithTopK(cfg.Recommend.TopK),
		recommend.WithMaxPromptTokens(cfg.Recommend.MaxPromptTokens),
		recommend.WithTimeout(cfg.LLM.Timeout),
		recommend.WithRecorder(store),
		recommend.WithObserver(m),
	)

	cacheOpts := []catalog.Option{
		catalog.WithFetchTimeout(cfg.Catalog.Timeout),
		catalog.WithObserver(m),
	}
	if hybrid != nil {
		cacheOpts = append(cacheOpts, catalog.WithOnRefresh(vectorPruner(hybrid)))
	}
	cache := catalog.NewCache(newCatalogClient(cfg.Catalog), cacheOpts...)

	// Warm the catalog; a failure here is retried on the first request.
	if snap, err := cache.Get(ctx, false); err != nil {
		slog.Warn("initial catalog load failed", "error", err)
	} else {
		slog.Info("catalog loaded", "version", snap.Version(), "assistants", snap.Len())
	}

	handler := api.NewHandler(api.Deps{
		Catalog:     cache,
		Recommender: composer,
		History:     store,
		Token:       cfg.Server.APIToken,
		Metrics:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Catalog:     cache,
			Recommender: composer,
			Version:     version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("agora listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("agora is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop agora (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to agora (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		running = resp.StatusCode == http.StatusOK
		if running {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Catalog.File != "" {
		printStatus("Catalog", "file %s", cfg.Catalog.File)
	} else {
		printStatus("Catalog", "%s%s", cfg.Catalog.BaseURL, cfg.Catalog.Path)
	}

	if running {
		c := &apiClient{baseURL: serverURL, token: cfg.Server.APIToken, httpClient: client}
		if resp, err := c.get(context.Background(), "/catalog"); err == nil {
			var st struct {
				Version uint64 `json:"version"`
				Count   int    `json:"count"`
			}
			if decodeJSON(resp, &st) == nil {
				printStatus("Assistants", "%d (version %d)", st.Count, st.Version)
			}
		}
	}

	printStatus("LLM", "%s %s", cfg.LLM.Provider, cfg.LLM.Model)
	if needsEngine(cfg) {
		ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
		if err != nil {
			printStatus("Ollama", "not running")
		} else {
			ollamaResp.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		}
	}
	if embeddingsEnabled(cfg) {
		printStatus("Embeddings", "%s (weight %.2f)", cfg.Ollama.EmbedModel, cfg.Recommend.EmbeddingWeight)
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
