package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxCatalogBody bounds how much of an upstream response is read.
const maxCatalogBody = 32 << 20 // 32MB

// Client fetches the complete assistant catalog. Implementations perform no
// caching and no retries.
type Client interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// HTTPClient reads the catalog from the upstream assistants API.
type HTTPClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewHTTPClient creates a client for GET {baseURL}{path}. apiKey, when set,
// is sent as a bearer token.
func NewHTTPClient(baseURL, path, apiKey string) *HTTPClient {
	if path == "" {
		path = "/assistants"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &HTTPClient{
		url:    strings.TrimRight(baseURL, "/") + path,
		apiKey: apiKey,
		// Deadlines come from the caller's context.
		httpClient: &http.Client{Timeout: 0},
		logger:     slog.Default(),
		now:        time.Now,
	}
}

// Fetch implements Client.
func (c *HTTPClient) Fetch(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: catalog returned status %d: %s",
			ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading catalog body: %w", ErrUpstreamUnavailable, err)
	}

	assistants, skipped, err := decodeCatalog(body)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		c.logger.Warn("catalog: skipped invalid assistant records", "skipped", skipped, "kept", len(assistants))
	}
	return NewSnapshot(assistants, c.now()), nil
}
