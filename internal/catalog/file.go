package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileClient reads the catalog from a local YAML or JSON file. It accepts
// the same shapes as the upstream API.
type FileClient struct {
	path   string
	logger *slog.Logger
}

// NewFileClient creates a client reading path on every Fetch.
func NewFileClient(path string) *FileClient {
	return &FileClient{path: path, logger: slog.Default()}
}

// Fetch implements Client. A missing or unreadable file is reported as
// ErrUpstreamUnavailable so the cache treats it like an unreachable API.
func (c *FileClient) Fetch(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	switch strings.ToLower(filepath.Ext(c.path)) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedCatalog, c.path, err)
		}
	}

	assistants, skipped, err := decodeCatalog(data)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		c.logger.Warn("catalog: skipped invalid assistant records", "file", c.path, "skipped", skipped, "kept", len(assistants))
	}
	return NewSnapshot(assistants, time.Now()), nil
}

// yamlToJSON re-encodes a YAML document as JSON so both formats share one
// decoder. yaml.v3 decodes mappings into map[string]any, which
// encoding/json can marshal.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
