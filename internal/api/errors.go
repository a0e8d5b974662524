package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/agora/internal/catalog"
)

// statusClientClosedRequest is written when the client went away before a
// response was ready.
const statusClientClosedRequest = 499

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// domainError writes err with the status its catalog error kind maps to.
func domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrInvalidQuery):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, catalog.ErrUpstreamUnavailable):
		httpError(w, http.StatusServiceUnavailable, "upstream_unavailable", "%v", err)
	case errors.Is(err, catalog.ErrMalformedCatalog):
		httpError(w, http.StatusBadGateway, "malformed_catalog", "%v", err)
	case errors.Is(err, context.Canceled):
		slog.Debug("api: request cancelled", "error", err)
		httpError(w, statusClientClosedRequest, "request_cancelled", "%v", err)
	case errors.Is(err, context.DeadlineExceeded):
		slog.Debug("api: request deadline exceeded", "error", err)
		httpError(w, http.StatusGatewayTimeout, "timeout", "%v", err)
	default:
		slog.Error("api: request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
