// Package api serves the assistant catalog and recommendations over HTTP
// and MCP.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/agora/internal/catalog"
	"github.com/kalambet/agora/internal/recommend"
	"github.com/kalambet/agora/internal/storage"
)

// CatalogSource returns the current catalog snapshot, reloading it when
// force is set. *catalog.Cache satisfies it.
type CatalogSource interface {
	Get(ctx context.Context, force bool) (*catalog.Snapshot, error)
}

// Recommender produces recommendations. *recommend.Composer satisfies it.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request, snap *catalog.Snapshot) (recommend.Result, error)
}

// HistoryStore reads and deletes stored recommendations. *storage.Store
// satisfies it.
type HistoryStore interface {
	GetRecommendation(id string) (storage.Recommendation, error)
	ListRecommendations(limit, offset int) ([]storage.Recommendation, error)
	DeleteRecommendation(id string) error
}

var (
	_ CatalogSource = (*catalog.Cache)(nil)
	_ Recommender   = (*recommend.Composer)(nil)
	_ HistoryStore  = (*storage.Store)(nil)
)

type Deps struct {
	Catalog     CatalogSource
	Recommender Recommender
	History     HistoryStore // optional; history routes are not mounted when nil
	Token       string
	Metrics     http.Handler // optional; served at /metrics without auth
}

// catalogVersionHeader carries the version of the snapshot a response was
// computed from.
const catalogVersionHeader = "X-Catalog-Version"

func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/assistants", handleListAssistants(deps))
		r.Post("/assistants/filter", handleFilterAssistants(deps))
		r.Get("/assistants/{id}", handleGetAssistant(deps))
		r.Post("/assistants/recommend", handleRecommend(deps))
		r.Get("/catalog", handleCatalogStatus(deps))
		r.Post("/catalog/refresh", handleCatalogRefresh(deps))

		if deps.History != nil {
			r.Get("/recommendations", handleListRecommendations(deps))
			r.Get("/recommendations/{id}", handleGetRecommendation(deps))
			r.Delete("/recommendations/{id}", handleDeleteRecommendation(deps))
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func setCatalogVersion(w http.ResponseWriter, snap *catalog.Snapshot) {
	if snap != nil {
		w.Header().Set(catalogVersionHeader, strconv.FormatUint(snap.Version(), 10))
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
