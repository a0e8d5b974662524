package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/agora/internal/catalog"
	"github.com/kalambet/agora/internal/filter"
)

const maxFilterBodySize = 1 << 20 // 1MB

// CatalogStatus describes the snapshot currently served.
type CatalogStatus struct {
	Version   uint64          `json:"version"`
	Count     int             `json:"count"`
	FetchedAt time.Time       `json:"fetched_at"`
	Tags      []catalog.Facet `json:"tags,omitempty"`
	Roles     []catalog.Facet `json:"roles,omitempty"`
}

func statusOf(snap *catalog.Snapshot, withFacets bool) CatalogStatus {
	st := CatalogStatus{Version: snap.Version(), Count: snap.Len(), FetchedAt: snap.FetchedAt()}
	if withFacets {
		st.Tags = snap.TagFacets()
		st.Roles = snap.RoleFacets()
	}
	return st
}

// queryLabels collects a repeatable, comma-separable query parameter.
func queryLabels(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func handleListAssistants(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		spec := filter.Spec{
			Tags:        queryLabels(r, "tag"),
			Roles:       queryLabels(r, "role"),
			SearchTerm:  q.Get("q"),
			AssistantID: q.Get("id"),
		}
		if raw := q.Get("refresh"); raw != "" {
			refresh, err := strconv.ParseBool(raw)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid refresh value %q", raw)
				return
			}
			spec.Refresh = refresh
		}
		serveFilter(w, r, deps, spec)
	}
}

func handleFilterAssistants(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var spec filter.Spec
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFilterBodySize))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&spec); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		serveFilter(w, r, deps, spec)
	}
}

func serveFilter(w http.ResponseWriter, r *http.Request, deps Deps, spec filter.Spec) {
	if err := spec.Validate(); err != nil {
		domainError(w, err)
		return
	}
	snap, err := deps.Catalog.Get(r.Context(), spec.Refresh)
	if err != nil {
		domainError(w, err)
		return
	}
	setCatalogVersion(w, snap)
	writeJSON(w, filter.Apply(spec, snap))
}

func handleGetAssistant(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		snap, err := deps.Catalog.Get(r.Context(), false)
		if err != nil {
			domainError(w, err)
			return
		}
		setCatalogVersion(w, snap)

		a, ok := snap.Lookup(id)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "assistant %q not found", id)
			return
		}
		writeJSON(w, a)
	}
}

func handleCatalogStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.Catalog.Get(r.Context(), false)
		if err != nil {
			domainError(w, err)
			return
		}
		setCatalogVersion(w, snap)
		writeJSON(w, statusOf(snap, true))
	}
}

func handleCatalogRefresh(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.Catalog.Get(r.Context(), true)
		if err != nil {
			domainError(w, err)
			return
		}
		setCatalogVersion(w, snap)
		writeJSON(w, statusOf(snap, false))
	}
}
