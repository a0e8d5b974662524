package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/agora/internal/recommend"
	"github.com/kalambet/agora/internal/storage"
)

func handleListRecommendations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		recs, err := deps.History.ListRecommendations(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list recommendations: %v", err)
			return
		}

		entries := make([]recommend.HistoryEntry, 0, len(recs))
		for _, rec := range recs {
			e, err := recommend.FromRecord(rec)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
				return
			}
			entries = append(entries, e)
		}
		writeJSON(w, entries)
	}
}

func handleGetRecommendation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rec, err := deps.History.GetRecommendation(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "recommendation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get recommendation: %v", err)
			return
		}

		e, err := recommend.FromRecord(rec)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, e)
	}
}

func handleDeleteRecommendation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.History.DeleteRecommendation(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "recommendation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete recommendation: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}
