package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/kalambet/agora/internal/catalog"
	"github.com/kalambet/agora/internal/recommend"
	"github.com/kalambet/agora/internal/textutil"
)

const (
	maxRecommendBodySize = 1 << 20
	maxMultipartSize     = textutil.MaxBriefSize + 1<<20
)

func handleRecommend(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeRecommendRequest(w, r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if strings.TrimSpace(req.Description) == "" {
			domainError(w, fmt.Errorf("%w: description is empty", catalog.ErrInvalidQuery))
			return
		}

		snap, err := deps.Catalog.Get(r.Context(), false)
		if err != nil {
			domainError(w, err)
			return
		}
		setCatalogVersion(w, snap)

		res, err := deps.Recommender.Recommend(r.Context(), req, snap)
		if err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, res)
	}
}

// decodeRecommendRequest reads a JSON body or a multipart form. A brief
// file in the form is converted to text and appended to the description.
func decodeRecommendRequest(w http.ResponseWriter, r *http.Request) (recommend.Request, error) {
	var req recommend.Request

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRecommendBodySize)).Decode(&req); err != nil {
			return req, fmt.Errorf("invalid request body: %w", err)
		}
		return req, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartSize)
	if err := r.ParseMultipartForm(maxMultipartSize); err != nil {
		return req, fmt.Errorf("invalid multipart form: %w", err)
	}

	req.Description = r.FormValue("description")
	req.Tags = formLabels(r, "tags")
	req.Roles = formLabels(r, "roles")
	if raw := r.FormValue("top_k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("invalid top_k %q", raw)
		}
		req.TopK = k
	}

	file, _, err := r.FormFile("brief")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return req, fmt.Errorf("reading brief: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, textutil.MaxBriefSize+1))
	if err != nil {
		return req, fmt.Errorf("reading brief: %w", err)
	}
	brief, err := textutil.ExtractBrief(data)
	if err != nil {
		return req, fmt.Errorf("extracting brief: %w", err)
	}
	if brief != "" {
		req.Description = strings.TrimSpace(req.Description + "\n\n" + brief)
	}
	return req, nil
}

func formLabels(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.MultipartForm.Value[key] {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
