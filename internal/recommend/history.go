package recommend

import (
	"encoding/json"
	"fmt"

	"github.com/kalambet/agora/internal/catalog"
	"github.com/kalambet/agora/internal/similarity"
	"github.com/kalambet/agora/internal/storage"
)

// Recorder persists produced recommendations. *storage.Store satisfies it.
type Recorder interface {
	SaveRecommendation(r storage.Recommendation) error
}

var _ Recorder = (*storage.Store)(nil)

// HistoryEntry is a stored recommendation together with its request.
type HistoryEntry struct {
	Request Request `json:"request"`
	Result  Result  `json:"result"`
}

// shortlistEntry is the stored form of a scored assistant; descriptions and
// raw records are not kept.
type shortlistEntry struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Tags  []string `json:"tags,omitempty"`
	Score float64  `json:"score"`
}

func toRecord(req Request, res Result) (storage.Recommendation, error) {
	short := make([]shortlistEntry, len(res.Ranked))
	for i, s := range res.Ranked {
		short[i] = shortlistEntry{ID: s.Assistant.ID, Title: s.Assistant.Title, Tags: s.Assistant.Tags, Score: s.Score}
	}

	var err error
	enc := func(v any) string {
		if err != nil {
			return ""
		}
		var b []byte
		b, err = json.Marshal(v)
		return string(b)
	}
	rec := storage.Recommendation{
		ID:             res.ID,
		CreatedAt:      res.CreatedAt,
		Description:    req.Description,
		Tags:           enc(nonNil(req.Tags)),
		Roles:          enc(nonNil(req.Roles)),
		Mode:           string(res.Mode),
		Message:        res.Message,
		Reason:         res.Reason,
		Shortlist:      enc(short),
		Picks:          enc(nonNil(res.Picks)),
		CatalogVersion: int64(res.CatalogVersion),
	}
	if err != nil {
		return storage.Recommendation{}, fmt.Errorf("encoding recommendation %s: %w", res.ID, err)
	}
	return rec, nil
}

// FromRecord rebuilds a HistoryEntry from its stored form.
func FromRecord(rec storage.Recommendation) (HistoryEntry, error) {
	var (
		req   = Request{Description: rec.Description}
		short []shortlistEntry
		picks []string
	)
	for _, f := range []struct {
		src string
		dst any
	}{
		{rec.Tags, &req.Tags},
		{rec.Roles, &req.Roles},
		{rec.Shortlist, &short},
		{rec.Picks, &picks},
	} {
		if f.src == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
			return HistoryEntry{}, fmt.Errorf("decoding recommendation %s: %w", rec.ID, err)
		}
	}

	ranked := make([]similarity.Scored, len(short))
	for i, s := range short {
		ranked[i] = similarity.Scored{
			Assistant: catalog.Assistant{ID: s.ID, Title: s.Title, Tags: s.Tags},
			Score:     s.Score,
		}
	}
	return HistoryEntry{
		Request: req,
		Result: Result{
			ID:             rec.ID,
			Ranked:         ranked,
			Message:        rec.Message,
			Mode:           Mode(rec.Mode),
			Reason:         rec.Reason,
			Picks:          picks,
			CatalogVersion: uint64(rec.CatalogVersion),
			CreatedAt:      rec.CreatedAt,
		},
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
