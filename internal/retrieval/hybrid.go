package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"math"

	"github.com/kalambet/agora/internal/catalog"
	"github.com/kalambet/agora/internal/similarity"
	"github.com/kalambet/agora/internal/storage"
)

// VectorCache stores embeddings keyed by model and text hash.
// *storage.Store satisfies it.
type VectorCache interface {
	GetVectors(model string, hashes []string) (map[string][]float32, error)
	PutVectors(vectors []storage.AssistantVector) error
	PruneVectors(model string, keep []string) (int64, error)
}

var _ VectorCache = (*storage.Store)(nil)

// HybridScorer blends a lexical score with the cosine similarity of
// embeddings: (1-w)*lexical + w*max(0, cosine). Any embedding failure
// returns the lexical scores unchanged for the whole request.
type HybridScorer struct {
	lexical  similarity.Scorer
	embedder *Embedder
	cache    VectorCache
	weight   float64
	logger   *slog.Logger
}

var _ similarity.Scorer = (*HybridScorer)(nil)

// NewHybridScorer creates a scorer. weight is clamped to [0, 1]; cache may
// be nil.
func NewHybridScorer(lexical similarity.Scorer, embedder *Embedder, cache VectorCache, weight float64) *HybridScorer {
	return &HybridScorer{
		lexical:  lexical,
		embedder: embedder,
		cache:    cache,
		weight:   similarity.Clamp(weight),
		logger:   slog.Default(),
	}
}

// Rank implements similarity.Scorer.
func (h *HybridScorer) Rank(ctx context.Context, description string, candidates []catalog.Assistant) ([]similarity.Scored, error) {
	lex, err := h.lexical.Rank(ctx, description, candidates)
	if err != nil || len(lex) == 0 || h.weight == 0 || h.embedder == nil {
		return lex, err
	}

	query, err := h.embedder.Embed(ctx, description)
	if err != nil {
		return h.fallback(ctx, lex, err)
	}
	vectors, err := h.assistantVectors(ctx, lex)
	if err != nil {
		return h.fallback(ctx, lex, err)
	}

	out := make([]similarity.Scored, len(lex))
	for i, s := range lex {
		cos := math.Max(0, float64(cosine(query, vectors[i])))
		out[i] = similarity.Scored{
			Assistant: s.Assistant,
			Score:     similarity.Clamp((1-h.weight)*s.Score + h.weight*cos),
		}
	}
	similarity.Sort(out)
	return out, nil
}

func (h *HybridScorer) fallback(ctx context.Context, lex []similarity.Scored, err error) ([]similarity.Scored, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	h.logger.Warn("retrieval: embedding failed, using lexical scores", "error", err)
	return lex, nil
}

// assistantVectors returns one embedding per scored assistant, reading
// the cache first and embedding only the misses.
func (h *HybridScorer) assistantVectors(ctx context.Context, scored []similarity.Scored) ([][]float32, error) {
	model := h.embedder.Model()
	texts := make([]string, len(scored))
	hashes := make([]string, len(scored))
	for i, s := range scored {
		texts[i] = similarity.ComparisonText(s.Assistant)
		hashes[i] = textHash(texts[i])
	}

	cached := map[string][]float32{}
	if h.cache != nil {
		var err error
		if cached, err = h.cache.GetVectors(model, hashes); err != nil {
			h.logger.Warn("retrieval: vector cache read failed", "error", err)
			cached = map[string][]float32{}
		}
	}

	var missIdx []int
	var missTexts []string
	for i, hash := range hashes {
		if _, ok := cached[hash]; !ok {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}

	if len(missTexts) > 0 {
		fresh, err := h.embedder.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		toStore := make([]storage.AssistantVector, len(fresh))
		for j, vec := range fresh {
			i := missIdx[j]
			cached[hashes[i]] = vec
			toStore[j] = storage.AssistantVector{
				Model:       model,
				TextHash:    hashes[i],
				AssistantID: scored[i].Assistant.ID,
				Embedding:   vec,
			}
		}
		if h.cache != nil {
			if err := h.cache.PutVectors(toStore); err != nil {
				h.logger.Warn("retrieval: vector cache write failed", "error", err)
			}
		}
	}

	out := make([][]float32, len(scored))
	for i, hash := range hashes {
		out[i] = cached[hash]
	}
	return out, nil
}

// Prune drops cached vectors that no assistant in snap still maps to.
func (h *HybridScorer) Prune(snap *catalog.Snapshot) (int64, error) {
	if h.cache == nil || h.embedder == nil || snap == nil {
		return 0, nil
	}
	keep := make([]string, 0, snap.Len())
	for _, a := range snap.Assistants() {
		keep = append(keep, textHash(similarity.ComparisonText(a)))
	}
	return h.cache.PruneVectors(h.embedder.Model(), keep)
}

// textHash keys cached vectors by content, so edited assistants are
// re-embedded.
func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// cosine returns dot(a,b)/(|a||b|), or 0 for mismatched or zero vectors.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, aNormSq, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aNormSq += float64(a[i]) * float64(a[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	if aNormSq == 0 || bNormSq == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(aNormSq) * math.Sqrt(bNormSq)))
}
