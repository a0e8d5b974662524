// Package similarity scores assistants against a free-text description.
package similarity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kalambet/agora/internal/catalog"
)

// Scored pairs an assistant with its similarity to a description.
type Scored struct {
	Assistant catalog.Assistant `json:"assistant"`
	Score     float64           `json:"score"`
}

// Scorer ranks candidates against a description. Results are sorted by
// descending score with ties broken by ascending assistant id, and every
// score is within [0, 1].
type Scorer interface {
	Rank(ctx context.Context, description string, candidates []catalog.Assistant) ([]Scored, error)
}

// Compile-time check that Ranker implements Scorer.
var _ Scorer = (*Ranker)(nil)

// Ranker is a lexical Scorer: TF-IDF weighted term vectors compared by
// cosine similarity. IDF is computed over the candidate pool, so the same
// description and candidates always produce the same scores.
type Ranker struct{}

// NewRanker returns a lexical ranker.
func NewRanker() *Ranker { return &Ranker{} }

// Rank implements Scorer.
func (r *Ranker) Rank(ctx context.Context, description string, candidates []catalog.Assistant) ([]Scored, error) {
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("%w: description is empty", catalog.ErrInvalidQuery)
	}
	if len(candidates) == 0 {
		return []Scored{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs := make([]map[string]int, len(candidates))
	df := make(map[string]int)
	for i, a := range candidates {
		docs[i] = termCounts(Tokenize(ComparisonText(a)))
		for term := range docs[i] {
			df[term]++
		}
	}

	n := float64(len(candidates))
	idf := func(term string) float64 {
		// Smoothed so terms absent from the pool still carry weight.
		return math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	query := weigh(termCounts(Tokenize(description)), idf)
	out := make([]Scored, len(candidates))
	for i, a := range candidates {
		out[i] = Scored{Assistant: a, Score: cosine(query, weigh(docs[i], idf))}
	}
	Sort(out)
	return out, nil
}

// ComparisonText is the text an assistant is scored on: title,
// description and tags.
func ComparisonText(a catalog.Assistant) string {
	parts := make([]string, 0, 2+len(a.Tags))
	parts = append(parts, a.Title, a.Description)
	parts = append(parts, a.Tags...)
	return strings.Join(parts, " ")
}

// Sort orders scored assistants by descending score, then ascending id.
func Sort(s []Scored) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		return s[i].Assistant.ID < s[j].Assistant.ID
	})
}

// Top returns at most k leading entries of a sorted slice.
func Top(s []Scored, k int) []Scored {
	if k <= 0 || k >= len(s) {
		return s
	}
	return s[:k]
}

// termWeight is one component of a sparse vector. Vectors are kept sorted
// by term so sums are accumulated in a fixed order.
type termWeight struct {
	term   string
	weight float64
}

func termCounts(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}

// weigh builds a sorted sparse vector with sublinear term frequency.
func weigh(counts map[string]int, idf func(string) float64) []termWeight {
	vec := make([]termWeight, 0, len(counts))
	for term, c := range counts {
		vec = append(vec, termWeight{term: term, weight: (1 + math.Log(float64(c))) * idf(term)})
	}
	sort.Slice(vec, func(i, j int) bool { return vec[i].term < vec[j].term })
	return vec
}

// cosine returns the cosine similarity of two sorted sparse vectors,
// clamped to [0, 1]. Zero vectors score 0.
func cosine(a, b []termWeight) float64 {
	var dot, na, nb float64
	for _, x := range a {
		na += x.weight * x.weight
	}
	for _, y := range b {
		nb += y.weight * y.weight
	}
	if na == 0 || nb == 0 {
		return 0
	}
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].term < b[j].term:
			i++
		case a[i].term > b[j].term:
			j++
		default:
			dot += a[i].weight * b[j].weight
			i++
			j++
		}
	}
	return Clamp(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Clamp bounds a score to [0, 1]; NaN becomes 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
