// Package recommend turns a free-text need into a ranked shortlist of
// assistants and a composed explanation from a language model.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/agora/internal/catalog"
	"github.com/kalambet/agora/internal/completion"
	"github.com/kalambet/agora/internal/filter"
	"github.com/kalambet/agora/internal/similarity"
)

const (
	DefaultTopK            = 5
	MaxTopK                = 20
	defaultMaxPromptTokens = 2000
	defaultTimeout         = 20 * time.Second
)

// Mode tells how a Result was produced.
type Mode string

const (
	// ModeComposed carries a message written by the language model.
	ModeComposed Mode = "composed"
	// ModeSimilarityOnly is the degraded result used when the language
	// model failed, timed out or is disabled.
	ModeSimilarityOnly Mode = "similarity_only"
	// ModeNoMatch means the pre-filter left no candidates.
	ModeNoMatch Mode = "no_match"
)

// Fixed messages for results that were not composed by the model.
const (
	NoMatchMessage  = "No assistants matched the request."
	FallbackMessage = "Recommendations are ranked by similarity only; the language model was unavailable."
)

// Request asks for assistants fitting Description. Tags and Roles narrow
// the candidate pool before scoring.
type Request struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	// TopK overrides the configured shortlist size, up to MaxTopK.
	TopK int `json:"top_k,omitempty"`
}

// Result is a recommendation. Ranked is ordered by descending score with
// ties broken by ascending assistant id.
type Result struct {
	ID             string              `json:"id"`
	Ranked         []similarity.Scored `json:"ranked"`
	Message        string              `json:"message"`
	Mode           Mode                `json:"mode"`
	Reason         string              `json:"reason,omitempty"`
	Picks          []string            `json:"picks,omitempty"`
	CatalogVersion uint64              `json:"catalog_version"`
	CreatedAt      time.Time           `json:"created_at"`
}

// Observer is notified of every produced result.
type Observer interface {
	ObserveRecommendation(mode string)
}

// Option configures a Composer.
type Option func(*Composer)

// WithTopK sets the default shortlist size.
func WithTopK(k int) Option {
	return func(c *Composer) {
		if k > 0 {
			c.topK = min(k, MaxTopK)
		}
	}
}

// WithMaxPromptTokens bounds the prompt sent to the language model.
func WithMaxPromptTokens(n int) Option {
	return func(c *Composer) {
		if n > 0 {
			c.maxPromptTokens = n
		}
	}
}

// WithTimeout bounds each completion call.
func WithTimeout(d time.Duration) Option {
	return func(c *Composer) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRecorder persists every result to r.
func WithRecorder(r Recorder) Option {
	return func(c *Composer) { c.recorder = r }
}

// WithObserver registers o for result metrics.
func WithObserver(o Observer) Option {
	return func(c *Composer) { c.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Composer) {
		if l != nil {
			c.logger = l
		}
	}
}

// Composer produces recommendations. It is safe for concurrent use.
type Composer struct {
	scorer          similarity.Scorer
	completer       completion.Completer
	recorder        Recorder
	observer        Observer
	logger          *slog.Logger
	topK            int
	maxPromptTokens int
	timeout         time.Duration
	now             func() time.Time
}

// NewComposer creates a Composer. A nil completer behaves like a disabled
// language model.
func NewComposer(scorer similarity.Scorer, completer completion.Completer, opts ...Option) *Composer {
	if completer == nil {
		completer = completion.Disabled{}
	}
	c := &Composer{
		scorer:          scorer,
		completer:       completer,
		logger:          slog.Default(),
		topK:            DefaultTopK,
		maxPromptTokens: defaultMaxPromptTokens,
		timeout:         defaultTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Recommend ranks the assistants of snap against req and asks the language
// model to explain the best fits. Model failures degrade the result to
// ModeSimilarityOnly and are not returned. Cancelling ctx discards the
// shortlist and returns ctx.Err().
func (c *Composer) Recommend(ctx context.Context, req Request, snap *catalog.Snapshot) (Result, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return Result{}, fmt.Errorf("%w: description is empty", catalog.ErrInvalidQuery)
	}
	spec := filter.Spec{Tags: req.Tags, Roles: req.Roles}
	if err := spec.Validate(); err != nil {
		return Result{}, err
	}
	if snap == nil {
		return Result{}, fmt.Errorf("%w: no catalog loaded", catalog.ErrUpstreamUnavailable)
	}

	res := Result{
		ID:             uuid.NewString(),
		Ranked:         []similarity.Scored{},
		CatalogVersion: snap.Version(),
		CreatedAt:      c.now().UTC(),
	}

	pool := filter.Apply(spec, snap)
	if len(pool) == 0 {
		res.Mode = ModeNoMatch
		res.Message = NoMatchMessage
		c.finish(req, res)
		return res, nil
	}

	ranked, err := c.scorer.Rank(ctx, description, pool)
	if err != nil {
		return Result{}, err
	}
	res.Ranked = similarity.Top(ranked, c.shortlistSize(req.TopK))

	prompt := buildPrompt(description, res.Ranked, c.maxPromptTokens)
	message, picks, reason := c.compose(ctx, prompt, res.Ranked)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if reason != "" {
		c.logger.Warn("recommend: falling back to similarity ranking", "reason", reason, "shortlist", len(res.Ranked))
		res.Mode = ModeSimilarityOnly
		res.Message = FallbackMessage
		res.Reason = reason
	} else {
		res.Mode = ModeComposed
		res.Message = message
		res.Picks = picks
	}
	c.finish(req, res)
	return res, nil
}

// compose calls the language model under the configured timeout. A
// non-empty reason reports why no usable message was produced.
func (c *Composer) compose(ctx context.Context, prompt string, shortlist []similarity.Scored) (message string, picks []string, reason string) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := c.completer.Complete(callCtx, prompt)
	switch {
	case errors.Is(err, completion.ErrDisabled):
		return "", nil, "language model disabled"
	case err != nil && callCtx.Err() == context.DeadlineExceeded:
		return "", nil, fmt.Sprintf("language model timed out after %s", c.timeout)
	case err != nil:
		return "", nil, "language model failed: " + err.Error()
	}

	message, picks = parseReply(text, shortlist)
	if message == "" {
		return "", nil, "language model returned an empty message"
	}
	return message, picks, ""
}

func (c *Composer) shortlistSize(requested int) int {
	if requested <= 0 {
		return c.topK
	}
	return min(requested, MaxTopK)
}

// finish records and reports a result. Recording errors are logged only.
func (c *Composer) finish(req Request, res Result) {
	if c.observer != nil {
		c.observer.ObserveRecommendation(string(res.Mode))
	}
	if c.recorder == nil {
		return
	}
	rec, err := toRecord(req, res)
	if err == nil {
		err = c.recorder.SaveRecommendation(rec)
	}
	if err != nil {
		c.logger.Warn("recommend: failed to record result", "id", res.ID, "error", err)
	}
}
