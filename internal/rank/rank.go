// Package rank scores candidates against the mission statement by
// embedding cosine similarity.
package rank

import (
	"context"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ctrise/grantmatch/internal/cache"
	"github.com/ctrise/grantmatch/internal/model"
	"github.com/ctrise/grantmatch/internal/resilience"
)

// Embedder converts texts into fixed-length vectors. Satisfied by the Jina
// client.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Ranker embeds the mission once per batch and scores each candidate's
// summary against it.
type Ranker struct {
	embedder Embedder
	cache    *cache.EmbeddingCache // nil disables caching
	model    string
	limiter  *rate.Limiter
	retry    resilience.Policy
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithCache persists vectors across runs.
func WithCache(c *cache.EmbeddingCache, embedModel string) Option {
	return func(r *Ranker) {
		r.cache = c
		r.model = embedModel
	}
}

// WithLimiter paces embedding calls.
func WithLimiter(l *rate.Limiter) Option {
	return func(r *Ranker) { r.limiter = l }
}

// WithRetry overrides the embedding retry policy.
func WithRetry(p resilience.Policy) Option {
	return func(r *Ranker) { r.retry = p }
}

// New creates a Ranker.
func New(embedder Embedder, opts ...Option) *Ranker {
	r := &Ranker{
		embedder: embedder,
		retry:    resilience.EmbeddingPolicy(),
	}
	r.retry.OnRetry = resilience.Logged("embedding", "embed")
	for _, o := range opts {
		o(r)
	}
	return r
}

// Rank scores candidates against the mission and returns them sorted by
// score descending (stable; Unknown rows last). The mission is embedded
// once per batch. A candidate whose embedding fails after retries gets
// feasibility Unknown and score 0 instead of failing the batch; a mission
// embedding failure is terminal because no candidate can be scored.
func (r *Ranker) Rank(ctx context.Context, mission string, cands []model.GrantCandidate) ([]model.RankedGrant, error) {
	missionVec, err := r.embed(ctx, mission)
	if err != nil {
		return nil, eris.Wrap(err, "rank: embed mission")
	}

	ranked := make([]model.RankedGrant, 0, len(cands))
	for _, c := range cands {
		rg := model.RankedGrant{GrantCandidate: c}

		vec, err := r.embed(ctx, c.Summary)
		if err != nil {
			zap.L().Warn("embedding failed for candidate, marking unknown",
				zap.String("title", c.Title),
				zap.Error(err),
			)
			rg.Feasibility = model.FeasibilityUnknown
			ranked = append(ranked, rg)
			continue
		}

		rg.MatchScore = Score(vec, missionVec)
		rg.Feasibility = model.FeasibilityForScore(rg.MatchScore)
		ranked = append(ranked, rg)
	}

	Sort(ranked)
	return ranked, nil
}

// Sort orders rows by score descending. The sort is stable so equal scores
// keep source order; Unknown rows are excluded from the score comparison
// and placed at the end.
func Sort(rows []model.RankedGrant) {
	sort.SliceStable(rows, func(i, j int) bool {
		iu := rows[i].Feasibility == model.FeasibilityUnknown
		ju := rows[j].Feasibility == model.FeasibilityUnknown
		if iu != ju {
			return ju
		}
		if iu {
			return false
		}
		return rows[i].MatchScore > rows[j].MatchScore
	})
}

// Score maps cosine similarity of two vectors onto 0-100, rounded to one
// decimal. Negative similarity clamps to 0.
func Score(a, b []float64) float64 {
	sim := cosine(a, b)
	if sim < 0 {
		sim = 0
	}
	return math.Round(sim*1000) / 10
}

func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (r *Ranker) embed(ctx context.Context, text string) ([]float64, error) {
	if r.cache != nil {
		if vec, ok, err := r.cache.Get(ctx, r.model, text); err != nil {
			zap.L().Warn("embedding cache read failed", zap.Error(err))
		} else if ok {
			return vec, nil
		}
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rank: limiter wait")
		}
	}

	vec, err := resilience.DoVal(ctx, r.retry, func(ctx context.Context) ([]float64, error) {
		vecs, err := r.embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) != 1 {
			return nil, eris.Errorf("rank: expected 1 vector, got %d", len(vecs))
		}
		return vecs[0], nil
	})
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Put(ctx, r.model, text, vec); err != nil {
			zap.L().Warn("embedding cache write failed", zap.Error(err))
		}
	}
	return vec, nil
}
