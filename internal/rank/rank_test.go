package rank

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctrise/grantmatch/internal/model"
	"github.com/ctrise/grantmatch/internal/resilience"
)

// vectorEmbedder returns a fixed vector per text and errors on unknown text.
type vectorEmbedder struct {
	vectors map[string][]float64
	calls   int
}

func (e *vectorEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	e.calls++
	out := make([][]float64, len(texts))
	for i, t := range texts {
		vec, ok := e.vectors[t]
		if !ok {
			return nil, errors.New("embedding service rejected input")
		}
		out[i] = vec
	}
	return out, nil
}

func fastRetry() resilience.Policy {
	return resilience.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestScore_IdenticalVectorsIs100(t *testing.T) {
	v := []float64{0.3, 0.4, 0.5}
	assert.Equal(t, 100.0, Score(v, v))
}

func TestScore_OrthogonalIs0(t *testing.T) {
	assert.Equal(t, 0.0, Score([]float64{1, 0}, []float64{0, 1}))
}

func TestScore_NegativeClampsToZero(t *testing.T) {
	assert.Equal(t, 0.0, Score([]float64{1, 0}, []float64{-1, 0}))
}

func TestScore_RoundsToOneDecimal(t *testing.T) {
	// cos = 0.8 exactly for these vectors.
	got := Score([]float64{3, 4}, []float64{1, 0})
	assert.Equal(t, 60.0, got)
}

func TestScore_MismatchedLengths(t *testing.T) {
	assert.Equal(t, 0.0, Score([]float64{1, 0}, []float64{1}))
}

func TestScore_IdempotentWithSameVectors(t *testing.T) {
	a := []float64{0.12, 0.34, 0.56}
	b := []float64{0.65, 0.43, 0.21}
	assert.Equal(t, Score(a, b), Score(a, b))
}

func TestRank_MissionIdenticalSummaryScoresHighest(t *testing.T) {
	mission := "improve student outcomes"
	emb := &vectorEmbedder{vectors: map[string][]float64{
		mission:      {1, 0, 0},
		"same":       {1, 0, 0},
		"orthogonal": {0, 1, 0},
	}}
	r := New(emb, WithRetry(fastRetry()))

	ranked, err := r.Rank(context.Background(), mission, []model.GrantCandidate{
		{Title: "B", Summary: "orthogonal"},
		{Title: "A", Summary: "same"},
	})
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	assert.Equal(t, "A", ranked[0].Title)
	assert.Equal(t, 100.0, ranked[0].MatchScore)
	assert.Equal(t, model.FeasibilityHigh, ranked[0].Feasibility)
	assert.Equal(t, model.FeasibilityLow, ranked[1].Feasibility)
}

func TestRank_EmbedFailureMarksUnknownAndSortsLast(t *testing.T) {
	mission := "mission"
	emb := &vectorEmbedder{vectors: map[string][]float64{
		mission: {1, 0},
		"good":  {1, 0},
	}}
	r := New(emb, WithRetry(fastRetry()))

	ranked, err := r.Rank(context.Background(), mission, []model.GrantCandidate{
		{Title: "Broken", Summary: "unembeddable"},
		{Title: "Good", Summary: "good"},
	})
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	assert.Equal(t, "Good", ranked[0].Title)
	assert.Equal(t, "Broken", ranked[1].Title)
	assert.Equal(t, model.FeasibilityUnknown, ranked[1].Feasibility)
	assert.Equal(t, 0.0, ranked[1].MatchScore)
}

func TestRank_MissionEmbedFailureIsTerminal(t *testing.T) {
	emb := &vectorEmbedder{vectors: map[string][]float64{}}
	r := New(emb, WithRetry(fastRetry()))

	_, err := r.Rank(context.Background(), "mission", []model.GrantCandidate{{Title: "A"}})
	assert.Error(t, err)
}

func TestRank_StableOrderOnEqualScores(t *testing.T) {
	mission := "mission"
	emb := &vectorEmbedder{vectors: map[string][]float64{
		mission: {1, 0},
		"tie":   {1, 1},
	}}
	r := New(emb, WithRetry(fastRetry()))

	ranked, err := r.Rank(context.Background(), mission, []model.GrantCandidate{
		{Title: "First", Summary: "tie"},
		{Title: "Second", Summary: "tie"},
	})
	require.NoError(t, err)
	assert.Equal(t, "First", ranked[0].Title)
	assert.Equal(t, "Second", ranked[1].Title)
	assert.Equal(t, ranked[0].MatchScore, ranked[1].MatchScore)
}

func TestSort_UnknownAlwaysLast(t *testing.T) {
	rows := []model.RankedGrant{
		{GrantCandidate: model.GrantCandidate{Title: "U"}, Feasibility: model.FeasibilityUnknown},
		{GrantCandidate: model.GrantCandidate{Title: "L"}, MatchScore: 10, Feasibility: model.FeasibilityLow},
		{GrantCandidate: model.GrantCandidate{Title: "H"}, MatchScore: 90, Feasibility: model.FeasibilityHigh},
	}
	Sort(rows)
	assert.Equal(t, "H", rows[0].Title)
	assert.Equal(t, "L", rows[1].Title)
	assert.Equal(t, "U", rows[2].Title)
}
