package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctrise/grantmatch/internal/annotate"
	"github.com/ctrise/grantmatch/internal/model"
	"github.com/ctrise/grantmatch/internal/rank"
	"github.com/ctrise/grantmatch/internal/resilience"
	"github.com/ctrise/grantmatch/internal/table"
)

func newRanker(emb *fakeEmbedder) *rank.Ranker {
	p := resilience.EmbeddingPolicy()
	p.MaxAttempts = 1
	return rank.New(emb, rank.WithRetry(p))
}

const mission = "Prepare students for college and career success."

type fakeSource struct {
	cands []model.GrantCandidate
	err   error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(context.Context, int) ([]model.GrantCandidate, error) {
	return f.cands, f.err
}

type fakeEmbedder struct {
	vectors map[string][]float64
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		vec, ok := e.vectors[t]
		if !ok {
			return nil, errors.New("embedding service unreachable")
		}
		out[i] = vec
	}
	return out, nil
}

func cand(title, deadline, url, summary string) model.GrantCandidate {
	return model.GrantCandidate{
		Title:     title,
		Sponsor:   "Acme Fund",
		Amount:    "$50,000",
		Deadline:  deadline,
		Summary:   summary,
		SourceURL: url,
		Verified:  true,
	}
}

func newTable(t *testing.T) *table.Table {
	t.Helper()
	tab, err := table.Load(filepath.Join(t.TempDir(), "grants.csv"))
	require.NoError(t, err)
	return tab
}

func TestRefreshFiltersScoresAndAppends(t *testing.T) {
	tab := newTable(t)
	require.NoError(t, tab.Append(model.RankedGrant{
		GrantCandidate: cand("Existing Grant", "rolling", "https://a.org/1", "College readiness support."),
		MatchScore:     80,
		Feasibility:    model.FeasibilityHigh,
	}))

	src := &fakeSource{cands: []model.GrantCandidate{
		cand("Existing Grant", "rolling", "https://a.org/9", "dup by title"),
		cand("Fresh By URL Dup", "rolling", "https://a.org/1", "dup by url"),
		cand("Expired Grant", "2020-01-01", "https://a.org/2", "long gone"),
		cand("Strong Fit", "rolling", "https://a.org/3", "college readiness"),
		cand("Weak Fit", "2099-12-31", "https://a.org/4", "unrelated topic"),
	}}

	emb := &fakeEmbedder{vectors: map[string][]float64{
		mission:              {1, 0},
		"college readiness":  {1, 0},
		"unrelated topic":    {0.3, 1},
		"dup by title":       {1, 0},
		"dup by url":         {1, 0},
	}}

	p := New(src, newRanker(emb), nil, tab, mission)
	sum, err := p.Refresh(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Fetched)
	assert.Equal(t, 2, sum.Duplicates)
	assert.Equal(t, 1, sum.Expired)
	assert.Equal(t, 2, sum.Added)
	assert.False(t, sum.Partial)

	rows := tab.Rows()
	require.Len(t, rows, 3)
	// New rows arrive score-descending after the pre-existing row.
	assert.Equal(t, "Strong Fit", rows[1].Title)
	assert.Equal(t, 100.0, rows[1].MatchScore)
	assert.Equal(t, model.FeasibilityHigh, rows[1].Feasibility)
	assert.Equal(t, annotate.Placeholder, rows[1].Rationale)
	assert.NotEmpty(t, rows[1].AddedAt)
	assert.Equal(t, "Weak Fit", rows[2].Title)
	assert.Equal(t, model.FeasibilityLow, rows[2].Feasibility)

	// And the rows survived persistence.
	reloaded, err := table.Load(tab.Path())
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.Len())
}

func TestRefreshEmbeddingOutageIsFatal(t *testing.T) {
	tab := newTable(t)
	src := &fakeSource{cands: []model.GrantCandidate{
		cand("Some Grant", "rolling", "https://a.org/1", "anything"),
	}}
	emb := &fakeEmbedder{vectors: map[string][]float64{}} // mission embed fails

	p := New(src, newRanker(emb), nil, tab, mission)
	_, err := p.Refresh(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, 0, tab.Len())
}

func TestRefreshPartialSourceContinues(t *testing.T) {
	tab := newTable(t)
	src := &fakeSource{
		cands: []model.GrantCandidate{cand("Only Grant", "rolling", "https://a.org/1", "college readiness")},
		err:   model.ErrSourceExhausted,
	}
	emb := &fakeEmbedder{vectors: map[string][]float64{
		mission:             {1, 0},
		"college readiness": {1, 0},
	}}

	p := New(src, newRanker(emb), nil, tab, mission)
	sum, err := p.Refresh(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, sum.Partial)
	assert.Equal(t, 1, sum.Added)
	assert.Contains(t, sum.String(), "fewer than requested")
}

func TestRefreshSourceTransportErrorIsFatal(t *testing.T) {
	tab := newTable(t)
	src := &fakeSource{err: errors.New("connection refused")}

	p := New(src, newRanker(&fakeEmbedder{}), nil, tab, mission)
	_, err := p.Refresh(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, 0, tab.Len())
}

func TestRefreshAllFilteredOut(t *testing.T) {
	tab := newTable(t)
	require.NoError(t, tab.Append(model.RankedGrant{
		GrantCandidate: cand("Existing Grant", "rolling", "https://a.org/1", "s"),
	}))
	src := &fakeSource{cands: []model.GrantCandidate{
		cand("Existing Grant", "rolling", "N/A", "s"),
	}}

	// The embedder would fail if called; nothing admitted means no call.
	p := New(src, newRanker(&fakeEmbedder{}), nil, tab, mission)
	sum, err := p.Refresh(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Duplicates)
	assert.Equal(t, 0, sum.Added)
}

type fakeFetcher struct {
	cand model.GrantCandidate
	err  error
}

func (f *fakeFetcher) FetchURL(context.Context, string) (model.GrantCandidate, error) {
	return f.cand, f.err
}

func TestAnalyzeURLAppendsScoredRow(t *testing.T) {
	tab := newTable(t)
	emb := &fakeEmbedder{vectors: map[string][]float64{
		mission:             {1, 0},
		"college readiness": {3, 4},
	}}
	fetcher := &fakeFetcher{cand: cand("Page Grant", "rolling", "https://funder.org/rfp", "college readiness")}

	p := New(nil, newRanker(emb), nil, tab, mission)
	g, err := p.AnalyzeURL(context.Background(), fetcher, "https://funder.org/rfp")
	require.NoError(t, err)
	assert.Equal(t, "Page Grant", g.Title)
	assert.Equal(t, 60.0, g.MatchScore)
	assert.Equal(t, model.FeasibilityMedium, g.Feasibility)
	assert.Equal(t, 1, tab.Len())
}

func TestAnalyzeURLRejectsDuplicate(t *testing.T) {
	tab := newTable(t)
	require.NoError(t, tab.Append(model.RankedGrant{
		GrantCandidate: cand("Page Grant", "rolling", "https://funder.org/rfp", "s"),
	}))
	fetcher := &fakeFetcher{cand: cand("Page Grant", "rolling", "https://funder.org/rfp", "s")}

	p := New(nil, newRanker(&fakeEmbedder{}), nil, tab, mission)
	_, err := p.AnalyzeURL(context.Background(), fetcher, "https://funder.org/rfp")
	assert.ErrorIs(t, err, model.ErrDuplicate)
	assert.Equal(t, 1, tab.Len())
}

func TestSummaryString(t *testing.T) {
	s := Summary{Fetched: 5, Duplicates: 2, Expired: 1, Added: 2}
	assert.Equal(t, "5 fetched, 2 duplicates skipped, 1 expired skipped, 2 added", s.String())

	assert.Equal(t, "3 fetched, 3 added", Summary{Fetched: 3, Added: 3}.String())
}
