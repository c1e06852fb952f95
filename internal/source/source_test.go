package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctrise/grantmatch/internal/model"
	"github.com/ctrise/grantmatch/internal/resilience"
	"github.com/ctrise/grantmatch/pkg/anthropic"
	"github.com/ctrise/grantmatch/pkg/grantsgov"
	"github.com/ctrise/grantmatch/pkg/perplexity"
)

func noRetry() resilience.Policy {
	p := resilience.DefaultPolicy()
	p.MaxAttempts = 1
	return p
}

func grantJSON(title string) string {
	return fmt.Sprintf(`{"title":%q,"sponsor":"Acme Fund","amount":"$50,000","summary":"Youth programs.","deadline":"rolling","url":"https://example.org/%s"}`, title, strings.ReplaceAll(title, " ", "-"))
}

func grantArray(titles ...string) string {
	objs := make([]string, len(titles))
	for i, t := range titles {
		objs[i] = grantJSON(t)
	}
	return "[" + strings.Join(objs, ",") + "]"
}

type fakeSearch struct {
	replies  []string
	err      error
	requests []perplexity.ChatCompletionRequest
}

func (f *fakeSearch) ChatCompletion(_ context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return &perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: reply}}},
	}, nil
}

func TestSearchFetchOverAsks(t *testing.T) {
	fake := &fakeSearch{replies: []string{grantArray("Alpha", "Beta", "Gamma", "Delta")}}
	s := NewSearch(fake, "youth equity").WithRetry(noRetry())

	got, err := s.Fetch(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.True(t, got[0].Verified)

	require.Len(t, fake.requests, 1)
	user := fake.requests[0].Messages[len(fake.requests[0].Messages)-1].Content
	assert.Contains(t, user, "Find 4 CURRENT")
	assert.Contains(t, user, strings.Join(model.CandidateKeys, ", "))
	assert.Equal(t, "month", fake.requests[0].SearchRecencyFilter)
}

func TestSearchFetchSharpensOnGarbage(t *testing.T) {
	fake := &fakeSearch{replies: []string{
		"I'm sorry, I cannot help with that.",
		grantArray("Alpha", "Beta"),
	}}
	s := NewSearch(fake, "youth equity").WithRetry(noRetry())

	got, err := s.Fetch(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.Len(t, fake.requests, 2)
	first := fake.requests[0].Messages[1].Content
	second := fake.requests[1].Messages[1].Content
	assert.NotContains(t, first, "previous answer")
	assert.Contains(t, second, "previous answer")
}

func TestSearchFetchExhaustedReturnsPartial(t *testing.T) {
	// The same single record comes back every attempt; the accumulator
	// dedupes it, so the budget runs out with one usable candidate.
	fake := &fakeSearch{replies: []string{grantArray("Alpha")}}
	s := NewSearch(fake, "youth equity").WithRetry(noRetry())

	got, err := s.Fetch(context.Background(), 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSourceExhausted))
	assert.Len(t, got, 1)
	assert.Len(t, fake.requests, 3)
}

func TestSearchFetchDropsUntitled(t *testing.T) {
	fake := &fakeSearch{replies: []string{
		`[{"sponsor":"Acme Fund"},` + grantJSON("Alpha") + `]`,
	}}
	s := NewSearch(fake, "youth equity").WithRetry(noRetry())

	got, err := s.Fetch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alpha", got[0].Title)
}

func TestSearchFetchTransportErrorIsTerminal(t *testing.T) {
	fake := &fakeSearch{err: errors.New("connection refused")}
	s := NewSearch(fake, "youth equity").WithRetry(noRetry())

	_, err := s.Fetch(context.Background(), 1)
	require.Error(t, err)
	assert.False(t, errors.Is(err, model.ErrSourceExhausted))
	assert.Len(t, fake.requests, 1)
}

func TestSearchFetchURL(t *testing.T) {
	fake := &fakeSearch{replies: []string{
		"Here is the grant:\n```json\n" + grantJSON("Alpha") + "\n```",
	}}
	s := NewSearch(fake, "youth equity").WithRetry(noRetry())

	c, err := s.FetchURL(context.Background(), "https://funder.org/rfp")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", c.Title)
	assert.Equal(t, "https://funder.org/rfp", c.SourceURL)
	assert.True(t, c.Verified)
}

func TestSearchFetchURLUnparseable(t *testing.T) {
	fake := &fakeSearch{replies: []string{"no structured data here"}}
	s := NewSearch(fake, "youth equity").WithRetry(noRetry())

	_, err := s.FetchURL(context.Background(), "https://funder.org/rfp")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrExtraction))
}

type fakeChat struct {
	reply    string
	requests []anthropic.MessageRequest
}

func (f *fakeChat) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.requests = append(f.requests, req)
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.reply}},
	}, nil
}

func TestGenerativeFetchUnverified(t *testing.T) {
	fake := &fakeChat{reply: grantArray("Alpha", "Beta")}
	s := NewGenerative(fake, "claude-sonnet-4-20250514", "youth equity").WithRetry(noRetry())

	got, err := s.Fetch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, c := range got {
		assert.False(t, c.Verified)
	}
	require.Len(t, fake.requests, 1)
	assert.Equal(t, "claude-sonnet-4-20250514", fake.requests[0].Model)
	assert.Contains(t, fake.requests[0].Messages[0].Content, strings.Join(model.CandidateKeys, ", "))
}

type fakeRegistry struct {
	pages    []*grantsgov.SearchResult
	requests []grantsgov.SearchRequest
}

func (f *fakeRegistry) Search(_ context.Context, req grantsgov.SearchRequest) (*grantsgov.SearchResult, error) {
	f.requests = append(f.requests, req)
	page := req.StartRecordNum / req.Rows
	if page >= len(f.pages) {
		return &grantsgov.SearchResult{}, nil
	}
	return f.pages[page], nil
}

func hit(id, title string) grantsgov.OppHit {
	return grantsgov.OppHit{
		ID:           id,
		Title:        title,
		AgencyName:   "Dept. of Education",
		CloseDate:    "2027-01-15",
		Synopsis:     "Support for college readiness.",
		AwardCeiling: "250000",
	}
}

func TestRegistryFetchMapsFields(t *testing.T) {
	fake := &fakeRegistry{pages: []*grantsgov.SearchResult{
		{HitCount: 1, OppHits: []grantsgov.OppHit{hit("12345", "College Access")}},
	}}
	s := NewRegistry(fake, "education").WithRetry(noRetry())

	got, err := s.Fetch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, "College Access", c.Title)
	assert.Equal(t, "Dept. of Education", c.Sponsor)
	assert.Equal(t, "250000", c.Amount)
	assert.Equal(t, "2027-01-15", c.Deadline)
	assert.Equal(t, "https://www.grants.gov/search-results-detail/12345", c.SourceURL)
	assert.True(t, c.Verified)
}

func TestRegistryFetchBackfillsMissing(t *testing.T) {
	fake := &fakeRegistry{pages: []*grantsgov.SearchResult{
		{HitCount: 1, OppHits: []grantsgov.OppHit{{Title: "Sparse Listing"}}},
	}}
	s := NewRegistry(fake, "education").WithRetry(noRetry())

	got, err := s.Fetch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, model.NA, c.Sponsor)
	assert.Equal(t, model.NA, c.Amount)
	assert.Equal(t, model.NA, c.Deadline)
	assert.Equal(t, model.NA, c.SourceURL)
}

func TestRegistryFetchPagesForward(t *testing.T) {
	fake := &fakeRegistry{pages: []*grantsgov.SearchResult{
		{HitCount: 80, OppHits: []grantsgov.OppHit{hit("1", "Page One Grant")}},
		{HitCount: 80, OppHits: []grantsgov.OppHit{hit("2", "Page Two Grant")}},
	}}
	s := NewRegistry(fake, "education").WithRetry(noRetry())

	got, err := s.Fetch(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.Len(t, fake.requests, 2)
	assert.Equal(t, 0, fake.requests[0].StartRecordNum)
	assert.Equal(t, 40, fake.requests[1].StartRecordNum)
}

func TestRegistryFetchStopsAtLastPage(t *testing.T) {
	fake := &fakeRegistry{pages: []*grantsgov.SearchResult{
		{HitCount: 1, OppHits: []grantsgov.OppHit{hit("1", "Only Grant")}},
	}}
	s := NewRegistry(fake, "education").WithRetry(noRetry())

	got, err := s.Fetch(context.Background(), 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSourceExhausted))
	assert.Len(t, got, 1)
	assert.Len(t, fake.requests, 1)
}
