package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ctrise/grantmatch/internal/extract"
	"github.com/ctrise/grantmatch/internal/model"
	"github.com/ctrise/grantmatch/internal/resilience"
	"github.com/ctrise/grantmatch/pkg/perplexity"
)

const searchPrompt = `Find %d CURRENT U.S. grant opportunities for nonprofits focused on %s.
Only include real, verifiable opportunities that are open now or opening soon.
Return ONLY a JSON array; every element must have exactly these keys: %s.
amount is the maximum award in USD; deadline is "YYYY-MM-DD" or "rolling".
Use "N/A" for anything you cannot determine.`

const searchSharpener = `
Your previous answer could not be used. Respond with nothing except the raw JSON array itself: no prose, no markdown fences, no keys beyond those listed.`

// SearchSource discovers live opportunities through a search-grounded
// chat model.
type SearchSource struct {
	client   perplexity.Client
	focus    string
	attempts int
	retry    resilience.Policy
}

// NewSearch creates a search-grounded source for the given focus area
// (e.g. "high-school education, college readiness, or youth equity").
func NewSearch(client perplexity.Client, focus string) *SearchSource {
	p := resilience.DefaultPolicy()
	p.OnRetry = resilience.Logged("perplexity", "search")
	return &SearchSource{
		client:   client,
		focus:    focus,
		attempts: defaultAttempts,
		retry:    p,
	}
}

// WithRetry overrides the per-call retry policy.
func (s *SearchSource) WithRetry(p resilience.Policy) *SearchSource {
	s.retry = p
	return s
}

func (s *SearchSource) Name() string { return "search" }

// Fetch asks the model for strictly more records than needed and retries
// with a sharper instruction while the usable count is short.
func (s *SearchSource) Fetch(ctx context.Context, min int) ([]model.GrantCandidate, error) {
	acc := newAccumulator()

	for attempt := 0; attempt < s.attempts; attempt++ {
		prompt := fmt.Sprintf(searchPrompt, min*overAskFactor, s.focus, strings.Join(model.CandidateKeys, ", "))
		if attempt > 0 {
			prompt += searchSharpener
		}

		resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
			return s.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
				Messages: []perplexity.Message{
					{Role: "system", Content: "You are a nonprofit grants researcher."},
					{Role: "user", Content: prompt},
				},
				SearchRecencyFilter: "month",
			})
		})
		if err != nil {
			return acc.cands, eris.Wrap(err, "source: search completion")
		}

		objs, err := extract.List(resp.Text())
		if err != nil {
			zap.L().Warn("search response unparseable, sharpening instruction",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		for _, obj := range objs {
			c := extract.Candidate(obj)
			c.Verified = true
			acc.add(c)
		}

		if acc.len() >= min {
			return acc.cands, nil
		}
		zap.L().Info("search returned fewer usable records than requested",
			zap.Int("attempt", attempt+1),
			zap.Int("usable", acc.len()),
			zap.Int("requested", min),
		)
	}

	return acc.cands, eris.Wrapf(model.ErrSourceExhausted, "source: search got %d of %d", acc.len(), min)
}

const pagePrompt = `Fetch the web page at %s and extract the grant opportunity it describes as JSON:
{"title", "sponsor", "amount", "deadline" ("YYYY-MM-DD" or "rolling"), "summary"}.
If a field is unknown write "N/A". Respond ONLY with the JSON object.`

// FetchURL extracts a single grant from the page at rawURL via the
// search-grounded model. The returned candidate's SourceURL is always the
// requested URL.
func (s *SearchSource) FetchURL(ctx context.Context, rawURL string) (model.GrantCandidate, error) {
	resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
		return s.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
			Messages: []perplexity.Message{
				{Role: "user", Content: fmt.Sprintf(pagePrompt, rawURL)},
			},
		})
	})
	if err != nil {
		return model.GrantCandidate{}, eris.Wrap(err, "source: fetch page")
	}

	obj, err := extract.Object(resp.Text())
	if err != nil {
		return model.GrantCandidate{}, err
	}

	c := extract.Candidate(obj)
	c.SourceURL = rawURL
	c.Verified = true
	return c, nil
}
