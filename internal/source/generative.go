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
	"github.com/ctrise/grantmatch/pkg/anthropic"
)

const generativePrompt = `Invent %d plausible current U.S. grant opportunities for nonprofits focused on %s.
Return ONLY a JSON array; every element must have exactly these keys: %s.
amount is the maximum award in USD; deadline is "YYYY-MM-DD" or "rolling",
falling within the next 12 months. Use "N/A" for url.`

const generativeSharpener = `
Your previous answer could not be used. Respond with nothing except the raw JSON array itself: no prose, no markdown fences.`

// GenerativeSource invents plausible opportunities with a chat model that
// has no search tool. It is the fallback when no live source is
// configured; its candidates carry Verified=false so downstream consumers
// can tell they are not backed by a live URL.
type GenerativeSource struct {
	client    anthropic.Client
	chatModel string
	focus     string
	attempts  int
	retry     resilience.Policy
}

// NewGenerative creates a generative source.
func NewGenerative(client anthropic.Client, chatModel, focus string) *GenerativeSource {
	p := resilience.DefaultPolicy()
	p.OnRetry = resilience.Logged("anthropic", "generate")
	return &GenerativeSource{
		client:    client,
		chatModel: chatModel,
		focus:     focus,
		attempts:  defaultAttempts,
		retry:     p,
	}
}

// WithRetry overrides the per-call retry policy.
func (s *GenerativeSource) WithRetry(p resilience.Policy) *GenerativeSource {
	s.retry = p
	return s
}

func (s *GenerativeSource) Name() string { return "generative" }

func (s *GenerativeSource) Fetch(ctx context.Context, min int) ([]model.GrantCandidate, error) {
	acc := newAccumulator()

	for attempt := 0; attempt < s.attempts; attempt++ {
		prompt := fmt.Sprintf(generativePrompt, min*overAskFactor, s.focus, strings.Join(model.CandidateKeys, ", "))
		if attempt > 0 {
			prompt += generativeSharpener
		}

		resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return s.client.CreateMessage(ctx, anthropic.MessageRequest{
				Model:     s.chatModel,
				MaxTokens: 2048,
				System:    "You are a concise grants researcher.",
				Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
			})
		})
		if err != nil {
			return acc.cands, eris.Wrap(err, "source: generative completion")
		}

		objs, err := extract.List(resp.Text())
		if err != nil {
			zap.L().Warn("generative response unparseable, sharpening instruction",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		for _, obj := range objs {
			// Verified stays false: these rows are fabrications.
			acc.add(extract.Candidate(obj))
		}

		if acc.len() >= min {
			return acc.cands, nil
		}
	}

	return acc.cands, eris.Wrapf(model.ErrSourceExhausted, "source: generative got %d of %d", acc.len(), min)
}
