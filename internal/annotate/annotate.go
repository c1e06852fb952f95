// Package annotate produces model-written fit rationales for ranked grants.
package annotate

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ctrise/grantmatch/internal/model"
	"github.com/ctrise/grantmatch/internal/resilience"
	"github.com/ctrise/grantmatch/pkg/anthropic"
)

// Placeholder is substituted when rationale generation fails after retries.
// Annotation failure for one row never blocks the others.
const Placeholder = "Could not generate rationale"

const rationalePrompt = `Nonprofit mission:
%s

Grant: %q — %s

In 1-2 sentences, explain whether this grant is a strong fit for the mission. Answer with the sentences only.`

const assessmentPrompt = `Nonprofit mission:
%s

Grant title: %s
Sponsor: %s
Amount: %s
Deadline: %s
Summary: %s

Write a short assessment of this grant for the nonprofit, with these sections:
1. Mission alignment
2. Key risks or caveats
3. Recommended next step

Keep each section to a few sentences of plain text.`

// Annotator asks a chat model for fit justifications.
type Annotator struct {
	chat  anthropic.Client
	model string
	retry resilience.Policy
}

// New creates an Annotator using the given chat model.
func New(chat anthropic.Client, chatModel string) *Annotator {
	p := resilience.DefaultPolicy()
	p.OnRetry = resilience.Logged("anthropic", "rationale")
	return &Annotator{chat: chat, model: chatModel, retry: p}
}

// WithRetry overrides the retry policy.
func (a *Annotator) WithRetry(p resilience.Policy) *Annotator {
	a.retry = p
	return a
}

// Rationale returns a one-to-few sentence fit justification for table
// display. Failure after retries returns model.ErrAnnotation; callers
// substitute Placeholder rather than aborting the batch.
func (a *Annotator) Rationale(ctx context.Context, mission string, g model.GrantCandidate) (string, error) {
	prompt := fmt.Sprintf(rationalePrompt, mission, g.Title, g.Summary)
	return a.complete(ctx, prompt, 200)
}

// Assessment returns the longer multi-part report text for one grant.
func (a *Annotator) Assessment(ctx context.Context, mission string, g model.GrantCandidate) (string, error) {
	prompt := fmt.Sprintf(assessmentPrompt, mission, g.Title, g.Sponsor, g.Amount, g.Deadline, g.Summary)
	return a.complete(ctx, prompt, 800)
}

func (a *Annotator) complete(ctx context.Context, prompt string, maxTokens int64) (string, error) {
	resp, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.chat.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     a.model,
			MaxTokens: maxTokens,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
	})
	if err != nil {
		zap.L().Warn("rationale generation failed", zap.Error(err))
		return "", eris.Wrap(model.ErrAnnotation, err.Error())
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.Wrap(model.ErrAnnotation, "empty completion")
	}
	return text, nil
}
