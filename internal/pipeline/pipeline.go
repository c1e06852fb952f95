// Package pipeline strings the stages together: fetch candidates, drop
// duplicates and expired deadlines, score the survivors against the
// mission, annotate them, and append them to the table.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ctrise/grantmatch/internal/annotate"
	"github.com/ctrise/grantmatch/internal/filter"
	"github.com/ctrise/grantmatch/internal/model"
	"github.com/ctrise/grantmatch/internal/rank"
	"github.com/ctrise/grantmatch/internal/source"
	"github.com/ctrise/grantmatch/internal/table"
)

// Summary reports what a refresh did with the fetched batch.
type Summary struct {
	Fetched    int
	Duplicates int
	Expired    int
	Added      int
	// Partial is set when the source could not meet the requested count
	// and the run proceeded with what it had.
	Partial bool
}

// String renders the summary the way the CLI prints it.
func (s Summary) String() string {
	parts := []string{fmt.Sprintf("%d fetched", s.Fetched)}
	if s.Duplicates > 0 {
		parts = append(parts, fmt.Sprintf("%d duplicates skipped", s.Duplicates))
	}
	if s.Expired > 0 {
		parts = append(parts, fmt.Sprintf("%d expired skipped", s.Expired))
	}
	parts = append(parts, fmt.Sprintf("%d added", s.Added))
	out := strings.Join(parts, ", ")
	if s.Partial {
		out += " (source returned fewer than requested)"
	}
	return out
}

// Pipeline owns one refresh or analyze run against a single table.
type Pipeline struct {
	src       source.Source
	ranker    *rank.Ranker
	annotator *annotate.Annotator
	tab       *table.Table
	mission   string
}

// New wires a pipeline. The annotator may be nil, in which case every row
// gets the placeholder rationale.
func New(src source.Source, ranker *rank.Ranker, annotator *annotate.Annotator, tab *table.Table, mission string) *Pipeline {
	return &Pipeline{
		src:       src,
		ranker:    ranker,
		annotator: annotator,
		tab:       tab,
		mission:   mission,
	}
}

// Refresh fetches at least min new candidates, filters, scores, annotates,
// and appends them. A short fetch is not fatal: the run continues with
// whatever the source produced and the summary notes the shortfall. An
// unreachable embedding service IS fatal and leaves the table untouched.
func (p *Pipeline) Refresh(ctx context.Context, min int) (Summary, error) {
	var sum Summary

	cands, err := p.src.Fetch(ctx, min)
	if err != nil {
		if !errors.Is(err, model.ErrSourceExhausted) {
			return sum, eris.Wrap(err, "pipeline: fetch")
		}
		sum.Partial = true
		zap.L().Warn("source exhausted its attempt budget, continuing with partial batch",
			zap.String("source", p.src.Name()),
			zap.Int("got", len(cands)),
			zap.Int("requested", min),
		)
	}
	sum.Fetched = len(cands)

	f := filter.New(p.tab.Rows())
	var admitted []model.GrantCandidate
	for _, c := range cands {
		switch err := f.Check(c); {
		case err == nil:
			f.Admit(c)
			admitted = append(admitted, c)
		case errors.Is(err, model.ErrDuplicate):
			sum.Duplicates++
			zap.L().Debug("skipping duplicate candidate", zap.String("title", c.Title))
		case errors.Is(err, model.ErrIneligibleDeadline):
			sum.Expired++
			zap.L().Debug("skipping expired candidate",
				zap.String("title", c.Title),
				zap.String("deadline", c.Deadline),
			)
		default:
			return sum, eris.Wrap(err, "pipeline: filter")
		}
	}
	if len(admitted) == 0 {
		return sum, nil
	}

	ranked, err := p.ranker.Rank(ctx, p.mission, admitted)
	if err != nil {
		return sum, eris.Wrap(err, "pipeline: rank")
	}

	for i := range ranked {
		ranked[i].Rationale = p.rationale(ctx, ranked[i].GrantCandidate)
	}

	for _, g := range ranked {
		if err := p.tab.Append(g); err != nil {
			return sum, eris.Wrap(err, "pipeline: append")
		}
		sum.Added++
	}

	zap.L().Info("refresh complete",
		zap.String("source", p.src.Name()),
		zap.Int("fetched", sum.Fetched),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("expired", sum.Expired),
		zap.Int("added", sum.Added),
	)
	return sum, nil
}

// URLFetcher extracts a single candidate from a web page. SearchSource
// implements it; the other strategies do not.
type URLFetcher interface {
	FetchURL(ctx context.Context, rawURL string) (model.GrantCandidate, error)
}

// AnalyzeURL scores one grant page and appends it to the table. The same
// duplicate and deadline rules apply as during a refresh.
func (p *Pipeline) AnalyzeURL(ctx context.Context, fetcher URLFetcher, rawURL string) (model.RankedGrant, error) {
	c, err := fetcher.FetchURL(ctx, rawURL)
	if err != nil {
		return model.RankedGrant{}, eris.Wrap(err, "pipeline: analyze")
	}

	f := filter.New(p.tab.Rows())
	if err := f.Check(c); err != nil {
		return model.RankedGrant{}, err
	}

	ranked, err := p.ranker.Rank(ctx, p.mission, []model.GrantCandidate{c})
	if err != nil {
		return model.RankedGrant{}, eris.Wrap(err, "pipeline: rank")
	}

	g := ranked[0]
	g.Rationale = p.rationale(ctx, g.GrantCandidate)

	if err := p.tab.Append(g); err != nil {
		return model.RankedGrant{}, eris.Wrap(err, "pipeline: append")
	}
	return g, nil
}

// rationale asks the chat model for a one-sentence justification, falling
// back to the placeholder when no annotator is wired or the call fails.
func (p *Pipeline) rationale(ctx context.Context, c model.GrantCandidate) string {
	if p.annotator == nil {
		return annotate.Placeholder
	}
	text, err := p.annotator.Rationale(ctx, p.mission, c)
	if err != nil {
		zap.L().Warn("rationale generation failed, using placeholder",
			zap.String("title", c.Title),
			zap.Error(err),
		)
		return annotate.Placeholder
	}
	return text
}
