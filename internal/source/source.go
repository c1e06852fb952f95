// Package source produces raw grant candidates from one of three
// interchangeable strategies: a search-grounded model, the Grants.gov
// registry, or a generative model with no live source behind it.
package source

import (
	"context"

	"github.com/ctrise/grantmatch/internal/filter"
	"github.com/ctrise/grantmatch/internal/model"
)

// Source fetches a bounded list of candidates. Implementations retry their
// own acquisition loop up to an attempt budget when the usable count falls
// short, sharpening the instruction (model strategies) or paging forward
// (registry). On an exhausted budget they return whatever they have along
// with model.ErrSourceExhausted — never synthesized padding.
type Source interface {
	Name() string
	Fetch(ctx context.Context, min int) ([]model.GrantCandidate, error)
}

// overAskFactor is how many records beyond the minimum a model strategy
// requests, to compensate for later dedupe and deadline losses.
const overAskFactor = 2

// defaultAttempts is the acquisition attempt budget shared by all
// strategies.
const defaultAttempts = 3

// accumulator collects candidates across attempts, dropping repeats the
// same strategy returned twice.
type accumulator struct {
	seen  map[string]struct{}
	cands []model.GrantCandidate
}

func newAccumulator() *accumulator {
	return &accumulator{seen: make(map[string]struct{})}
}

func (a *accumulator) add(c model.GrantCandidate) {
	if c.Title == model.NA {
		return
	}
	key := filter.TitleKey(c.Title)
	if _, ok := a.seen[key]; ok {
		return
	}
	a.seen[key] = struct{}{}
	a.cands = append(a.cands, c)
}

func (a *accumulator) len() int { return len(a.cands) }
