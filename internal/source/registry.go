package source

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ctrise/grantmatch/internal/model"
	"github.com/ctrise/grantmatch/internal/resilience"
	"github.com/ctrise/grantmatch/pkg/grantsgov"
)

// maxSummaryLen bounds the synopsis text carried into a candidate.
const maxSummaryLen = 1600

// RegistrySource pulls opportunities from the public Grants.gov registry.
type RegistrySource struct {
	client   grantsgov.Client
	keyword  string
	statuses string
	pageSize int
	attempts int
	retry    resilience.Policy
}

// NewRegistry creates a Grants.gov source for the given keyword query.
func NewRegistry(client grantsgov.Client, keyword string) *RegistrySource {
	p := resilience.DefaultPolicy()
	p.OnRetry = resilience.Logged("grantsgov", "search2")
	return &RegistrySource{
		client:   client,
		keyword:  keyword,
		statuses: "forecasted|posted",
		pageSize: 40,
		attempts: defaultAttempts,
		retry:    p,
	}
}

// WithRetry overrides the per-call retry policy.
func (s *RegistrySource) WithRetry(p resilience.Policy) *RegistrySource {
	s.retry = p
	return s
}

func (s *RegistrySource) Name() string { return "registry" }

// Fetch pages forward through the registry until the minimum is met or the
// attempt budget (one page per attempt) runs out.
func (s *RegistrySource) Fetch(ctx context.Context, min int) ([]model.GrantCandidate, error) {
	acc := newAccumulator()

	for attempt := 0; attempt < s.attempts; attempt++ {
		start := attempt * s.pageSize

		result, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*grantsgov.SearchResult, error) {
			return s.client.Search(ctx, grantsgov.SearchRequest{
				Keyword:        s.keyword,
				OppStatuses:    s.statuses,
				Rows:           s.pageSize,
				StartRecordNum: start,
			})
		})
		if err != nil {
			return acc.cands, eris.Wrap(err, "source: registry search")
		}

		for _, hit := range result.OppHits {
			acc.add(fromOppHit(hit))
		}

		if acc.len() >= min {
			return acc.cands, nil
		}
		if start+s.pageSize >= result.HitCount {
			// Registry has no further pages.
			break
		}
		zap.L().Info("registry page short of requested count, paging forward",
			zap.Int("page", attempt+1),
			zap.Int("usable", acc.len()),
			zap.Int("requested", min),
		)
	}

	return acc.cands, eris.Wrapf(model.ErrSourceExhausted, "source: registry got %d of %d", acc.len(), min)
}

// fromOppHit maps the registry's field names onto the canonical candidate
// shape, backfilling "N/A" where the registry supplied nothing.
func fromOppHit(h grantsgov.OppHit) model.GrantCandidate {
	summary := h.Synopsis
	if len(summary) > maxSummaryLen {
		summary = summary[:maxSummaryLen]
	}
	detail := ""
	if h.ID != "" {
		detail = h.DetailURL()
	}
	return model.GrantCandidate{
		Title:     orNA(h.Title),
		Sponsor:   orNA(h.AgencyName),
		Amount:    orNA(h.AwardCeiling),
		Deadline:  orNA(h.CloseDate),
		Summary:   orNA(summary),
		SourceURL: orNA(detail),
		Verified:  true,
	}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return model.NA
	}
	return s
}
