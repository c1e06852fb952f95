// Package filter enforces table uniqueness and deadline eligibility before
// a candidate is ranked.
package filter

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"

	"github.com/ctrise/grantmatch/internal/model"
)

var fold = cases.Fold()

// TitleKey normalizes a title for dedupe comparison: case-folded with runs
// of whitespace collapsed to single spaces.
func TitleKey(title string) string {
	return fold.String(strings.Join(strings.Fields(title), " "))
}

// URLKey normalizes a URL for dedupe comparison. The "N/A" sentinel never
// participates in uniqueness.
func URLKey(rawURL string) string {
	u := strings.TrimRight(strings.TrimSpace(rawURL), "/")
	if u == "" || strings.EqualFold(u, model.NA) {
		return ""
	}
	return fold.String(u)
}

// Eligible reports whether a deadline keeps a candidate in play as of the
// given UTC date. "rolling" (any case) is always eligible. Anything else
// must parse as YYYY-MM-DD in its first 10 characters and fall on or after
// today; unparseable values fail closed.
func Eligible(deadline string, today time.Time) bool {
	d := strings.TrimSpace(deadline)
	if strings.EqualFold(d, "rolling") {
		return true
	}
	if len(d) < 10 {
		return false
	}
	parsed, err := time.Parse("2006-01-02", d[:10])
	if err != nil {
		return false
	}
	y, m, day := today.Date()
	return !parsed.Before(time.Date(y, m, day, 0, 0, 0, 0, time.UTC))
}

// Filter screens candidates against the rows already in the table and the
// deadline rule. Not safe for concurrent use; one action runs at a time.
type Filter struct {
	titles map[string]struct{}
	urls   map[string]struct{}

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// New builds a Filter seeded with the existing table rows.
func New(existing []model.RankedGrant) *Filter {
	f := &Filter{
		titles: make(map[string]struct{}),
		urls:   make(map[string]struct{}),
		Now:    time.Now,
	}
	for _, g := range existing {
		f.remember(g.GrantCandidate)
	}
	return f
}

// Check returns nil when the candidate may proceed to ranking, or
// model.ErrDuplicate / model.ErrIneligibleDeadline otherwise. Both are
// per-candidate errors; the caller counts them and moves on.
func (f *Filter) Check(c model.GrantCandidate) error {
	if _, ok := f.titles[TitleKey(c.Title)]; ok {
		return eris.Wrapf(model.ErrDuplicate, "filter: title %q", c.Title)
	}
	if key := URLKey(c.SourceURL); key != "" {
		if _, ok := f.urls[key]; ok {
			return eris.Wrapf(model.ErrDuplicate, "filter: url %q", c.SourceURL)
		}
	}
	// Eligibility is evaluated against the UTC calendar date; the sources
	// never specify a timezone, so UTC is the documented choice.
	if !Eligible(c.Deadline, f.Now().UTC()) {
		return eris.Wrapf(model.ErrIneligibleDeadline, "filter: deadline %q", c.Deadline)
	}
	return nil
}

// Admit records an accepted candidate so later candidates in the same batch
// dedupe against it too.
func (f *Filter) Admit(c model.GrantCandidate) {
	f.remember(c)
}

func (f *Filter) remember(c model.GrantCandidate) {
	f.titles[TitleKey(c.Title)] = struct{}{}
	if key := URLKey(c.SourceURL); key != "" {
		f.urls[key] = struct{}{}
	}
}
