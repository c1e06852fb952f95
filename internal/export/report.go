package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ctrise/grantmatch/internal/model"
	"github.com/ctrise/grantmatch/internal/table"
)

// Report writes a plain-text briefing for a single grant: the stored
// fields followed by the longer assessment text.
func Report(w io.Writer, g model.RankedGrant, assessment string) error {
	var b strings.Builder

	rule := strings.Repeat("=", 72)
	b.WriteString(rule + "\n")
	b.WriteString(g.Title + "\n")
	b.WriteString(rule + "\n\n")

	fields := []struct{ label, value string }{
		{"Sponsor", g.Sponsor},
		{"Amount", g.Amount},
		{"Deadline", g.Deadline},
		{"Match", table.FormatScore(g.MatchScore) + "%"},
		{"Feasibility", string(g.Feasibility)},
		{"Verified", fmt.Sprintf("%t", g.Verified)},
		{"URL", g.SourceURL},
	}
	for _, f := range fields {
		fmt.Fprintf(&b, "%-12s %s\n", f.label+":", f.value)
	}

	b.WriteString("\nSummary\n-------\n")
	b.WriteString(wrap(g.Summary, 72) + "\n")

	if g.Rationale != "" {
		b.WriteString("\nRationale\n---------\n")
		b.WriteString(wrap(g.Rationale, 72) + "\n")
	}

	if assessment != "" {
		b.WriteString("\nAssessment\n----------\n")
		b.WriteString(wrap(assessment, 72) + "\n")
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return eris.Wrap(err, "export: write report")
	}
	return nil
}

// wrap breaks text at spaces so no line exceeds width. Words longer than
// the width are left intact on their own line.
func wrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}

	var b strings.Builder
	lineLen := 0
	for i, word := range words {
		if i > 0 {
			if lineLen+1+len(word) > width {
				b.WriteString("\n")
				lineLen = 0
			} else {
				b.WriteString(" ")
				lineLen++
			}
		}
		b.WriteString(word)
		lineLen += len(word)
	}
	return b.String()
}
