// Package model defines the grant records flowing through the pipeline.
package model

import "time"

// NA is the sentinel written into any field the source could not supply.
// Fields are never left empty-absent so downstream code can rely on presence.
const NA = "N/A"

// CandidateKeys is the canonical key set every source must produce, in
// storage column order.
var CandidateKeys = []string{"title", "sponsor", "amount", "deadline", "summary", "url"}

// GrantCandidate is a prospective funding opportunity before ranking.
// Amount and Deadline are opaque display strings: sources emit them in
// inconsistent formats ("$50,000", "rolling", "2025-10-01", "N/A").
type GrantCandidate struct {
	Title     string `json:"title"`
	Sponsor   string `json:"sponsor"`
	Amount    string `json:"amount"`
	Deadline  string `json:"deadline"`
	Summary   string `json:"summary"`
	SourceURL string `json:"url"`

	// Verified is false for candidates invented by a generative model with
	// no live source behind them.
	Verified bool `json:"verified"`
}

// Feasibility is a coarse classification derived from the match score.
type Feasibility string

const (
	FeasibilityHigh    Feasibility = "High"
	FeasibilityMedium  Feasibility = "Medium"
	FeasibilityLow     Feasibility = "Low"
	FeasibilityUnknown Feasibility = "Unknown"
)

// FeasibilityForScore bands a 0-100 match score. Lower bounds are inclusive:
// 75.0 is High, 50.0 is Medium.
func FeasibilityForScore(score float64) Feasibility {
	switch {
	case score >= 75:
		return FeasibilityHigh
	case score >= 50:
		return FeasibilityMedium
	default:
		return FeasibilityLow
	}
}

// RankedGrant is a GrantCandidate extended with the fields added during
// ranking and annotation.
type RankedGrant struct {
	GrantCandidate

	// MatchScore is cosine similarity of summary to mission, scaled to
	// 0-100 and rounded to 1 decimal. Zero when Feasibility is Unknown.
	MatchScore float64 `json:"match_score"`

	Feasibility Feasibility `json:"feasibility"`

	// Rationale is a short model-written justification of fit.
	Rationale string `json:"rationale"`

	// AddedAt records when the row entered the table (UTC).
	AddedAt time.Time `json:"added_at"`
}
