// Package relevance implements the strict ratio filter: a candidate survives
// only when it shares at least one expanded query keyword.
package relevance

import (
	"trialrag/internal/domain"
	"trialrag/internal/lexicon"
)

// Filter drops candidates whose keyword overlap ratio is not above MinOverlap.
type Filter struct {
	MinOverlap float64
}

// New returns a filter with the given threshold, clamped to [0, 1).
func New(minOverlap float64) *Filter {
	if minOverlap < 0 {
		minOverlap = 0
	}
	if minOverlap >= 1 {
		minOverlap = 0.99
	}
	return &Filter{MinOverlap: minOverlap}
}

// Overlap is the share of query term groups with at least one member in the
// keyword set. A query with no terms has zero overlap with everything.
func Overlap(groups []domain.TermGroup, keywords map[string]struct{}) float64 {
	if len(groups) == 0 {
		return 0
	}
	return float64(len(Matched(groups, keywords))) / float64(len(groups))
}

// Matched returns the members of each matching group that occur in keywords.
// The result is in query order and feeds snippet selection.
func Matched(groups []domain.TermGroup, keywords map[string]struct{}) []domain.TermGroup {
	var out []domain.TermGroup
	for _, g := range groups {
		var hit []string
		for _, m := range g.Members() {
			if lexicon.Contains(keywords, m) {
				hit = append(hit, m)
			}
		}
		if len(hit) > 0 {
			out = append(out, domain.TermGroup{Term: hit[0], Synonyms: hit[1:]})
		}
	}
	return out
}

// Apply scores every candidate regardless of similarity and returns the
// survivors in their original order with Overlap set.
func (f *Filter) Apply(groups []domain.TermGroup, cands []domain.Candidate) []domain.Candidate {
	var out []domain.Candidate
	for _, c := range cands {
		c.Overlap = Overlap(groups, c.Chunk.Keywords)
		if c.Overlap > f.MinOverlap {
			out = append(out, c)
		}
	}
	return out
}
