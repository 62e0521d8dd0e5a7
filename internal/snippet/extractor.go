// Package snippet reduces surviving chunks to the sentences that match the
// query and composes the grounded answer and its citation.
package snippet

import (
	"strings"

	"trialrag/internal/chunker"
	"trialrag/internal/domain"
	"trialrag/internal/lexicon"
	"trialrag/internal/relevance"
)

// DefaultMaxResults caps the candidates cited in one answer.
const DefaultMaxResults = 3

// Extractor is stateless apart from its limit.
type Extractor struct {
	maxResults int
}

// New returns an extractor citing at most maxResults candidates.
func New(maxResults int) *Extractor {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Extractor{maxResults: maxResults}
}

// Answer is a composed grounded answer.
type Answer struct {
	Text     string
	Citation string
	// Cited are the candidates the answer was built from, in answer order.
	Cited     []domain.Candidate
	Tabular   bool
	Narrative bool
}

// Empty reports whether nothing could be composed.
func (a Answer) Empty() bool { return len(a.Cited) == 0 }

// Extract returns the best-matching sentence of text, joined with the
// following sentence when that one also matches. Earlier sentences win ties.
// Text with no matching sentence yields its first sentence.
func Extract(text string, groups []domain.TermGroup) string {
	sentences := chunker.SplitSentences(text)
	if len(sentences) == 0 {
		return ""
	}
	scores := make([]int, len(sentences))
	best := 0
	for i, s := range sentences {
		scores[i] = matchCount(s, groups)
		if scores[i] > scores[best] {
			best = i
		}
	}
	if best+1 < len(sentences) && scores[best] > 0 && scores[best+1] > 0 {
		return sentences[best] + " " + sentences[best+1]
	}
	return sentences[best]
}

func matchCount(sentence string, groups []domain.TermGroup) int {
	kw := lexicon.Keywords(sentence)
	n := 0
	for _, g := range groups {
		for _, m := range g.Members() {
			if lexicon.Contains(kw, m) {
				n++
				break
			}
		}
	}
	return n
}

// Compose builds the answer from the top survivors, which must already be in
// rank order. Tabular snippets come first, then narrative; the citation lists
// each distinct provenance once, joined with "; ".
func (e *Extractor) Compose(groups []domain.TermGroup, survivors []domain.Candidate) Answer {
	top := survivors
	if len(top) > e.maxResults {
		top = top[:e.maxResults]
	}

	var ordered []domain.Candidate
	for _, kind := range []domain.SourceKind{domain.Tabular, domain.Narrative} {
		for _, c := range top {
			if c.Chunk.Kind == kind {
				ordered = append(ordered, c)
			}
		}
	}

	var (
		ans       Answer
		blocks    []string
		current   []string
		lastKind  = domain.SourceKind(-1)
		citations []string
		seenProv  = make(map[string]struct{})
		seenText  = make(map[string]struct{})
	)
	for _, c := range ordered {
		matched := relevance.Matched(groups, c.Chunk.Keywords)
		text := Extract(c.Chunk.Text, matched)
		if text == "" {
			continue
		}
		if c.Chunk.Kind != lastKind && len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		}
		lastKind = c.Chunk.Kind
		if _, dup := seenText[text]; !dup {
			seenText[text] = struct{}{}
			current = append(current, text)
		}
		if _, dup := seenProv[c.Chunk.Provenance]; !dup {
			seenProv[c.Chunk.Provenance] = struct{}{}
			citations = append(citations, c.Chunk.Provenance)
		}
		ans.Cited = append(ans.Cited, c)
		switch c.Chunk.Kind {
		case domain.Tabular:
			ans.Tabular = true
		case domain.Narrative:
			ans.Narrative = true
		}
	}
	if len(current) > 0 {
		blocks = append(blocks, strings.Join(current, "\n"))
	}
	ans.Text = strings.Join(blocks, "\n\n")
	ans.Citation = strings.Join(citations, "; ")
	return ans
}
