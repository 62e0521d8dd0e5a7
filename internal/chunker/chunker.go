// Package chunker turns loader output into uniformly shaped chunks.
package chunker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"trialrag/internal/domain"
	"trialrag/internal/lexicon"
)

var (
	// a sentence ends at [.!?] followed by whitespace or end of text, so "2.5 mg" stays whole.
	sentenceEnd = regexp.MustCompile(`[.!?]+(\s+|$)`)
	paragraphs  = regexp.MustCompile(`\n\s*\n`)
)

// Chunker splits sections into paragraph chunks. Paragraphs longer than
// sentencesPerChunk are windowed with overlapSentences of overlap.
type Chunker struct {
	sentencesPerChunk int
	overlapSentences  int
}

// New returns a chunker. A non-positive sentencesPerChunk disables windowing.
func New(sentencesPerChunk, overlapSentences int) *Chunker {
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if sentencesPerChunk > 0 && overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &Chunker{sentencesPerChunk: sentencesPerChunk, overlapSentences: overlapSentences}
}

// Records produces one chunk per record.
func (c *Chunker) Records(records []domain.Record) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(records))
	for _, r := range records {
		if strings.TrimSpace(r.Drug) == "" {
			continue
		}
		text := RecordText(r)
		chunks = append(chunks, domain.Chunk{
			ID:         fmt.Sprintf("tabular:%s:%d", r.Source, r.Row),
			Kind:       domain.Tabular,
			Text:       text,
			Provenance: fmt.Sprintf("%s row %d (%s)", r.Source, r.Row, r.Drug),
			Keywords:   lexicon.Keywords(text),
			Fields:     recordFields(r),
		})
	}
	return chunks
}

// Sections produces one chunk per non-empty paragraph (or paragraph window).
func (c *Chunker) Sections(sections []domain.Section) []domain.Chunk {
	var chunks []domain.Chunk
	for si, s := range sections {
		idx := 0
		for _, para := range paragraphs.Split(s.Body, -1) {
			para = strings.Join(strings.Fields(para), " ")
			if para == "" {
				continue
			}
			for _, text := range c.window(para) {
				chunks = append(chunks, domain.Chunk{
					ID:         s.Source + ":" + strconv.Itoa(si) + ":" + strconv.Itoa(idx),
					Kind:       domain.Narrative,
					Text:       text,
					Provenance: s.Title,
					Keywords:   lexicon.Keywords(s.Title + " " + text),
				})
				idx++
			}
		}
	}
	return chunks
}

func (c *Chunker) window(para string) []string {
	if c.sentencesPerChunk <= 0 {
		return []string{para}
	}
	sentences := SplitSentences(para)
	if len(sentences) <= c.sentencesPerChunk {
		return []string{para}
	}
	var out []string
	i := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		out = append(out, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return out
}

// SplitSentences splits text into trimmed sentences, keeping terminal punctuation.
// Text without terminal punctuation is returned as a single sentence.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringSubmatchIndex(text, -1) {
		end := loc[2] // start of trailing whitespace
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// RecordText synthesizes the sentence form of a record, e.g.
// "Metformin is used for Type 2 diabetes at a dose of 500mg twice daily."
func RecordText(r domain.Record) string {
	var b strings.Builder
	b.WriteString(r.Drug)
	switch {
	case r.Indication != "" && r.Dose != "":
		fmt.Fprintf(&b, " is used for %s at a dose of %s.", r.Indication, r.Dose)
	case r.Indication != "":
		fmt.Fprintf(&b, " is used for %s.", r.Indication)
	case r.Dose != "":
		fmt.Fprintf(&b, " is given at a dose of %s.", r.Dose)
	default:
		b.WriteString(" appears in the trial records.")
	}

	var detail []string
	if r.Severity != "" {
		detail = append(detail, "severity: "+r.Severity)
	}
	if r.Outcome != "" {
		detail = append(detail, "outcome: "+r.Outcome)
	}
	switch {
	case r.Adverse != "" && len(detail) > 0:
		fmt.Fprintf(&b, " Reported adverse events: %s (%s).", r.Adverse, strings.Join(detail, ", "))
	case r.Adverse != "":
		fmt.Fprintf(&b, " Reported adverse events: %s.", r.Adverse)
	case len(detail) > 0:
		fmt.Fprintf(&b, " Adverse event %s.", strings.Join(detail, ", "))
	}

	for _, col := range r.ExtraOrder {
		fmt.Fprintf(&b, " %s: %s.", col, r.Extra[col])
	}
	return b.String()
}

func recordFields(r domain.Record) map[string]string {
	fields := map[string]string{"drug": r.Drug}
	set := func(k, v string) {
		if v != "" {
			fields[k] = v
		}
	}
	set("indication", r.Indication)
	set("dose", r.Dose)
	set("adverse", r.Adverse)
	set("severity", r.Severity)
	set("outcome", r.Outcome)
	for _, col := range r.ExtraOrder {
		set(strings.ToLower(col), r.Extra[col])
	}
	return fields
}
