package summarizer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"trialrag/internal/chunker"
	"trialrag/internal/domain"
	"trialrag/internal/lexicon"
)

// Overview describes the loaded corpus in one line followed by the most
// representative documentation sentences.
func Overview(records []domain.Record, sections []domain.Section, maxSentences int) string {
	drugs := distinctDrugs(records)
	head := fmt.Sprintf("%d trial records", len(records))
	if len(drugs) > 0 {
		head += " (" + strings.Join(drugs, ", ") + ")"
	}
	head += fmt.Sprintf(", %d documentation sections", len(sections))

	var body strings.Builder
	for _, s := range sections {
		body.WriteString(s.Body)
		body.WriteString(" ")
	}
	if summary := Summarize(body.String(), maxSentences); summary != "" {
		return head + ". " + summary
	}
	return head + "."
}

// Summarize ranks sentences by the normalised frequency of their non-stopword
// tokens and returns the best ones in their original order.
func Summarize(text string, maxSentences int) string {
	if maxSentences <= 0 {
		return ""
	}
	sentences := chunker.SplitSentences(text)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}
	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range lexicon.Terms(sent) {
			freq[lexicon.Singular(tok)]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		toks := lexicon.Tokenize(sent)
		score := 0.0
		for _, tok := range toks {
			score += freq[lexicon.Singular(tok)]
		}
		// length normalisation keeps long sentences from dominating
		if l := float64(len(toks)); l > 0 {
			score /= math.Sqrt(l)
		}
		scores[i] = pair{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if maxSentences > len(scores) {
		maxSentences = len(scores)
	}
	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, len(selected))
	for _, idx := range selected {
		out = append(out, strings.TrimSpace(sentences[idx]))
	}
	return strings.Join(out, " ")
}

func distinctDrugs(records []domain.Record) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		key := strings.ToLower(r.Drug)
		if _, ok := seen[key]; ok || key == "" {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r.Drug)
	}
	return out
}
