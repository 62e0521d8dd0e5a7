// Package classifier labels queries with a source preference and safety flags.
// Classification is a pure function of the query and recent session turns.
package classifier

import (
	"sort"
	"strings"

	"trialrag/internal/domain"
	"trialrag/internal/lexicon"
	"trialrag/internal/safety"
)

// Cue lists are matched on word boundaries against the singularized query.
var (
	quantitativeCues = []string{
		"dose", "dosing", "dosage", "mg", "frequency",
		"adverse event", "ae", "aes", "side effect",
		"severity", "severe", "moderate", "mild",
		"outcome", "resolved", "ongoing",
		"indication", "population", "reported", "percentage",
	}
	qualitativeCues = []string{
		"caution", "label", "note", "guidance", "monitoring",
		"warning", "precaution", "recommendation", "context", "trial summary",
		"background", "description",
	}
	// attributes that only make sense for a named drug
	drugAttributeCues = []string{
		"dose", "dosing", "dosage", "adverse event", "ae", "aes",
		"severity", "outcome", "caution", "side effect",
	}
	// phrasing that pairs a drug with a tabular attribute, e.g. "what is X used for"
	drugFactCues = []string{"used for", "indicated for", "treat", "how much", "given"}
	organTerms   = []string{"renal", "kidney", "hepatic", "liver", "impairment"}
	pronouns     = []string{"it", "that", "this", "them"}
	greetings    = map[string]struct{}{
		"hi": {}, "hello": {}, "hey": {}, "greetings": {}, "good morning": {},
		"good afternoon": {}, "good evening": {}, "thanks": {}, "thank you": {},
	}
	genericIndicationWords = map[string]struct{}{
		"type": {}, "cell": {}, "stage": {}, "disease": {}, "chronic": {}, "acute": {},
		"advanced": {}, "adult": {}, "patients": {}, "patient": {},
	}
)

// Classifier is immutable after New and safe for concurrent use.
type Classifier struct {
	synonyms    *lexicon.Synonyms
	drugs       []string // lower-case, longest first
	display     map[string]string
	indications []string
}

// New builds a classifier that knows the drug names and indications of the
// loaded records.
func New(synonyms *lexicon.Synonyms, drugs, indications []string) *Classifier {
	c := &Classifier{synonyms: synonyms, display: make(map[string]string)}
	for _, d := range drugs {
		key := strings.TrimSpace(lexicon.Phrase(d))
		if key == "" {
			continue
		}
		if _, ok := c.display[key]; ok {
			continue
		}
		c.display[key] = strings.TrimSpace(d)
		c.drugs = append(c.drugs, key)
	}
	sort.SliceStable(c.drugs, func(i, j int) bool { return len(c.drugs[i]) > len(c.drugs[j]) })

	seen := make(map[string]struct{})
	addIndication := func(s string) {
		if _, ok := seen[s]; ok || s == "" {
			return
		}
		seen[s] = struct{}{}
		c.indications = append(c.indications, s)
	}
	for _, ind := range indications {
		addIndication(strings.TrimSpace(lexicon.Phrase(ind)))
		for _, term := range lexicon.Terms(ind) {
			if _, generic := genericIndicationWords[term]; generic || len(term) < 4 {
				continue
			}
			addIndication(term)
		}
	}
	return c
}

// Classify labels query using up to the last few turns of context.
func (c *Classifier) Classify(query string, context []domain.Turn) domain.Classification {
	cls := domain.Classification{
		AdviceSeeking: safety.IsAdviceSeeking(query),
		Harmful:       safety.IsHarmful(query),
		Greeting:      isGreeting(query),
	}

	resolved := query
	drugs := c.mentionedDrugs(query)
	// a query naming its own indication or organ has a subject already
	if len(drugs) == 0 && c.needsReferent(query) && !c.hasOwnSubject(query) {
		if drug := c.lastDrug(context); drug != "" {
			resolved = query + " (referring to " + drug + ")"
			drugs = []string{drug}
		}
	}
	cls.Query = resolved
	cls.Drugs = drugs

	sp := lexicon.SingularPhrase(resolved)
	quant := tally(sp, quantitativeCues)
	qual := tally(sp, qualitativeCues)
	if len(drugs) > 0 && tally(sp, drugFactCues) > 0 {
		quant++
	}
	switch {
	case quant > qual:
		cls.Intent = domain.Quantitative
	case qual > quant:
		cls.Intent = domain.Qualitative
	default:
		cls.Intent = domain.Ambiguous
	}

	cls.NeedsDrug = len(drugs) == 0 &&
		tally(sp, drugAttributeCues) > 0 &&
		!c.mentionsIndication(sp) &&
		tally(sp, organTerms) == 0

	cls.Terms = c.synonyms.Expand(lexicon.Terms(resolved))
	return cls
}

// needsReferent reports whether the query leans on earlier turns for its subject.
func (c *Classifier) needsReferent(query string) bool {
	p := lexicon.Phrase(query)
	for _, pr := range pronouns {
		if lexicon.HasPhrase(p, pr) {
			return true
		}
	}
	return tally(lexicon.SingularPhrase(query), drugAttributeCues) > 0
}

func (c *Classifier) hasOwnSubject(query string) bool {
	sp := lexicon.SingularPhrase(query)
	return c.mentionsIndication(sp) || tally(sp, organTerms) > 0
}

func (c *Classifier) mentionedDrugs(text string) []string {
	p := lexicon.Phrase(text)
	var out []string
	for _, d := range c.drugs {
		if lexicon.HasPhrase(p, d) {
			out = append(out, c.display[d])
		}
	}
	return out
}

// lastDrug scans the context newest first for a known drug name.
func (c *Classifier) lastDrug(context []domain.Turn) string {
	for i := len(context) - 1; i >= 0; i-- {
		p := lexicon.Phrase(context[i].Text)
		best, bestPos := "", -1
		for _, d := range c.drugs {
			// the last mention within a turn wins
			if pos := strings.LastIndex(p, " "+d+" "); pos > bestPos {
				best, bestPos = c.display[d], pos
			}
		}
		if best != "" {
			return best
		}
	}
	return ""
}

func (c *Classifier) mentionsIndication(singularPhrase string) bool {
	for _, ind := range c.indications {
		if lexicon.HasPhrase(singularPhrase, ind) || lexicon.HasPhrase(singularPhrase, lexicon.Singular(ind)) {
			return true
		}
	}
	return false
}

func tally(padded string, cues []string) int {
	n := 0
	for _, cue := range cues {
		if lexicon.HasPhrase(padded, cue) {
			n++
		}
	}
	return n
}

func isGreeting(query string) bool {
	_, ok := greetings[strings.TrimSpace(lexicon.Phrase(query))]
	return ok
}
