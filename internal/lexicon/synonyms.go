package lexicon

import (
	"sort"
	"strings"

	"trialrag/internal/domain"
)

// Synonyms is an immutable bidirectional term-expansion table. Keys are single
// words or two-word phrases. It is safe for concurrent use.
type Synonyms struct {
	table map[string][]string
}

// DefaultSynonyms bridges consumer vocabulary and clinical-trial vocabulary.
func DefaultSynonyms() *Synonyms {
	return NewSynonyms(map[string][]string{
		"side effect":  {"adverse", "ae", "reaction", "toxicity"},
		"side effects": {"adverse", "ae", "reaction", "toxicity"},
		"adverse":      {"toxicity"},
		"renal":        {"kidney", "nephro", "crcl", "creatinine", "gfr"},
		"hepatic":      {"liver", "bilirubin", "alt", "ast"},
		"dose":         {"dosage", "dosing", "schedule", "administration"},
		"monitoring":   {"monitor", "assess", "measure", "test", "exam"},
		"indication":   {"usage", "treat", "condition", "disease"},
		"warning":      {"caution", "precaution", "contraindication"},
		"pregnancy":    {"pregnant", "lactation"},
	})
}

// NewSynonyms builds the table and its reverse so lookups work in both directions.
func NewSynonyms(forward map[string][]string) *Synonyms {
	sets := make(map[string]map[string]struct{})
	add := func(k, v string) {
		if k == v {
			return
		}
		if sets[k] == nil {
			sets[k] = make(map[string]struct{})
		}
		sets[k][v] = struct{}{}
	}
	for k, vs := range forward {
		k = strings.ToLower(k)
		for _, v := range vs {
			v = strings.ToLower(v)
			add(k, v)
			add(v, k)
		}
	}
	table := make(map[string][]string, len(sets))
	for k, set := range sets {
		vs := make([]string, 0, len(set))
		for v := range set {
			vs = append(vs, v)
		}
		sort.Strings(vs)
		table[k] = vs
	}
	return &Synonyms{table: table}
}

// Lookup returns the synonyms of a term, or nil.
func (s *Synonyms) Lookup(term string) []string {
	return s.table[term]
}

// Expand turns an ordered list of query terms into term groups. Adjacent terms
// forming a known phrase ("side effects") collapse into a single group.
func (s *Synonyms) Expand(terms []string) []domain.TermGroup {
	groups := make([]domain.TermGroup, 0, len(terms))
	for i := 0; i < len(terms); i++ {
		if i+1 < len(terms) {
			phrase := terms[i] + " " + terms[i+1]
			if syns, ok := s.table[phrase]; ok {
				groups = append(groups, domain.TermGroup{Term: phrase, Synonyms: syns})
				i++
				continue
			}
		}
		groups = append(groups, domain.TermGroup{Term: terms[i], Synonyms: s.table[terms[i]]})
	}
	return groups
}
