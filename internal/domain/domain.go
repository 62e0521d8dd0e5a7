// Package domain holds the records, sections, chunks and turns shared across packages.
package domain

import "time"

// SourceKind identifies which of the two evidence sources a chunk came from.
type SourceKind int

const (
	Tabular SourceKind = iota
	Narrative
)

// String returns the lower-case name used in logs and API payloads.
func (k SourceKind) String() string {
	switch k {
	case Tabular:
		return "tabular"
	case Narrative:
		return "narrative"
	default:
		return "unknown"
	}
}

// Record is a parsed row of the tabular drug source.
// Well-known attributes are promoted to fields; everything else lives in Extra.
type Record struct {
	Source     string
	Row        int
	Drug       string
	Indication string
	Dose       string
	Adverse    string
	Severity   string
	Outcome    string
	Extra      map[string]string
	// ExtraOrder preserves the column order of Extra for chunk synthesis.
	ExtraOrder []string
}

// Section is a titled block of the narrative label source.
type Section struct {
	Source string
	Title  string
	Body   string
}

// Chunk is a unit of retrievable text with provenance.
// Chunks are immutable once the indices are built.
type Chunk struct {
	ID         string
	Kind       SourceKind
	Text       string
	Provenance string
	Keywords   map[string]struct{}
	// Fields carries the structured attributes of tabular chunks (drug, dose, ...).
	Fields map[string]string
}

// IndexText is the text embedded for similarity search. Narrative chunks carry
// their section title so a paragraph is found by the topic it sits under.
func (c Chunk) IndexText() string {
	if c.Kind == Narrative && c.Provenance != "" {
		return c.Provenance + ". " + c.Text
	}
	return c.Text
}

// Candidate is a chunk returned by similarity search for a single query.
type Candidate struct {
	Chunk   Chunk
	Score   float64
	Overlap float64
}

// Intent is the source preference derived from a query.
type Intent int

const (
	Ambiguous Intent = iota
	Quantitative
	Qualitative
)

func (i Intent) String() string {
	switch i {
	case Quantitative:
		return "quantitative"
	case Qualitative:
		return "qualitative"
	default:
		return "ambiguous"
	}
}

// Kinds maps an intent onto the indices that should be searched, in priority order.
func (i Intent) Kinds() []SourceKind {
	switch i {
	case Quantitative:
		return []SourceKind{Tabular}
	case Qualitative:
		return []SourceKind{Narrative}
	default:
		return []SourceKind{Tabular, Narrative}
	}
}

// Classification is the per-query result of the classifier. It is never persisted.
type Classification struct {
	Intent        Intent
	AdviceSeeking bool
	Harmful       bool
	Greeting      bool
	NeedsDrug     bool
	// Query is the text after context resolution, e.g. with a pronoun's referent appended.
	Query string
	// Terms holds one group per query keyword, each expanded with its synonyms.
	Terms []TermGroup
	// Drugs lists known drug names mentioned in Query.
	Drugs []string
}

// TermGroup is a query keyword together with the synonyms it was expanded to.
// A group matches a chunk when any of its members does.
type TermGroup struct {
	Term     string
	Synonyms []string
}

// Members returns the term followed by its synonyms.
func (g TermGroup) Members() []string {
	out := make([]string, 0, 1+len(g.Synonyms))
	out = append(out, g.Term)
	return append(out, g.Synonyms...)
}

// Flatten returns the union of all terms and synonyms, first occurrence order.
func Flatten(groups []TermGroup) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, g := range groups {
		for _, m := range g.Members() {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

// Role marks who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a session.
type Turn struct {
	Role          Role      `json:"role"`
	Text          string    `json:"text"`
	Citation      string    `json:"citation,omitempty"`
	Unknown       bool      `json:"is_unknown,omitempty"`
	SafetyRefusal bool      `json:"is_safety_refusal,omitempty"`
	Clarification bool      `json:"is_clarification,omitempty"`
	Failed        bool      `json:"failed,omitempty"`
	Time          time.Time `json:"time"`
}
