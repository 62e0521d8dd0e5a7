package lexicon

import (
	"reflect"
	"testing"
)

func TestTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"drops stopwords and punctuation", "What's the recommended dose for Metformin?", []string{"recommended", "dose", "metformin"}},
		{"dedupes", "dose dose DOSE", []string{"dose"}},
		{"only stopwords", "what is the", nil},
		{"keeps numbers", "500mg twice", []string{"500mg", "twice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Terms(tt.query)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Terms(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestKeywords(t *testing.T) {
	kw := Keywords("Metformin is used at a dose of 500mg twice daily. Nausea events resolved.")
	for _, want := range []string{"metformin", "dose", "500mg", "500", "mg", "events", "event", "nausea"} {
		if _, ok := kw[want]; !ok {
			t.Errorf("Keywords missing %q", want)
		}
	}
	if _, ok := kw["is"]; ok {
		t.Error("Keywords should not contain stopwords")
	}
}

func TestContains(t *testing.T) {
	kw := Keywords("Reported adverse events include headaches.")
	tests := []struct {
		term string
		want bool
	}{
		{"adverse", true},
		{"event", true},
		{"headache", true},
		{"headaches", true},
		{"adverse events", true},
		{"side effect", false},
		{"liver", false},
	}
	for _, tt := range tests {
		if got := Contains(kw, tt.term); got != tt.want {
			t.Errorf("Contains(%q) = %v, want %v", tt.term, got, tt.want)
		}
	}
}

func TestSynonyms_Bidirectional(t *testing.T) {
	s := NewSynonyms(map[string][]string{"kidney": {"renal"}})
	if got := s.Lookup("kidney"); !reflect.DeepEqual(got, []string{"renal"}) {
		t.Errorf("Lookup(kidney) = %v", got)
	}
	if got := s.Lookup("renal"); !reflect.DeepEqual(got, []string{"kidney"}) {
		t.Errorf("Lookup(renal) = %v", got)
	}
	if got := s.Lookup("space"); got != nil {
		t.Errorf("Lookup(space) = %v, want nil", got)
	}
}

func TestSynonyms_ExpandPhrase(t *testing.T) {
	s := DefaultSynonyms()
	groups := s.Expand([]string{"metformin", "side", "effects"})
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d: %+v", len(groups), groups)
	}
	if groups[1].Term != "side effects" {
		t.Errorf("phrase group term = %q", groups[1].Term)
	}
	found := false
	for _, syn := range groups[1].Synonyms {
		if syn == "adverse" {
			found = true
		}
	}
	if !found {
		t.Errorf("side effects should expand to adverse, got %v", groups[1].Synonyms)
	}
}

func TestSynonyms_GenericWordNotExpanded(t *testing.T) {
	s := DefaultSynonyms()
	groups := s.Expand([]string{"space", "travel", "effects"})
	for _, g := range groups {
		if len(g.Synonyms) != 0 {
			t.Errorf("group %q unexpectedly expanded to %v", g.Term, g.Synonyms)
		}
	}
}

func TestPhrase(t *testing.T) {
	p := Phrase("Should I take Metformin?!")
	if p != " should i take metformin " {
		t.Fatalf("Phrase = %q", p)
	}
	if !HasPhrase(p, "should i take") {
		t.Error("expected phrase match")
	}
	if HasPhrase(p, "take met") {
		t.Error("phrase must match on word boundaries")
	}
	if !HasPrefixWord(Phrase("risk of poisoning"), "poison") {
		t.Error("expected prefix word match")
	}
	if got := SingularPhrase("Adverse Events and side effects"); got != " adverse event and side effect " {
		t.Errorf("SingularPhrase = %q", got)
	}
}
