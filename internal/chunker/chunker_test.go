package chunker

import (
	"reflect"
	"strings"
	"testing"

	"trialrag/internal/domain"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"basic", "First one. Second one! Third?", []string{"First one.", "Second one!", "Third?"}},
		{"decimal dose", "Give 2.5 mg daily. Then stop.", []string{"Give 2.5 mg daily.", "Then stop."}},
		{"no terminal", "no punctuation here", []string{"no punctuation here"}},
		{"empty", "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SplitSentences(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitSentences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRecords(t *testing.T) {
	c := New(0, 0)
	recs := []domain.Record{
		{Source: "trials.csv", Row: 1, Drug: "Metformin", Indication: "Type 2 diabetes", Dose: "500mg twice daily",
			Adverse: "Nausea", Severity: "Mild", Outcome: "Resolved",
			Extra: map[string]string{"Phase": "III"}, ExtraOrder: []string{"Phase"}},
		{Source: "trials.csv", Row: 2, Drug: "  "},
	}
	chunks := c.Records(recs)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	ch := chunks[0]
	want := "Metformin is used for Type 2 diabetes at a dose of 500mg twice daily. Reported adverse events: Nausea (severity: Mild, outcome: Resolved). Phase: III."
	if ch.Text != want {
		t.Errorf("text = %q\nwant  %q", ch.Text, want)
	}
	if ch.Provenance != "trials.csv row 1 (Metformin)" {
		t.Errorf("provenance = %q", ch.Provenance)
	}
	if ch.Kind != domain.Tabular || ch.Fields["dose"] != "500mg twice daily" || ch.Fields["phase"] != "III" {
		t.Errorf("unexpected chunk: %+v", ch)
	}
	if _, ok := ch.Keywords["metformin"]; !ok {
		t.Error("keywords missing drug name")
	}
}

func TestRecordText_Partial(t *testing.T) {
	got := RecordText(domain.Record{Drug: "Aspirin", Dose: "81mg", Severity: "Severe"})
	want := "Aspirin is given at a dose of 81mg. Adverse event severity: Severe."
	if got != want {
		t.Errorf("RecordText = %q, want %q", got, want)
	}
}

func TestSections(t *testing.T) {
	c := New(0, 0)
	secs := []domain.Section{
		{Source: "label.md", Title: "Renal Impairment", Body: "Monitor eGFR.\n\n  \n\nAvoid when eGFR < 30."},
	}
	chunks := c.Sections(secs)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for _, ch := range chunks {
		if ch.Provenance != "Renal Impairment" || ch.Kind != domain.Narrative {
			t.Errorf("unexpected chunk: %+v", ch)
		}
		if _, ok := ch.Keywords["renal"]; !ok {
			t.Error("section title should contribute keywords")
		}
	}
	if chunks[0].ID == chunks[1].ID {
		t.Error("chunk ids must be unique")
	}
	if !strings.HasPrefix(chunks[0].IndexText(), "Renal Impairment. ") {
		t.Errorf("IndexText = %q", chunks[0].IndexText())
	}
}

func TestSections_Windowing(t *testing.T) {
	c := New(2, 1)
	secs := []domain.Section{{Source: "l.md", Title: "T", Body: "One. Two. Three. Four."}}
	chunks := c.Sections(secs)
	var got []string
	for _, ch := range chunks {
		got = append(got, ch.Text)
	}
	want := []string{"One. Two.", "Two. Three.", "Three. Four."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("windows = %q, want %q", got, want)
	}
}
