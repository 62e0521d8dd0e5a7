package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trialrag/internal/domain"
	"trialrag/internal/embedding/tfidf"
	"trialrag/internal/safety"
)

// switchableEmbedder wraps TF-IDF and can be made slow or failing after startup.
type switchableEmbedder struct {
	*tfidf.Embedder
	slow atomic.Bool
	fail atomic.Bool
}

func (s *switchableEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if s.fail.Load() {
		return nil, errors.New("embedding backend unavailable")
	}
	if s.slow.Load() {
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.Embedder.Embed(ctx, text)
}

func fixture() Sources {
	return Sources{
		Records: []domain.Record{
			{Source: "trials.xlsx", Row: 1, Drug: "Metformin", Indication: "Type 2 diabetes", Dose: "500mg twice daily",
				Adverse: "Nausea", Severity: "Mild", Outcome: "Resolved"},
			{Source: "trials.xlsx", Row: 2, Drug: "Imatinib", Indication: "Chronic myeloid leukemia", Dose: "400mg once daily",
				Adverse: "Fluid retention", Severity: "Moderate", Outcome: "Ongoing"},
			{Source: "trials.xlsx", Row: 3, Drug: "Pembrolizumab", Indication: "Melanoma", Dose: "200mg every 3 weeks",
				Adverse: "Fatigue", Severity: "Mild", Outcome: "Resolved"},
		},
		Sections: []domain.Section{
			{Source: "notes.md", Title: "Metformin Label Notes",
				Body: "Monitor renal function before starting metformin. Avoid use when eGFR is below 30.\n\nLactic acidosis is a rare but serious risk."},
			{Source: "notes.md", Title: "Imatinib Cautions",
				Body: "Imatinib may cause fluid retention and edema. Monitor body weight regularly."},
			{Source: "notes.md", Title: "Trial Background",
				Body: "The pooled trials enrolled adult patients across three sites."},
		},
	}
}

func newTestEngine(t *testing.T) (*Engine, *switchableEmbedder) {
	t.Helper()
	emb := &switchableEmbedder{Embedder: tfidf.NewEmbedder()}
	e, err := New(context.Background(), fixture(), Options{
		Embedder: emb,
		Timeout:  50 * time.Millisecond,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, emb
}

func submit(t *testing.T, e *Engine, session, msg string) Reply {
	t.Helper()
	r, err := e.SubmitTurn(context.Background(), session, msg)
	if err != nil {
		t.Fatalf("SubmitTurn(%q): %v", msg, err)
	}
	return r
}

func TestSubmitTurn_DoseScenario(t *testing.T) {
	e, _ := newTestEngine(t)
	r := submit(t, e, "s1", "What's the recommended dose for Metformin?")

	if r.Intent != domain.Quantitative {
		t.Errorf("intent = %s, want quantitative", r.Intent)
	}
	if r.Unknown || r.SafetyRefusal {
		t.Fatalf("unexpected flags: %+v", r)
	}
	if !strings.Contains(r.Message, "500mg twice daily") {
		t.Errorf("message = %q", r.Message)
	}
	if r.Citation != "trials.xlsx row 1 (Metformin)" {
		t.Errorf("citation = %q", r.Citation)
	}
	if r.Source != SourceExcelOnly {
		t.Errorf("source = %q", r.Source)
	}
	for _, s := range r.Sources {
		if s.Overlap <= 0 {
			t.Errorf("cited source %q did not pass the filter", s.Provenance)
		}
	}
}

func TestSubmitTurn_AdviceRefusedWithoutIndexAccess(t *testing.T) {
	e, _ := newTestEngine(t)
	queries := []string{
		"Should I take Metformin?",
		"Is it safe for me to stop imatinib?",
		"Can you make a plan for me with Pembrolizumab",
	}
	for _, q := range queries {
		before := e.Stats().Searches
		r := submit(t, e, "s1", q)
		if !r.SafetyRefusal || r.Message != safety.AdviceRefusal {
			t.Errorf("%q: reply = %+v", q, r)
		}
		if r.Citation != "" || r.Unknown {
			t.Errorf("%q: refusal must not cite: %+v", q, r)
		}
		if after := e.Stats().Searches; after != before {
			t.Errorf("%q: index searched %d times on refusal path", q, after-before)
		}
	}
	if got := e.Metrics().SafetyRefusals; got != int64(len(queries)) {
		t.Errorf("safety_refusals = %d", got)
	}
}

func TestSubmitTurn_UnknownWhenNothingOverlaps(t *testing.T) {
	e, _ := newTestEngine(t)
	for _, q := range []string{"What about Space travel effects?", "quantum chromodynamics", "what is the"} {
		r := submit(t, e, "s1", q)
		if !r.Unknown || r.Citation != "" || r.Message != UnknownMessage {
			t.Errorf("%q: reply = %+v", q, r)
		}
	}
}

func TestSubmitTurn_AmbiguousCitesBothTabularFirst(t *testing.T) {
	e, _ := newTestEngine(t)
	r := submit(t, e, "s1", "Tell me about Imatinib")
	if r.Intent != domain.Ambiguous {
		t.Fatalf("intent = %s", r.Intent)
	}
	if r.Source != SourceBoth {
		t.Fatalf("source = %q, reply = %+v", r.Source, r)
	}
	if r.Citation != "trials.xlsx row 2 (Imatinib); Imatinib Cautions" {
		t.Errorf("citation = %q", r.Citation)
	}
	blocks := strings.Split(r.Message, "\n\n")
	if len(blocks) != 2 || !strings.Contains(blocks[0], "400mg once daily") || !strings.Contains(blocks[1], "edema") {
		t.Errorf("message = %q", r.Message)
	}
}

func TestSubmitTurn_NarrativeOnly(t *testing.T) {
	e, _ := newTestEngine(t)
	r := submit(t, e, "s1", "Any label guidance on monitoring for Metformin?")
	if r.Intent != domain.Qualitative || r.Source != SourceDocOnly {
		t.Fatalf("reply = %+v", r)
	}
	if !strings.Contains(r.Message, "Monitor renal function") {
		t.Errorf("message = %q", r.Message)
	}
	if r.Citation != "Metformin Label Notes" {
		t.Errorf("citation = %q", r.Citation)
	}
}

func TestSubmitTurn_ClarificationAndGreeting(t *testing.T) {
	e, _ := newTestEngine(t)
	r := submit(t, e, "s1", "What is the dose?")
	if !r.Clarification || r.Message != ClarificationMessage {
		t.Errorf("reply = %+v", r)
	}
	r = submit(t, e, "s2", "Hello!")
	if !r.Greeting || r.Message != GreetingMessage {
		t.Errorf("reply = %+v", r)
	}
	if e.Stats().Searches != 0 {
		t.Error("clarification and greeting must not search")
	}
}

func TestSubmitTurn_PronounCarryover(t *testing.T) {
	e, _ := newTestEngine(t)
	submit(t, e, "s1", "Tell me about Metformin")
	r := submit(t, e, "s1", "What are the side effects of it?")
	if !strings.Contains(r.Message, "Nausea") {
		t.Errorf("message = %q", r.Message)
	}
	if r.Citation != "trials.xlsx row 1 (Metformin)" {
		t.Errorf("citation = %q", r.Citation)
	}
}

func TestSubmitTurn_IndicationOverridesEarlierDrug(t *testing.T) {
	e, _ := newTestEngine(t)
	submit(t, e, "s1", "Tell me about Metformin")
	r := submit(t, e, "s1", "What is the dose for melanoma?")
	if !strings.HasPrefix(r.Citation, "trials.xlsx row 3 (Pembrolizumab)") {
		t.Errorf("citation = %q", r.Citation)
	}
	if !strings.Contains(r.Message, "200mg every 3 weeks") {
		t.Errorf("message = %q", r.Message)
	}

	fresh := submit(t, e, "s2", "What is the dose for melanoma?")
	if fresh.Citation != r.Citation || fresh.Message != r.Message {
		t.Errorf("earlier turns changed the answer:\n got  %q (%q)\n want %q (%q)", r.Message, r.Citation, fresh.Message, fresh.Citation)
	}
}

func TestResetSession_Idempotence(t *testing.T) {
	e, _ := newTestEngine(t)
	script := []string{
		"Tell me about Metformin",
		"What are the side effects of it?",
		"What is the dose?",
		"Should I take it?",
	}
	run := func() []Reply {
		var out []Reply
		for _, q := range script {
			out = append(out, submit(t, e, "s1", q))
		}
		return out
	}
	first := run()
	if err := e.ResetSession("s1"); err != nil {
		t.Fatal(err)
	}
	if h := e.History("s1"); len(h) != 0 {
		t.Fatalf("history after reset = %d turns", len(h))
	}
	second := run()
	for i := range first {
		a, b := first[i], second[i]
		if a.Message != b.Message || a.Citation != b.Citation || a.Intent != b.Intent ||
			a.Source != b.Source || a.Unknown != b.Unknown || a.SafetyRefusal != b.SafetyRefusal ||
			a.Clarification != b.Clarification || len(a.Sources) != len(b.Sources) {
			t.Errorf("turn %d differs after reset:\n%+v\n%+v", i, a, b)
		}
	}
}

func TestMetrics_Consistency(t *testing.T) {
	e, _ := newTestEngine(t)
	turns := []struct{ session, msg string }{
		{"a", "What's the recommended dose for Metformin?"},
		{"a", "Should I take Metformin?"},
		{"a", "What about Space travel effects?"},
		{"b", "Tell me about Imatinib"},
		{"b", "Hello"},
		{"c", "What is the dose?"},
		{"c", "Any label guidance on monitoring for Metformin?"},
	}
	for _, tt := range turns {
		submit(t, e, tt.session, tt.msg)
	}
	m := e.Metrics()
	if m.TotalTurns != int64(len(turns)) {
		t.Errorf("total_turns = %d, want %d", m.TotalTurns, len(turns))
	}
	u := m.SourceUsage
	if u.ExcelOnly != 1 || u.Both != 1 || u.DocOnly != 1 || u.None != 4 {
		t.Errorf("usage = %+v", u)
	}
	if m.Grounded() != 3 {
		t.Errorf("grounded = %d, want 3", m.Grounded())
	}
	if m.SafetyRefusals != 1 || m.UnknownResponses != 1 || m.Clarifications != 1 || m.Greetings != 1 || m.UniqueSessions != 3 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestSubmitTurn_RetrievalTimeout(t *testing.T) {
	e, emb := newTestEngine(t)
	emb.slow.Store(true)
	_, err := e.SubmitTurn(context.Background(), "s1", "What's the recommended dose for Metformin?")
	if !errors.Is(err, ErrRetrievalTimeout) {
		t.Fatalf("err = %v, want ErrRetrievalTimeout", err)
	}
	m := e.Metrics()
	if m.Failures != 1 || m.TotalTurns != 0 || m.UnknownResponses != 0 {
		t.Errorf("metrics = %+v", m)
	}
	h := e.History("s1")
	if len(h) != 2 || !h[1].Failed || h[1].Unknown {
		t.Errorf("history = %+v", h)
	}
}

func TestSubmitTurn_RetrievalFailure(t *testing.T) {
	e, emb := newTestEngine(t)
	emb.fail.Store(true)
	_, err := e.SubmitTurn(context.Background(), "s1", "Tell me about Imatinib")
	if !errors.Is(err, ErrRetrieval) || errors.Is(err, ErrRetrievalTimeout) {
		t.Fatalf("err = %v", err)
	}
	// refusals still work without the embedder
	r := submit(t, e, "s1", "Should I take Imatinib?")
	if !r.SafetyRefusal {
		t.Errorf("reply = %+v", r)
	}
}

func TestSubmitTurn_InputErrors(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, err := e.SubmitTurn(context.Background(), "", "dose"); !errors.Is(err, ErrEmptySession) {
		t.Errorf("empty session err = %v", err)
	}
	if _, err := e.SubmitTurn(context.Background(), "s1", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("empty message err = %v", err)
	}
	if m := e.Metrics(); m.TotalTurns != 0 {
		t.Errorf("rejected input counted: %+v", m)
	}
}

func TestSubmitTurn_ConcurrentSessions(t *testing.T) {
	e, _ := newTestEngine(t)
	const sessions, perSession = 8, 5
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			for j := 0; j < perSession; j++ {
				if _, err := e.SubmitTurn(context.Background(), id, "What's the recommended dose for Metformin?"); err != nil {
					t.Error(err)
				}
			}
		}(i)
	}
	wg.Wait()
	m := e.Metrics()
	if m.TotalTurns != sessions*perSession || m.SourceUsage.ExcelOnly != sessions*perSession {
		t.Errorf("metrics = %+v", m)
	}
	for i := 0; i < sessions; i++ {
		if h := e.History(fmt.Sprintf("s%d", i)); len(h) != 2*perSession {
			t.Errorf("session %d history = %d turns", i, len(h))
		}
	}
}

func TestNew_Errors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := New(context.Background(), fixture(), Options{Logger: logger}); err == nil {
		t.Error("missing embedder should fail")
	}
	src := fixture()
	src.Sections = nil
	if _, err := New(context.Background(), src, Options{Embedder: tfidf.NewEmbedder(), Logger: logger}); err == nil {
		t.Error("empty narrative source should fail")
	}
}
