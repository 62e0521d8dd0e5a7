package retriever

import (
	"context"
	"errors"
	"testing"
	"time"

	"trialrag/internal/domain"
	"trialrag/internal/index"
)

// fakeEmbedder returns a fixed vector, optionally after a delay or with an error.
type fakeEmbedder struct {
	vec   []float64
	delay time.Duration
	err   error
	calls int
}

func (f *fakeEmbedder) Name() string { return "fake" }
func (f *fakeEmbedder) Prepare(_ []string) error { return nil }
func (f *fakeEmbedder) Dimension() int { return len(f.vec) }
func (f *fakeEmbedder) Embed(ctx context.Context, _ string) ([]float64, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func buildSet(t *testing.T) index.Set {
	t.Helper()
	tab, err := index.Build(domain.Tabular,
		[]domain.Chunk{
			{ID: "t0", Kind: domain.Tabular},
			{ID: "t1", Kind: domain.Tabular},
		},
		[][]float64{{1, 0}, {0.6, 0.8}})
	if err != nil {
		t.Fatal(err)
	}
	nar, err := index.Build(domain.Narrative,
		[]domain.Chunk{
			{ID: "n0", Kind: domain.Narrative},
			{ID: "n1", Kind: domain.Narrative},
		},
		[][]float64{{0, 1}, {1, 0}})
	if err != nil {
		t.Fatal(err)
	}
	return index.Set{domain.Tabular: tab, domain.Narrative: nar}
}

func ids(cands []domain.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Chunk.ID
	}
	return out
}

func TestRetrieve_IntentSelectsIndices(t *testing.T) {
	set := buildSet(t)
	r := New(&fakeEmbedder{vec: []float64{1, 0}}, set, 5, time.Second)

	tests := []struct {
		intent domain.Intent
		want   []string
	}{
		{domain.Quantitative, []string{"t0", "t1"}},
		{domain.Qualitative, []string{"n1", "n0"}},
		// t0 and n1 tie at 1.0: tabular first
		{domain.Ambiguous, []string{"t0", "n1", "t1", "n0"}},
	}
	for _, tt := range tests {
		t.Run(tt.intent.String(), func(t *testing.T) {
			got, err := r.Retrieve(context.Background(), domain.Classification{Intent: tt.intent, Query: "q"})
			if err != nil {
				t.Fatal(err)
			}
			g := ids(got)
			if len(g) != len(tt.want) {
				t.Fatalf("got %v, want %v", g, tt.want)
			}
			for i := range g {
				if g[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", g, tt.want)
				}
			}
		})
	}
}

func TestRetrieve_OnlyTouchesSelectedIndex(t *testing.T) {
	set := buildSet(t)
	r := New(&fakeEmbedder{vec: []float64{1, 0}}, set, 5, time.Second)
	if _, err := r.Retrieve(context.Background(), domain.Classification{Intent: domain.Quantitative}); err != nil {
		t.Fatal(err)
	}
	if set[domain.Narrative].Searches() != 0 || set[domain.Tabular].Searches() != 1 {
		t.Errorf("searches tabular=%d narrative=%d", set[domain.Tabular].Searches(), set[domain.Narrative].Searches())
	}
}

func TestRetrieve_Timeout(t *testing.T) {
	r := New(&fakeEmbedder{vec: []float64{1, 0}, delay: time.Second}, buildSet(t), 5, 20*time.Millisecond)
	_, err := r.Retrieve(context.Background(), domain.Classification{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if errors.Is(err, ErrRetrieval) {
		t.Error("timeout should be distinguishable from other failures")
	}
}

func TestRetrieve_EmbedFailureNotRetried(t *testing.T) {
	fe := &fakeEmbedder{err: errors.New("backend down")}
	r := New(fe, buildSet(t), 5, time.Second)
	_, err := r.Retrieve(context.Background(), domain.Classification{})
	if !errors.Is(err, ErrRetrieval) {
		t.Fatalf("err = %v, want ErrRetrieval", err)
	}
	if fe.calls != 1 {
		t.Errorf("embed called %d times, want 1", fe.calls)
	}
}

func TestQueryText(t *testing.T) {
	c := domain.Classification{
		Query: "kidney dose",
		Terms: []domain.TermGroup{{Term: "kidney", Synonyms: []string{"renal"}}, {Term: "dose"}},
	}
	if got := QueryText(c); got != "kidney dose kidney renal dose" {
		t.Errorf("QueryText = %q", got)
	}
}
