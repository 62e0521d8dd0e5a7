// Package retriever embeds a classified query and searches the indices its
// intent selects.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"trialrag/internal/domain"
	"trialrag/internal/embedding"
	"trialrag/internal/index"
)

var (
	// ErrRetrieval marks a failed embedding or search call.
	ErrRetrieval = errors.New("retrieval failed")
	// ErrTimeout marks a query that exceeded its retrieval deadline.
	ErrTimeout = errors.New("retrieval timed out")
)

const (
	DefaultTopK    = 5
	DefaultTimeout = 2 * time.Second
)

// Retriever is read-only after construction.
type Retriever struct {
	embedder embedding.Embedder
	indices  index.Set
	topK     int
	timeout  time.Duration
}

// New returns a retriever over the given indices. Non-positive topK and
// timeout fall back to the defaults.
func New(e embedding.Embedder, indices index.Set, topK int, timeout time.Duration) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Retriever{embedder: e, indices: indices, topK: topK, timeout: timeout}
}

// QueryText is what gets embedded: the resolved query plus its expanded terms,
// so synonyms pull in chunks written in the other vocabulary.
func QueryText(c domain.Classification) string {
	terms := domain.Flatten(c.Terms)
	if len(terms) == 0 {
		return c.Query
	}
	return c.Query + " " + strings.Join(terms, " ")
}

// Retrieve returns up to topK candidates from each index selected by the
// intent, merged by score. Ties go to the earlier kind in the intent's order,
// then to index order. An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, c domain.Classification) ([]domain.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vec, err := r.embedder.Embed(ctx, QueryText(c))
	if err != nil {
		return nil, classify("embed query", err)
	}

	type ranked struct {
		cand     domain.Candidate
		priority int
		position int
	}
	var all []ranked
	for priority, kind := range c.Intent.Kinds() {
		idx, err := r.indices.Get(kind)
		if err != nil {
			return nil, classify("search", err)
		}
		hits, err := idx.Search(ctx, vec, r.topK)
		if err != nil {
			return nil, classify("search "+kind.String(), err)
		}
		for _, h := range hits {
			all = append(all, ranked{
				cand:     domain.Candidate{Chunk: h.Chunk, Score: h.Score},
				priority: priority,
				position: h.Position,
			})
		}
	}
	// the search itself may have finished after the deadline
	if err := ctx.Err(); err != nil {
		return nil, classify("search", err)
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.cand.Score != b.cand.Score {
			return a.cand.Score > b.cand.Score
		}
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		return a.position < b.position
	})
	out := make([]domain.Candidate, len(all))
	for i, r := range all {
		out[i] = r.cand
	}
	return out, nil
}

func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrRetrieval, err)
}
