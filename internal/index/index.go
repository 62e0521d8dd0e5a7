// Package index holds one immutable similarity index per source kind.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"trialrag/internal/domain"
)

// Index is an in-memory vector index using brute-force cosine similarity.
// Vectors are assumed L2-normalized, so cosine is the inner product. An Index
// is never mutated after Build and is safe for concurrent Search.
type Index struct {
	kind      domain.SourceKind
	dimension int
	chunks    []domain.Chunk
	vectors   [][]float64
	searches  atomic.Int64
}

// Build validates and freezes a set of chunks and their vectors.
func Build(kind domain.SourceKind, chunks []domain.Chunk, vectors [][]float64) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%s index: %d chunks but %d vectors", kind, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%s index: no chunks", kind)
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%s index: zero-length vectors", kind)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%s index: vector %d has dimension %d, want %d", kind, i, len(v), dim)
		}
		if chunks[i].Kind != kind {
			return nil, fmt.Errorf("%s index: chunk %s has kind %s", kind, chunks[i].ID, chunks[i].Kind)
		}
	}
	idx := &Index{
		kind:      kind,
		dimension: dim,
		chunks:    append([]domain.Chunk(nil), chunks...),
		vectors:   append([][]float64(nil), vectors...),
	}
	return idx, nil
}

// Kind returns the source kind this index serves.
func (x *Index) Kind() domain.SourceKind { return x.kind }

// Len returns the number of indexed chunks.
func (x *Index) Len() int { return len(x.chunks) }

// Dimension returns the vector dimension.
func (x *Index) Dimension() int { return x.dimension }

// Chunks returns a copy of the indexed chunks in index order.
func (x *Index) Chunks() []domain.Chunk {
	return append([]domain.Chunk(nil), x.chunks...)
}

// Searches reports how many times Search has been called.
func (x *Index) Searches() int64 { return x.searches.Load() }

// Hit is a search result: the chunk, its score and its position in the index.
type Hit struct {
	Chunk    domain.Chunk
	Score    float64
	Position int
}

// Search returns the topK most similar chunks, best first. Equal scores keep
// index order so results are deterministic.
func (x *Index) Search(ctx context.Context, vector []float64, topK int) ([]Hit, error) {
	x.searches.Add(1)
	if len(vector) != x.dimension {
		return nil, fmt.Errorf("%s index: query dimension %d, want %d", x.kind, len(vector), x.dimension)
	}
	if topK <= 0 {
		topK = 5
	}
	scores := make([]float64, len(x.vectors))
	for i := range x.vectors {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		scores[i] = dot(x.vectors[i], vector)
	}
	idxs := argsortDesc(scores)
	if topK > len(idxs) {
		topK = len(idxs)
	}
	hits := make([]Hit, 0, topK)
	for _, j := range idxs[:topK] {
		hits = append(hits, Hit{Chunk: x.chunks[j], Score: scores[j], Position: j})
	}
	return hits, nil
}

// ErrNoIndex is returned by a Set lookup for a kind that was never built.
var ErrNoIndex = errors.New("no index for source kind")

// Set groups the per-kind indices.
type Set map[domain.SourceKind]*Index

// Get returns the index for kind.
func (s Set) Get(kind domain.SourceKind) (*Index, error) {
	idx, ok := s[kind]
	if !ok || idx == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoIndex, kind)
	}
	return idx, nil
}

// Searches sums the access counters of every index in the set.
func (s Set) Searches() int64 {
	var n int64
	for _, idx := range s {
		n += idx.Searches()
	}
	return n
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return vals[idxs[a]] > vals[idxs[b]] })
	return idxs
}
