// Package embedding defines the text embedder contract shared by corpus
// indexing and query retrieval.
package embedding

import (
	"context"
	"fmt"
)

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus. The same
// embedder must be used for chunks and queries so scores are comparable.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// BatchEmbedder is implemented by embedders that can embed many texts per call.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// EmbedAll embeds texts in order, batching when the embedder supports it.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([][]float64, error) {
	if b, ok := e.(BatchEmbedder); ok {
		vecs, err := b.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%s batch embed: %w", e.Name(), err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("%s batch embed: got %d vectors for %d texts", e.Name(), len(vecs), len(texts))
		}
		return vecs, nil
	}
	vecs := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("%s embed text %d: %w", e.Name(), i, err)
		}
		vecs[i] = v
	}
	return vecs, nil
}
