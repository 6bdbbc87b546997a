package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/studygraph/studygraph/rag"
)

// LocalEmbedder produces deterministic vectors by hashing tokens into a
// fixed-dimension projection. It needs no network or credentials, so it
// serves tests and fully offline setups. Similar texts get similar vectors
// because they share token buckets, but this is not a semantic model.
type LocalEmbedder struct {
	dimension int
}

// NewLocalEmbedder creates a local hash-projection embedder. A non-positive
// dimension falls back to 256.
func NewLocalEmbedder(dimension int) *LocalEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &LocalEmbedder{dimension: dimension}
}

// Name identifies the provider in logs.
func (e *LocalEmbedder) Name() string {
	return "local/hash"
}

// EmbedQuery embeds a single query string.
func (e *LocalEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

// EmbedDocuments embeds a batch of document chunks.
func (e *LocalEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = e.embed(text)
	}
	return vecs, nil
}

// Dimension returns the vector dimension this embedder produces.
func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

func (e *LocalEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dimension)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		bucket := int(sum % uint64(e.dimension))
		// Sign from a hash bit keeps buckets from only accumulating upward
		if sum&(1<<63) != 0 {
			vec[bucket] -= 1
		} else {
			vec[bucket] += 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

var _ rag.Embedder = (*LocalEmbedder)(nil)
