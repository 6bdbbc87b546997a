// Package store provides the vector stores that index embedded course
// material chunks and answer similarity and MMR searches over them.
package store

import (
	"fmt"
	"math"
	"sort"

	"github.com/studygraph/studygraph/rag"
)

// rankedDoc pairs a stored index with its relevance to the query.
type rankedDoc struct {
	index int
	score float64
}

// rankBySimilarity scores every stored vector against the query and returns
// the indices in descending score order. The sort is stable so ties keep
// stored order, making results deterministic.
func rankBySimilarity(query []float32, embeddings [][]float32) []rankedDoc {
	ranked := make([]rankedDoc, len(embeddings))
	for i, emb := range embeddings {
		ranked[i] = rankedDoc{index: i, score: cosineSimilarity32(query, emb)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	return ranked
}

// searchVectors runs a similarity or MMR search over the given documents and
// embeddings. Both store implementations rank through here so they behave
// identically.
func searchVectors(query []float32, docs []rag.Document, embeddings [][]float32, opts rag.SearchOptions) ([]rag.DocumentSearchResult, error) {
	if opts.K <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", opts.K)
	}
	if len(docs) == 0 {
		return nil, rag.ErrEmptyStore
	}
	if len(query) != len(embeddings[0]) {
		return nil, fmt.Errorf("%w: query has %d, store has %d",
			rag.ErrDimensionMismatch, len(query), len(embeddings[0]))
	}

	ranked := rankBySimilarity(query, embeddings)

	var picked []rankedDoc
	switch opts.SearchType {
	case rag.SearchTypeMMR:
		picked = applyMMR(ranked, embeddings, opts)
	case rag.SearchTypeSimilarity, "":
		picked = ranked
		if opts.K < len(picked) {
			picked = picked[:opts.K]
		}
	default:
		return nil, fmt.Errorf("unknown search type %q", opts.SearchType)
	}

	results := make([]rag.DocumentSearchResult, len(picked))
	for i, r := range picked {
		results[i] = rag.DocumentSearchResult{
			Document: docs[r.index],
			Score:    r.score,
		}
	}
	return results, nil
}

// applyMMR re-ranks the fetchK most relevant candidates with maximal marginal
// relevance: each round greedily picks the candidate maximizing
// lambda*relevance - (1-lambda)*maxSimilarityToSelected. With lambda 1 this
// reduces to plain similarity ranking.
func applyMMR(ranked []rankedDoc, embeddings [][]float32, opts rag.SearchOptions) []rankedDoc {
	fetchK := opts.FetchK
	if fetchK <= 0 || fetchK > len(ranked) {
		fetchK = len(ranked)
	}
	candidates := ranked[:fetchK]

	k := opts.K
	if k > len(candidates) {
		k = len(candidates)
	}
	lambda := opts.LambdaMult

	var selected []rankedDoc
	remaining := make([]rankedDoc, len(candidates))
	copy(remaining, candidates)

	for len(selected) < k {
		bestPos := -1
		bestScore := math.Inf(-1)

		for pos, cand := range remaining {
			maxSim := 0.0
			for _, sel := range selected {
				sim := cosineSimilarity32(embeddings[cand.index], embeddings[sel.index])
				if sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*cand.score - (1-lambda)*maxSim
			if score > bestScore {
				bestScore = score
				bestPos = pos
			}
		}

		selected = append(selected, remaining[bestPos])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}

	return selected
}

// cosineSimilarity32 computes cosine similarity between two float32 vectors.
func cosineSimilarity32(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
