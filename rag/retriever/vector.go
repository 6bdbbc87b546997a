// Package retriever turns natural-language questions into ranked document
// chunks by binding a vector store and an embedder to a search policy.
package retriever

import (
	"context"
	"fmt"

	"github.com/studygraph/studygraph/rag"
)

// VectorRetriever embeds queries with the same embedder used at index time
// and searches the vector store with a fixed retrieval policy. It is cheap to
// construct, so changing retrieval parameters means building a new one.
type VectorRetriever struct {
	store    rag.VectorStore
	embedder rag.Embedder
	config   rag.RetrievalConfig
}

// NewVectorRetriever creates a retriever. Zero-valued config fields fall back
// to similarity search with k=4.
func NewVectorRetriever(store rag.VectorStore, embedder rag.Embedder, config rag.RetrievalConfig) *VectorRetriever {
	if config.K <= 0 {
		config.K = 4
	}
	if config.SearchType == "" {
		config.SearchType = rag.SearchTypeSimilarity
	}
	if config.FetchK <= 0 {
		config.FetchK = config.K * 4
	}
	return &VectorRetriever{
		store:    store,
		embedder: embedder,
		config:   config,
	}
}

// Config returns the retrieval policy in effect.
func (r *VectorRetriever) Config() rag.RetrievalConfig {
	return r.config
}

// Retrieve embeds the query and returns the top chunks under the configured
// policy. An empty store surfaces rag.ErrEmptyStore.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string) ([]rag.DocumentSearchResult, error) {
	queryVec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.store.Search(ctx, queryVec, rag.SearchOptions{
		K:          r.config.K,
		SearchType: r.config.SearchType,
		FetchK:     r.config.FetchK,
		LambdaMult: r.config.LambdaMult,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return results, nil
}

var _ rag.Retriever = (*VectorRetriever)(nil)
