package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/studygraph/studygraph/rag"
)

// MemoryVectorStore keeps documents and their vectors in memory. Documents
// are ranked in stored order on ties, so repeated searches are deterministic.
type MemoryVectorStore struct {
	mu         sync.RWMutex
	documents  []rag.Document
	embeddings [][]float32
}

// NewMemoryVectorStore creates an empty in-memory vector store.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{}
}

// Add stores documents. Every document must carry an embedding matching the
// store's dimension.
func (s *MemoryVectorStore) Add(_ context.Context, docs []rag.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("document %s has no embedding", doc.ID)
		}
		if len(s.embeddings) > 0 && len(doc.Embedding) != len(s.embeddings[0]) {
			return fmt.Errorf("%w: document %s has %d, store has %d",
				rag.ErrDimensionMismatch, doc.ID, len(doc.Embedding), len(s.embeddings[0]))
		}
	}

	for _, doc := range docs {
		s.documents = append(s.documents, doc)
		s.embeddings = append(s.embeddings, doc.Embedding)
	}
	return nil
}

// Search ranks stored documents against the query vector.
func (s *MemoryVectorStore) Search(_ context.Context, query []float32, opts rag.SearchOptions) ([]rag.DocumentSearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return searchVectors(query, s.documents, s.embeddings, opts)
}

// Reset removes all stored documents.
func (s *MemoryVectorStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents = nil
	s.embeddings = nil
	return nil
}

// Count returns the number of stored documents.
func (s *MemoryVectorStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents), nil
}

// Dimension returns the stored vector dimension, 0 when empty.
func (s *MemoryVectorStore) Dimension(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.embeddings) == 0 {
		return 0, nil
	}
	return len(s.embeddings[0]), nil
}

// Sources returns the distinct source paths of the stored documents, used to
// skip already-indexed files on re-ingestion.
func (s *MemoryVectorStore) Sources(_ context.Context) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := make(map[string]bool)
	for i := range s.documents {
		if src := s.documents[i].Source(); src != "" {
			sources[src] = true
		}
	}
	return sources, nil
}

// Close releases nothing for the in-memory store.
func (s *MemoryVectorStore) Close() error {
	return nil
}

var _ rag.VectorStore = (*MemoryVectorStore)(nil)
