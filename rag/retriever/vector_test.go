package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studygraph/studygraph/rag"
	"github.com/studygraph/studygraph/rag/embed"
	"github.com/studygraph/studygraph/rag/store"
)

// failingEmbedder always errors, to exercise error propagation.
type failingEmbedder struct{}

func (failingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedder down")
}

func (failingEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedder down")
}

func (failingEmbedder) Dimension() int { return 8 }

func indexedStore(t *testing.T, embedder rag.Embedder, contents []string) rag.VectorStore {
	t.Helper()
	ctx := context.Background()

	vecs, err := embedder.EmbedDocuments(ctx, contents)
	require.NoError(t, err)

	docs := make([]rag.Document, len(contents))
	for i, content := range contents {
		docs[i] = rag.Document{
			ID:        contents[i][:4],
			Content:   content,
			Metadata:  map[string]any{"source": "materials/notes.md"},
			Embedding: vecs[i],
		}
	}

	s := store.NewMemoryVectorStore()
	require.NoError(t, s.Add(ctx, docs))
	return s
}

func TestVectorRetriever_Retrieve(t *testing.T) {
	embedder := embed.NewLocalEmbedder(64)
	s := indexedStore(t, embedder, []string{
		"squat depth and knee tracking",
		"protein intake for muscle growth",
		"sleep and recovery quality",
	})

	r := NewVectorRetriever(s, embedder, rag.RetrievalConfig{
		K:          2,
		SearchType: rag.SearchTypeSimilarity,
	})

	results, err := r.Retrieve(context.Background(), "how deep should I squat")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "squat depth and knee tracking", results[0].Document.Content)
}

func TestVectorRetriever_FetchKLargerThanStore(t *testing.T) {
	embedder := embed.NewLocalEmbedder(64)
	s := indexedStore(t, embedder, []string{
		"squat depth and knee tracking",
		"protein intake for muscle growth",
	})

	r := NewVectorRetriever(s, embedder, rag.RetrievalConfig{
		K:          2,
		SearchType: rag.SearchTypeMMR,
		FetchK:     500,
		LambdaMult: 0.5,
	})

	results, err := r.Retrieve(context.Background(), "training advice")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestVectorRetriever_Defaults(t *testing.T) {
	r := NewVectorRetriever(store.NewMemoryVectorStore(), embed.NewLocalEmbedder(8), rag.RetrievalConfig{})
	cfg := r.Config()
	assert.Equal(t, 4, cfg.K)
	assert.Equal(t, rag.SearchTypeSimilarity, cfg.SearchType)
	assert.Equal(t, 16, cfg.FetchK)
}

func TestVectorRetriever_Errors(t *testing.T) {
	t.Run("embedder failure propagates", func(t *testing.T) {
		r := NewVectorRetriever(store.NewMemoryVectorStore(), failingEmbedder{}, rag.RetrievalConfig{K: 2})
		_, err := r.Retrieve(context.Background(), "anything")
		assert.ErrorContains(t, err, "embedder down")
	})

	t.Run("empty store surfaces sentinel", func(t *testing.T) {
		r := NewVectorRetriever(store.NewMemoryVectorStore(), embed.NewLocalEmbedder(8), rag.RetrievalConfig{K: 2})
		_, err := r.Retrieve(context.Background(), "anything")
		assert.ErrorIs(t, err, rag.ErrEmptyStore)
	})
}
