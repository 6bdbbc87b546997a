package embed

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/studygraph/studygraph/rag"
)

// Default dimension of text-embedding-004.
const defaultGeminiDimension = 768

// GeminiEmbedder embeds text through the Google Generative AI API.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
}

// GeminiOption configures the GeminiEmbedder.
type GeminiOption func(*GeminiEmbedder)

// WithGeminiModel sets the embedding model name.
func WithGeminiModel(model string) GeminiOption {
	return func(e *GeminiEmbedder) {
		e.model = model
	}
}

// WithGeminiDimension overrides the expected vector dimension for models
// other than text-embedding-004.
func WithGeminiDimension(dim int) GeminiOption {
	return func(e *GeminiEmbedder) {
		e.dimension = dim
	}
}

// NewGeminiEmbedder creates a Gemini-backed embedder.
func NewGeminiEmbedder(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini embedder requires an api key")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	e := &GeminiEmbedder{
		client:    client,
		model:     "text-embedding-004",
		dimension: defaultGeminiDimension,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Name identifies the provider in logs.
func (e *GeminiEmbedder) Name() string {
	return fmt.Sprintf("gemini/%s", e.model)
}

// EmbedQuery embeds a single query string.
func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	model := e.client.EmbeddingModel(e.model)
	resp, err := model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed query: %w", err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini returned no embedding")
	}
	return resp.Embedding.Values, nil
}

// EmbedDocuments embeds a batch of document chunks with one batched request.
func (e *GeminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	model := e.client.EmbeddingModel(e.model)

	batch := model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	resp, err := model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini embed documents: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini returned an empty embedding at index %d", i)
		}
		vecs[i] = emb.Values
	}
	return vecs, nil
}

// Dimension returns the vector dimension this embedder produces.
func (e *GeminiEmbedder) Dimension() int {
	return e.dimension
}

// Close releases the underlying client.
func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}

var _ rag.Embedder = (*GeminiEmbedder)(nil)
