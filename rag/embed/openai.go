// Package embed provides the embedding providers used to index and query
// course materials. Providers share the rag.Embedder interface and can be
// composed into a fallback chain.
package embed

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/studygraph/studygraph/rag"
)

// Default dimension of text-embedding-3-small.
const defaultOpenAIDimension = 1536

// OpenAIEmbedder embeds text through the OpenAI embeddings API, or any
// OpenAI-compatible endpoint when a base URL is set.
type OpenAIEmbedder struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
}

// OpenAIOption configures the OpenAIEmbedder.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	baseURL   string
	model     string
	dimension int
}

// WithOpenAIBaseURL points the client at an OpenAI-compatible endpoint.
func WithOpenAIBaseURL(baseURL string) OpenAIOption {
	return func(c *openAIConfig) {
		c.baseURL = baseURL
	}
}

// WithOpenAIModel sets the embedding model name.
func WithOpenAIModel(model string) OpenAIOption {
	return func(c *openAIConfig) {
		c.model = model
	}
}

// WithOpenAIDimension overrides the expected vector dimension for models
// other than text-embedding-3-small.
func WithOpenAIDimension(dim int) OpenAIOption {
	return func(c *openAIConfig) {
		c.dimension = dim
	}
}

// NewOpenAIEmbedder creates an OpenAI-backed embedder.
func NewOpenAIEmbedder(apiKey string, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	cfg := &openAIConfig{
		model:     "text-embedding-3-small",
		dimension: defaultOpenAIDimension,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if apiKey == "" {
		return nil, fmt.Errorf("openai embedder requires an api key")
	}

	llmOpts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(cfg.model),
	}
	if cfg.baseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(cfg.baseURL))
	}

	llm, err := openai.New(llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai embedder: %w", err)
	}

	return &OpenAIEmbedder{
		embedder:  embedder,
		model:     cfg.model,
		dimension: cfg.dimension,
	}, nil
}

// Name identifies the provider in logs.
func (e *OpenAIEmbedder) Name() string {
	return fmt.Sprintf("openai/%s", e.model)
}

// EmbedQuery embeds a single query string.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("openai embed query: %w", err)
	}
	return vec, nil
}

// EmbedDocuments embeds a batch of document chunks.
func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("openai embed documents: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// Dimension returns the vector dimension this embedder produces.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

var _ rag.Embedder = (*OpenAIEmbedder)(nil)
