package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/studygraph/studygraph/config"
	"github.com/studygraph/studygraph/log"
	"github.com/studygraph/studygraph/rag"
	"github.com/studygraph/studygraph/rag/embed"
	"github.com/studygraph/studygraph/rag/enrich"
	"github.com/studygraph/studygraph/rag/engine"
	"github.com/studygraph/studygraph/rag/loader"
	"github.com/studygraph/studygraph/rag/retriever"
	"github.com/studygraph/studygraph/rag/splitter"
	ragstore "github.com/studygraph/studygraph/rag/store"
	"github.com/studygraph/studygraph/store"
	"github.com/studygraph/studygraph/store/memory"
	"github.com/studygraph/studygraph/store/postgres"
	"github.com/studygraph/studygraph/store/redis"
	"github.com/studygraph/studygraph/store/sqlite"
)

// app bundles the wired components behind every command.
type app struct {
	cfg      *config.Config
	pipeline *rag.Pipeline
	vectors  rag.VectorStore
	llm      llms.Model
	logger   log.Logger
}

// buildApp wires the pipeline from configuration. The LLM is optional so
// indexing works with only embedding credentials; commands that generate
// check for it explicitly.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := log.GetDefaultLogger()

	if err := os.MkdirAll(cfg.StoreDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", cfg.StoreDir, err)
	}

	embedder, err := buildEmbedder(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	vectors, err := ragstore.NewSQLiteVectorStore(filepath.Join(cfg.StoreDir, "vectors.db"))
	if err != nil {
		return nil, err
	}

	split, err := splitter.NewRecursiveCharacterTextSplitter(
		splitter.WithChunkSize(cfg.ChunkSize),
		splitter.WithChunkOverlap(cfg.ChunkOverlap),
	)
	if err != nil {
		return nil, err
	}

	var llm llms.Model
	var generator rag.Generator = missingModelGenerator{}
	if cfg.OpenAIKey != "" {
		llm, err = buildLLM(cfg)
		if err != nil {
			return nil, err
		}
		generator, err = engine.NewEngine(llm,
			engine.WithTemperature(cfg.Temperature),
			engine.WithMaxTokens(cfg.MaxTokens),
			engine.WithTimeout(cfg.LLMTimeout),
			engine.WithMaxContextChunks(cfg.MaxContextChunks),
		)
		if err != nil {
			return nil, err
		}
	}

	pipeline, err := rag.NewPipeline(
		loader.NewDirectoryLoader(cfg.MaterialsDir, loader.WithLogger(logger)),
		split,
		embedder,
		vectors,
		generator,
		func(s rag.VectorStore, e rag.Embedder, c rag.RetrievalConfig) rag.Retriever {
			return retriever.NewVectorRetriever(s, e, c)
		},
		rag.RetrievalConfig{
			K:          cfg.RetrievalK,
			SearchType: cfg.SearchType,
			FetchK:     cfg.RetrievalFetchK,
			LambdaMult: cfg.RetrievalLambda,
		},
		rag.WithPipelineLogger(logger),
		rag.WithEnricher(enrich.NewHeadingEnricher()),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		pipeline: pipeline,
		vectors:  vectors,
		llm:      llm,
		logger:   logger,
	}, nil
}

func (a *app) close() {
	if err := a.vectors.Close(); err != nil {
		a.logger.Warn("failed to close vector store: %v", err)
	}
}

// requireLLM fails commands that generate answers when no chat model is
// configured.
func (a *app) requireLLM() error {
	if a.llm == nil {
		return fmt.Errorf("%w: set OPENAI_API_KEY to enable answer generation", config.ErrMissingCredentials)
	}
	return nil
}

// buildEmbedder assembles the provider fallback chain from the configured
// credentials: OpenAI first, Gemini second.
func buildEmbedder(ctx context.Context, cfg *config.Config, logger log.Logger) (rag.Embedder, error) {
	var providers []rag.Embedder

	if cfg.OpenAIKey != "" {
		opts := []embed.OpenAIOption{embed.WithOpenAIModel(cfg.EmbeddingModel)}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, embed.WithOpenAIBaseURL(cfg.OpenAIBaseURL))
		}
		p, err := embed.NewOpenAIEmbedder(cfg.OpenAIKey, opts...)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if cfg.GeminiKey != "" {
		p, err := embed.NewGeminiEmbedder(ctx, cfg.GeminiKey)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: set OPENAI_API_KEY or GEMINI_API_KEY", config.ErrMissingCredentials)
	}

	return embed.NewFallbackEmbedder(ctx, providers, embed.WithFallbackLogger(logger))
}

func buildLLM(cfg *config.Config) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.OpenAIKey),
		openai.WithModel(cfg.ModelName),
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	return openai.New(opts...)
}

// newCheckpointStore picks the session persistence backend.
func newCheckpointStore(ctx context.Context, cfg *config.Config) (store.CheckpointStore, func(), error) {
	switch cfg.SessionStore {
	case "memory":
		return memory.NewMemoryCheckpointStore(), func() {}, nil

	case "sqlite":
		s, err := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{
			Path: filepath.Join(cfg.StoreDir, "sessions.db"),
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	case "redis":
		s := redis.NewRedisCheckpointStore(redis.RedisOptions{Addr: cfg.RedisAddr})
		return s, func() { s.Close() }, nil

	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, nil, fmt.Errorf("session store is postgres but STUDYGRAPH_POSTGRES_URL is empty")
		}
		s, err := postgres.NewPostgresCheckpointStore(ctx, postgres.PostgresOptions{
			ConnString: cfg.PostgresURL,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := s.InitSchema(ctx); err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}
}

// missingModelGenerator stands in when no chat model is configured, so the
// pipeline can still index and report stats.
type missingModelGenerator struct{}

func (missingModelGenerator) Generate(context.Context, string, []rag.DocumentSearchResult, string) (*rag.Answer, error) {
	return nil, fmt.Errorf("%w: set OPENAI_API_KEY to enable answer generation", config.ErrMissingCredentials)
}
