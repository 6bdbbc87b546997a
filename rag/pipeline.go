package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studygraph/studygraph/log"
)

const defaultBatchSize = 32

// SourceLister is implemented by vector stores that can report which source
// paths are already indexed, enabling idempotent re-ingestion.
type SourceLister interface {
	Sources(ctx context.Context) (map[string]bool, error)
}

// Enricher augments chunk documents with derived metadata (key concepts,
// difficulty, summaries) before indexing.
type Enricher interface {
	Enrich(ctx context.Context, docs []Document) ([]Document, error)
}

// RetrieverFactory builds a retriever for a store, embedder, and policy.
// Injected so the pipeline can rebuild its retriever when the policy changes
// without depending on a concrete implementation.
type RetrieverFactory func(store VectorStore, embedder Embedder, config RetrievalConfig) Retriever

// ProcessOptions controls one ingestion run.
type ProcessOptions struct {
	// ForceReprocess resets the store and re-indexes everything.
	ForceReprocess bool

	// EnableEnrichment runs the configured enricher over new chunks.
	EnableEnrichment bool
}

// PipelineStats describes the current state of the index.
type PipelineStats struct {
	Documents  int    `json:"documents"`
	Dimension  int    `json:"dimension"`
	SearchType string `json:"search_type"`
	K          int    `json:"k"`
}

// Pipeline wires the ingestion and query sides of the system together. It is
// a long-lived handle; all dependencies are injected at construction.
type Pipeline struct {
	loader       Loader
	splitter     TextSplitter
	embedder     Embedder
	store        VectorStore
	generator    Generator
	newRetriever RetrieverFactory
	retriever    Retriever
	retrieval    RetrievalConfig
	enricher     Enricher
	logger       log.Logger
	batchSize    int
}

// PipelineOption configures the Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the logger.
func WithPipelineLogger(logger log.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithBatchSize sets how many chunks are embedded and persisted per batch.
func WithBatchSize(n int) PipelineOption {
	return func(p *Pipeline) {
		p.batchSize = n
	}
}

// WithEnricher sets the enrichment hook applied when a run enables it.
func WithEnricher(e Enricher) PipelineOption {
	return func(p *Pipeline) {
		p.enricher = e
	}
}

// NewPipeline creates a pipeline. All components except the enricher are
// required.
func NewPipeline(loader Loader, splitter TextSplitter, embedder Embedder, store VectorStore,
	generator Generator, newRetriever RetrieverFactory, retrieval RetrievalConfig,
	opts ...PipelineOption) (*Pipeline, error) {

	if loader == nil || splitter == nil || embedder == nil || store == nil {
		return nil, fmt.Errorf("loader, splitter, embedder, and store are required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if newRetriever == nil {
		return nil, fmt.Errorf("retriever factory is required")
	}

	p := &Pipeline{
		loader:       loader,
		splitter:     splitter,
		embedder:     embedder,
		store:        store,
		generator:    generator,
		newRetriever: newRetriever,
		retrieval:    retrieval,
		logger:       log.GetDefaultLogger(),
		batchSize:    defaultBatchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.retriever = newRetriever(store, embedder, retrieval)
	return p, nil
}

// Process ingests the materials directory: load, split, embed, store. The
// run is idempotent unless ForceReprocess is set; already-indexed source
// paths are skipped. Each batch is persisted before the next is embedded, so
// a canceled run keeps its partial progress.
func (p *Pipeline) Process(ctx context.Context, opts ProcessOptions) (*IngestReport, error) {
	if opts.ForceReprocess {
		if err := p.store.Reset(ctx); err != nil {
			return nil, fmt.Errorf("failed to reset store: %w", err)
		}
		p.logger.Info("store reset, re-indexing everything")
	}

	docs, report, err := p.loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	if !opts.ForceReprocess {
		docs, err = p.skipIndexed(ctx, docs, report)
		if err != nil {
			return nil, err
		}
	}
	if len(docs) == 0 {
		p.logger.Info("nothing new to index")
		return report, nil
	}

	chunks := p.splitter.SplitDocuments(docs)
	report.ChunksIndexed = len(chunks)

	if opts.EnableEnrichment && p.enricher != nil {
		chunks, err = p.enricher.Enrich(ctx, chunks)
		if err != nil {
			return nil, fmt.Errorf("enrichment failed: %w", err)
		}
	}

	for start := 0; start < len(chunks); start += p.batchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Content
		}

		vecs, err := p.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return report, fmt.Errorf("failed to embed batch at %d: %w", start, err)
		}
		for i := range batch {
			batch[i].Embedding = vecs[i]
		}

		if err := p.store.Add(ctx, batch); err != nil {
			return report, fmt.Errorf("failed to store batch at %d: %w", start, err)
		}
		p.logger.Debug("indexed chunks %d-%d of %d", start, end, len(chunks))
	}

	p.logger.Info("indexed %d chunks from %d documents", len(chunks), len(docs))
	return report, nil
}

// skipIndexed drops documents whose source path is already in the store.
func (p *Pipeline) skipIndexed(ctx context.Context, docs []Document, report *IngestReport) ([]Document, error) {
	lister, ok := p.store.(SourceLister)
	if !ok {
		return docs, nil
	}
	indexed, err := lister.Sources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed sources: %w", err)
	}
	if len(indexed) == 0 {
		return docs, nil
	}

	kept := docs[:0]
	skipped := 0
	for _, doc := range docs {
		if indexed[doc.Source()] {
			skipped++
			continue
		}
		kept = append(kept, doc)
	}
	if skipped > 0 {
		report.FilesSkipped += skipped
		p.logger.Info("skipping %d already-indexed documents", skipped)
	}
	return kept, nil
}

// Query retrieves context for the question and generates a cited answer. An
// empty index yields the fixed no-information answer instead of an error.
func (p *Pipeline) Query(ctx context.Context, question, userLevel string) (*QueryResult, error) {
	retrievalStart := time.Now()
	results, err := p.retriever.Retrieve(ctx, question)
	retrievalDur := time.Since(retrievalStart)

	if err != nil {
		if errors.Is(err, ErrEmptyStore) {
			return &QueryResult{
				Query:   question,
				Answer:  NoInformationAnswer,
				Sources: []SourceCitation{},
				Metadata: map[string]any{
					"index_empty": true,
				},
				Durations: QueryDurations{Retrieval: retrievalDur},
			}, nil
		}
		return nil, err
	}

	answer, err := p.generator.Generate(ctx, question, results, userLevel)
	if err != nil {
		return nil, err
	}

	return &QueryResult{
		Query:   question,
		Answer:  answer.Text,
		Sources: answer.Citations,
		Context: answer.Context,
		Metadata: map[string]any{
			"search_type": p.retrieval.SearchType,
			"num_results": len(results),
			"user_level":  userLevel,
		},
		Durations: QueryDurations{
			Retrieval:  retrievalDur,
			Generation: answer.Duration,
		},
	}, nil
}

// Retrieve exposes raw retrieval without generation.
func (p *Pipeline) Retrieve(ctx context.Context, question string) ([]DocumentSearchResult, error) {
	return p.retriever.Retrieve(ctx, question)
}

// Stats reports the current index state.
func (p *Pipeline) Stats(ctx context.Context) (*PipelineStats, error) {
	count, err := p.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	dim, err := p.store.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	return &PipelineStats{
		Documents:  count,
		Dimension:  dim,
		SearchType: p.retrieval.SearchType,
		K:          p.retrieval.K,
	}, nil
}

// Reset destroys the index. Confirmation is the caller's responsibility.
func (p *Pipeline) Reset(ctx context.Context) error {
	return p.store.Reset(ctx)
}

// SetRetrievalConfig swaps the retrieval policy, rebuilding the retriever.
func (p *Pipeline) SetRetrievalConfig(config RetrievalConfig) {
	p.retrieval = config
	p.retriever = p.newRetriever(p.store, p.embedder, config)
}

// RetrievalConfigInEffect returns the active retrieval policy.
func (p *Pipeline) RetrievalConfigInEffect() RetrievalConfig {
	return p.retrieval
}
