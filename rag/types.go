// Package rag implements the retrieval-augmented generation pipeline behind
// the study assistant: document loading, chunking, embedding, vector search,
// and grounded answer generation with citations.
package rag

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDimensionMismatch is returned when a query vector's dimension does
	// not match the stored vectors. This is a configuration error, usually
	// an embedding model change without re-indexing.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyStore is returned by operations that require an indexed corpus.
	ErrEmptyStore = errors.New("vector store is empty")
)

// Search type names accepted in SearchOptions and RetrievalConfig.
const (
	SearchTypeSimilarity = "similarity"
	SearchTypeMMR        = "mmr"
)

// Document is a chunk of course material with its metadata and, once
// embedded, its vector.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
	UpdatedAt time.Time      `json:"updated_at,omitempty"`
}

// Source returns the source path recorded in metadata, if any.
func (d *Document) Source() string {
	if d.Metadata == nil {
		return ""
	}
	if s, ok := d.Metadata["source"].(string); ok {
		return s
	}
	return ""
}

// DocumentSearchResult pairs a document with its relevance score.
type DocumentSearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// SourceCitation identifies where an answer's supporting chunk came from.
type SourceCitation struct {
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet,omitempty"`
}

// NoInformationAnswer is the fixed answer used when retrieval produced no
// usable context. Callers can compare against it to detect that case.
const NoInformationAnswer = "No relevant information found."

// Answer is a generated response with the citations that back it.
type Answer struct {
	Text      string           `json:"text"`
	Citations []SourceCitation `json:"citations"`
	Context   string           `json:"context,omitempty"`
	Duration  time.Duration    `json:"duration,omitempty"`
}

// QueryResult is the outcome of one retrieval-and-generation round.
type QueryResult struct {
	Query     string           `json:"query"`
	Answer    string           `json:"answer"`
	Sources   []SourceCitation `json:"sources"`
	Context   string           `json:"context,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	Durations QueryDurations   `json:"durations,omitempty"`
}

// QueryDurations breaks down where a query spent its time.
type QueryDurations struct {
	Retrieval  time.Duration `json:"retrieval"`
	Generation time.Duration `json:"generation"`
}

// RetrievalConfig controls the search policy applied at query time.
type RetrievalConfig struct {
	// K is the number of chunks to return.
	K int

	// SearchType is "similarity" or "mmr".
	SearchType string

	// FetchK is the candidate pool size for MMR re-ranking. Clamped to the
	// store size when larger.
	FetchK int

	// LambdaMult balances relevance against diversity for MMR, in [0, 1].
	// 1 reduces MMR to plain similarity ranking.
	LambdaMult float64
}

// SearchOptions parameterizes a single vector store search.
type SearchOptions struct {
	K          int
	SearchType string
	FetchK     int
	LambdaMult float64
}

// Embedder converts text into vectors. Queries and documents may use
// different request modes on some providers, hence the two methods.
type Embedder interface {
	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments embeds a batch of document chunks. A failure for any
	// item fails the batch; no zero-vector substitution.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimension this embedder produces.
	Dimension() int
}

// VectorStore stores embedded documents and answers vector searches.
type VectorStore interface {
	// Add stores documents. Every document must carry an embedding.
	Add(ctx context.Context, docs []Document) error

	// Search ranks stored documents against the query vector.
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]DocumentSearchResult, error)

	// Reset removes all stored documents.
	Reset(ctx context.Context) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Dimension returns the stored vector dimension, 0 when empty.
	Dimension(ctx context.Context) (int, error)

	// Close releases underlying resources.
	Close() error
}

// Retriever turns a natural-language query into ranked document chunks.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]DocumentSearchResult, error)
}

// Generator turns retrieved chunks into a grounded answer with citations.
type Generator interface {
	Generate(ctx context.Context, question string, results []DocumentSearchResult, userLevel string) (*Answer, error)
}

// TextSplitter splits documents into indexable chunks.
type TextSplitter interface {
	SplitText(text string) []string
	SplitDocuments(docs []Document) []Document
}

// Loader reads raw course materials into documents.
type Loader interface {
	Load(ctx context.Context) ([]Document, *IngestReport, error)
}

// IngestReport summarizes one ingestion run. Per-file failures are recorded
// here instead of aborting the run.
type IngestReport struct {
	FilesLoaded   int           `json:"files_loaded"`
	FilesSkipped  int           `json:"files_skipped"`
	Documents     int           `json:"documents"`
	ChunksIndexed int           `json:"chunks_indexed,omitempty"`
	Failures      []FileFailure `json:"failures,omitempty"`
}

// FileFailure records a file that could not be ingested.
type FileFailure struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}
