// Package engine turns retrieved chunks into grounded, cited answers.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"

	"github.com/studygraph/studygraph/rag"
)

const defaultPromptTemplate = `You are a study assistant answering questions about course materials.
Use only the provided context. If the context does not contain the answer, say so.
Adapt your explanation to a {user_level} student.

Context:
{context}

Question: {question}

Answer:`

const snippetLength = 160

// Engine renders retrieved chunks into a prompt and calls the model.
type Engine struct {
	llm              llms.Model
	promptTemplate   string
	temperature      float64
	maxTokens        int
	timeout          time.Duration
	maxContextChunks int
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithPromptTemplate replaces the default prompt. The template may reference
// {context}, {question}, {user_level}, and {chat_history}.
func WithPromptTemplate(template string) EngineOption {
	return func(e *Engine) {
		e.promptTemplate = template
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temperature float64) EngineOption {
	return func(e *Engine) {
		e.temperature = temperature
	}
}

// WithMaxTokens bounds the generated answer length.
func WithMaxTokens(maxTokens int) EngineOption {
	return func(e *Engine) {
		e.maxTokens = maxTokens
	}
}

// WithTimeout bounds the model call.
func WithTimeout(timeout time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = timeout
	}
}

// WithMaxContextChunks bounds how many retrieved chunks enter the prompt.
func WithMaxContextChunks(n int) EngineOption {
	return func(e *Engine) {
		e.maxContextChunks = n
	}
}

// NewEngine creates an answer generation engine over the given model.
func NewEngine(llm llms.Model, opts ...EngineOption) (*Engine, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm is required")
	}

	e := &Engine{
		llm:              llm,
		promptTemplate:   defaultPromptTemplate,
		temperature:      0.3,
		maxTokens:        1024,
		timeout:          60 * time.Second,
		maxContextChunks: 4,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Generate answers the question from the retrieved chunks. Empty results
// yield the fixed no-information answer with no citations, not an error.
// Chunks are ranked by descending score with ties keeping arrival order,
// truncated to the context budget, and cited in that rank order.
func (e *Engine) Generate(ctx context.Context, question string, results []rag.DocumentSearchResult, userLevel string) (*rag.Answer, error) {
	return e.GenerateWithHistory(ctx, question, results, userLevel, "")
}

// GenerateWithHistory is Generate with prior conversation rendered into the
// prompt when the template references {chat_history}.
func (e *Engine) GenerateWithHistory(ctx context.Context, question string, results []rag.DocumentSearchResult, userLevel, chatHistory string) (*rag.Answer, error) {
	if len(results) == 0 {
		return &rag.Answer{
			Text:      rag.NoInformationAnswer,
			Citations: []rag.SourceCitation{},
		}, nil
	}

	ranked := make([]rag.DocumentSearchResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if e.maxContextChunks > 0 && len(ranked) > e.maxContextChunks {
		ranked = ranked[:e.maxContextChunks]
	}

	contextBlock := buildContext(ranked)

	if userLevel == "" {
		userLevel = "intermediate"
	}
	prompt := strings.NewReplacer(
		"{context}", contextBlock,
		"{question}", question,
		"{user_level}", userLevel,
		"{chat_history}", chatHistory,
	).Replace(e.promptTemplate)

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := llms.GenerateFromSinglePrompt(callCtx, e.llm, prompt,
		llms.WithTemperature(e.temperature),
		llms.WithMaxTokens(e.maxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	return &rag.Answer{
		Text:      strings.TrimSpace(text),
		Citations: buildCitations(ranked),
		Context:   contextBlock,
		Duration:  time.Since(start),
	}, nil
}

var _ rag.Generator = (*Engine)(nil)

// buildContext renders the ranked chunks into a context block with per-chunk
// source tags so the model can reference them.
func buildContext(ranked []rag.DocumentSearchResult) string {
	var b strings.Builder
	for i, result := range ranked {
		doc := result.Document
		fmt.Fprintf(&b, "[Source %d: %s]\n%s\n\n", i+1, doc.Source(), doc.Content)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// buildCitations builds citations from the same chunks that entered the
// prompt, in rank order.
func buildCitations(ranked []rag.DocumentSearchResult) []rag.SourceCitation {
	citations := make([]rag.SourceCitation, len(ranked))
	for i, result := range ranked {
		doc := result.Document

		chunkIndex := 0
		if doc.Metadata != nil {
			switch v := doc.Metadata["chunk_index"].(type) {
			case int:
				chunkIndex = v
			case float64:
				chunkIndex = int(v)
			}
		}

		snippet := truncateSnippet(doc.Content, snippetLength)

		citations[i] = rag.SourceCitation{
			Source:     doc.Source(),
			ChunkIndex: chunkIndex,
			Score:      result.Score,
			Snippet:    snippet,
		}
	}
	return citations
}

// truncateSnippet shortens content to at most maxBytes, backing up to a rune
// boundary so a multi-byte character is never cut in half.
func truncateSnippet(content string, maxBytes int) string {
	if len(content) <= maxBytes {
		return content
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}
