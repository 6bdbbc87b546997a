package rag

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/tools"

	"github.com/studygraph/studygraph/log"
)

// RetrievalToolName is the function name the model calls to search materials.
const RetrievalToolName = "search_course_materials"

const retrievalToolDescription = `Searches the indexed course materials and returns a grounded answer with source citations.
Input is either a plain query string or a JSON object {"query": "...", "user_level": "beginner|intermediate|advanced"}.
Use this tool whenever the user asks about course content.`

// toolErrorPayload is what the model sees when retrieval breaks. Returned
// with a nil error so a tool failure never aborts the agent turn.
const toolErrorPayload = `{"answer": "An error occurred while searching the materials.", "sources": []}`

// toolInput is the structured form of the tool's input.
type toolInput struct {
	Query     string `json:"query"`
	UserLevel string `json:"user_level"`
}

// toolOutput is the JSON the tool hands back to the model.
type toolOutput struct {
	Answer  string           `json:"answer"`
	Sources []SourceCitation `json:"sources"`
}

// RetrievalTool exposes the pipeline's query path as a langchaingo tool so
// the conversational agent can search materials mid-turn.
type RetrievalTool struct {
	pipeline *Pipeline
	logger   log.Logger

	mu            sync.Mutex
	lastCitations []SourceCitation
}

// NewRetrievalTool wraps the pipeline as an agent tool.
func NewRetrievalTool(pipeline *Pipeline, logger log.Logger) *RetrievalTool {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &RetrievalTool{
		pipeline: pipeline,
		logger:   logger,
	}
}

// Name implements tools.Tool.
func (t *RetrievalTool) Name() string {
	return RetrievalToolName
}

// Description implements tools.Tool.
func (t *RetrievalTool) Description() string {
	return retrievalToolDescription
}

// Call implements tools.Tool. Internal failures are reported to the model as
// a safe JSON payload, never as an error.
func (t *RetrievalTool) Call(ctx context.Context, input string) (string, error) {
	query, userLevel := parseToolInput(input)
	if query == "" {
		return toolErrorPayload, nil
	}

	result, err := t.pipeline.Query(ctx, query, userLevel)
	if err != nil {
		t.logger.Error("retrieval tool failed for query %q: %v", query, err)
		t.setLastCitations(nil)
		return toolErrorPayload, nil
	}

	t.setLastCitations(result.Sources)

	out, err := json.Marshal(toolOutput{
		Answer:  result.Answer,
		Sources: result.Sources,
	})
	if err != nil {
		t.logger.Error("retrieval tool failed to encode result: %v", err)
		return toolErrorPayload, nil
	}
	return string(out), nil
}

// LastCitations returns the citations from the most recent successful call,
// so the agent can attach them to its final answer.
func (t *RetrievalTool) LastCitations() []SourceCitation {
	t.mu.Lock()
	defer t.mu.Unlock()
	citations := make([]SourceCitation, len(t.lastCitations))
	copy(citations, t.lastCitations)
	return citations
}

func (t *RetrievalTool) setLastCitations(citations []SourceCitation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastCitations = citations
}

// parseToolInput accepts either a raw query string or a JSON object with
// query and user_level fields.
func parseToolInput(input string) (query, userLevel string) {
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "{") {
		var parsed toolInput
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Query != "" {
			return parsed.Query, parsed.UserLevel
		}
	}
	return trimmed, ""
}

var _ tools.Tool = (*RetrievalTool)(nil)
