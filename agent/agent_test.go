package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"

	"github.com/studygraph/studygraph/log"
	"github.com/studygraph/studygraph/rag"
	"github.com/studygraph/studygraph/store/memory"
)

// scriptedChatModel requests the retrieval tool whenever tools are offered
// and answers with text once they are not, or after maxToolCalls requests.
type scriptedChatModel struct {
	finalAnswer  string
	maxToolCalls int
	emptyAnswer  bool
	err          error

	mu        sync.Mutex
	calls     int
	toolCalls int
}

func (m *scriptedChatModel) GenerateContent(_ context.Context, _ []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}

	co := &llms.CallOptions{}
	for _, opt := range opts {
		opt(co)
	}

	if len(co.Tools) > 0 && m.toolCalls < m.maxToolCalls {
		m.toolCalls++
		return &llms.ContentResponse{
			Choices: []*llms.ContentChoice{{
				ToolCalls: []llms.ToolCall{{
					ID:   fmt.Sprintf("call_%d", m.toolCalls),
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      "search_course_materials",
						Arguments: `{"input": "squat depth"}`,
					},
				}},
			}},
		}, nil
	}

	answer := m.finalAnswer
	if m.emptyAnswer {
		answer = ""
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: answer}},
	}, nil
}

func (m *scriptedChatModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, nil, opts...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

// cannedTool returns a fixed payload and citations.
type cannedTool struct {
	payload   string
	citations []rag.SourceCitation
	err       error
	lastInput string
}

func (t *cannedTool) Name() string        { return "search_course_materials" }
func (t *cannedTool) Description() string { return "searches the course materials" }

func (t *cannedTool) Call(_ context.Context, input string) (string, error) {
	t.lastInput = input
	if t.err != nil {
		return "", t.err
	}
	return t.payload, nil
}

func (t *cannedTool) LastCitations() []rag.SourceCitation {
	return t.citations
}

func newTestAgent(t *testing.T, model llms.Model, tool *cannedTool, opts ...AgentOption) *Agent {
	t.Helper()
	opts = append(opts, WithAgentLogger(log.NewNoOpLogger()))
	a, err := NewAgent(model, []tools.Tool{tool}, memory.NewMemoryCheckpointStore(), opts...)
	require.NoError(t, err)
	return a
}

func TestAgent_ChatWithToolRound(t *testing.T) {
	model := &scriptedChatModel{
		finalAnswer:  "Squat until your hip crease passes your knee.",
		maxToolCalls: 1,
	}
	tool := &cannedTool{
		payload: `{"answer": "Depth depends on mobility.", "sources": []}`,
		citations: []rag.SourceCitation{
			{Source: "materials/squat.md", Score: 0.9},
		},
	}
	a := newTestAgent(t, model, tool)

	resp, err := a.Chat(context.Background(), "alice", "s1", "how deep should I squat")
	require.NoError(t, err)

	assert.Equal(t, "Squat until your hip crease passes your knee.", resp.Answer)
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, "materials/squat.md", resp.Citations[0].Source)
	assert.Equal(t, 1, resp.Metadata["tool_rounds"])
	assert.Equal(t, "squat depth", tool.lastInput)
	// agent -> tools -> agent
	assert.Equal(t, 2, model.calls)
}

func TestAgent_MemoryAcrossTurns(t *testing.T) {
	model := &scriptedChatModel{finalAnswer: "Noted."}
	a := newTestAgent(t, model, &cannedTool{payload: "{}"})
	ctx := context.Background()

	_, err := a.Chat(ctx, "alice", "s1", "I'm a beginner, tell me about deadlifts")
	require.NoError(t, err)

	_, err = a.Chat(ctx, "alice", "s1", "what about grip?")
	require.NoError(t, err)

	lc, found, err := a.SessionContext(ctx, "alice", "s1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, LevelBeginner, lc.UserLevel)
	assert.Equal(t, "grip", lc.CurrentTopic)
	assert.Contains(t, lc.RecentTopics, "deadlifts")

	// Full history survives in the checkpoint
	state, found, err := a.runnable.LatestState(ctx, "alice:s1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, state.Messages, 4)
}

func TestAgent_SessionsAreIsolated(t *testing.T) {
	model := &scriptedChatModel{finalAnswer: "ok"}
	a := newTestAgent(t, model, &cannedTool{payload: "{}"})
	ctx := context.Background()

	_, err := a.Chat(ctx, "alice", "s1", "I'm a beginner")
	require.NoError(t, err)

	_, found, err := a.SessionContext(ctx, "alice", "s2")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = a.SessionContext(ctx, "bob", "s1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAgent_CitationsDoNotOutliveTheirTurn(t *testing.T) {
	model := &scriptedChatModel{
		finalAnswer:  "answered",
		maxToolCalls: 1,
	}
	tool := &cannedTool{
		payload:   "{}",
		citations: []rag.SourceCitation{{Source: "materials/squat.md"}},
	}
	a := newTestAgent(t, model, tool)
	ctx := context.Background()

	// First turn searches and cites
	resp, err := a.Chat(ctx, "alice", "s1", "how deep should I squat")
	require.NoError(t, err)
	require.Len(t, resp.Citations, 1)

	// Second turn answers directly; the previous turn's citations must not
	// resurface from the checkpoint
	resp, err = a.Chat(ctx, "alice", "s1", "thanks, makes sense")
	require.NoError(t, err)
	assert.Empty(t, resp.Citations)
}

func TestAgent_ConcurrentSessionsStayIsolated(t *testing.T) {
	model := &scriptedChatModel{finalAnswer: "noted"}
	a := newTestAgent(t, model, &cannedTool{payload: "{}"})
	ctx := context.Background()

	// Different sessions chat in parallel; each session's checkpoint must
	// hold only its own conversation.
	users := []string{"alice", "bob", "carol"}
	const turns = 3

	var wg sync.WaitGroup
	for _, user := range users {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			for turn := 0; turn < turns; turn++ {
				_, err := a.Chat(ctx, user, "s1", fmt.Sprintf("question %d from %s", turn, user))
				assert.NoError(t, err)
			}
		}(user)
	}
	wg.Wait()

	for _, user := range users {
		state, found, err := a.runnable.LatestState(ctx, user+":s1")
		require.NoError(t, err)
		require.True(t, found, "session for %s lost its checkpoint", user)
		require.Len(t, state.Messages, 2*turns)
		for _, msg := range state.Messages {
			if msg.Role == RoleUser {
				assert.Contains(t, msg.Content, user, "foreign message leaked into %s's session", user)
			}
		}
	}
}

func TestAgent_MaxToolRoundsForcesAnswer(t *testing.T) {
	model := &scriptedChatModel{
		finalAnswer:  "Here is what I found.",
		maxToolCalls: 100,
	}
	tool := &cannedTool{payload: "{}"}
	a := newTestAgent(t, model, tool, WithMaxToolRounds(2))

	resp, err := a.Chat(context.Background(), "alice", "s1", "question")
	require.NoError(t, err)

	assert.Equal(t, "Here is what I found.", resp.Answer)
	assert.Equal(t, 2, resp.Metadata["tool_rounds"])
	assert.Equal(t, 2, model.toolCalls)
}

func TestAgent_EmptyAnswerFallsBack(t *testing.T) {
	model := &scriptedChatModel{emptyAnswer: true}
	a := newTestAgent(t, model, &cannedTool{payload: "{}"})

	resp, err := a.Chat(context.Background(), "alice", "s1", "question")
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, resp.Answer)
}

func TestAgent_ToolFailureFallsBack(t *testing.T) {
	model := &scriptedChatModel{
		emptyAnswer:  true,
		maxToolCalls: 1,
	}
	tool := &cannedTool{err: errors.New("store offline")}
	a := newTestAgent(t, model, tool)

	resp, err := a.Chat(context.Background(), "alice", "s1", "question")
	require.NoError(t, err)
	assert.Equal(t, RetrievalTroubleAnswer, resp.Answer)
}

func TestAgent_ModelErrorPropagates(t *testing.T) {
	model := &scriptedChatModel{err: errors.New("quota exceeded")}
	a := newTestAgent(t, model, &cannedTool{payload: "{}"})

	_, err := a.Chat(context.Background(), "alice", "s1", "question")
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestAgent_ClearSession(t *testing.T) {
	model := &scriptedChatModel{finalAnswer: "ok"}
	a := newTestAgent(t, model, &cannedTool{payload: "{}"})
	ctx := context.Background()

	_, err := a.Chat(ctx, "alice", "s1", "hello there")
	require.NoError(t, err)
	require.NoError(t, a.ClearSession(ctx, "alice", "s1"))

	_, found, err := a.SessionContext(ctx, "alice", "s1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNewAgent_Validation(t *testing.T) {
	t.Run("model required", func(t *testing.T) {
		_, err := NewAgent(nil, nil, memory.NewMemoryCheckpointStore())
		assert.Error(t, err)
	})

	t.Run("checkpoint store required", func(t *testing.T) {
		_, err := NewAgent(&scriptedChatModel{}, nil, nil)
		assert.Error(t, err)
	})
}
