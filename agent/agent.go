package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"

	"github.com/studygraph/studygraph/graph"
	"github.com/studygraph/studygraph/log"
	"github.com/studygraph/studygraph/rag"
	"github.com/studygraph/studygraph/store"
)

// DefaultMaxToolRounds bounds how many times one turn may loop through the
// tools node before the model is forced to answer without tools.
const DefaultMaxToolRounds = 4

// Fixed fallbacks. The agent never returns a blank answer.
const (
	FallbackAnswer = "I'm sorry, I couldn't come up with an answer to that. Could you try rephrasing your question?"

	RetrievalTroubleAnswer = "I'm sorry, I had trouble searching the course materials just now. Please try again in a moment."
)

// CitationSource is implemented by tools that can report the citations
// behind their last result.
type CitationSource interface {
	LastCitations() []rag.SourceCitation
}

// ChatResponse is the outcome of one conversational turn.
type ChatResponse struct {
	Answer    string               `json:"answer"`
	Citations []rag.SourceCitation `json:"citations,omitempty"`
	Metadata  map[string]any       `json:"metadata,omitempty"`
}

// Agent is the conversational study assistant. One instance serves many
// users; turns within a session are serialized, sessions run concurrently.
type Agent struct {
	model         llms.Model
	tools         []tools.Tool
	toolsByName   map[string]tools.Tool
	runnable      *graph.CheckpointableRunnable[AgentState]
	maxToolRounds int
	logger        log.Logger
	sessions      keyedMutex
}

// AgentOption configures the Agent.
type AgentOption func(*Agent)

// WithMaxToolRounds overrides the tool round bound.
func WithMaxToolRounds(n int) AgentOption {
	return func(a *Agent) {
		a.maxToolRounds = n
	}
}

// WithAgentLogger sets the logger.
func WithAgentLogger(logger log.Logger) AgentOption {
	return func(a *Agent) {
		a.logger = logger
	}
}

// NewAgent builds the two-node agent graph over the given model and tools,
// with conversation state checkpointed per session in checkpoints.
func NewAgent(model llms.Model, agentTools []tools.Tool, checkpoints store.CheckpointStore, opts ...AgentOption) (*Agent, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}

	a := &Agent{
		model:         model,
		tools:         agentTools,
		toolsByName:   make(map[string]tools.Tool, len(agentTools)),
		maxToolRounds: DefaultMaxToolRounds,
		logger:        log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	for _, t := range agentTools {
		a.toolsByName[t.Name()] = t
	}

	runnable, err := a.buildGraph()
	if err != nil {
		return nil, err
	}
	a.runnable = graph.NewCheckpointableRunnable(runnable, graph.CheckpointConfig{
		Store:    checkpoints,
		AutoSave: true,
		Logger:   a.logger,
	})
	return a, nil
}

func (a *Agent) buildGraph() (*graph.StateRunnable[AgentState], error) {
	workflow := graph.NewStateGraph[AgentState]()
	workflow.SetSchema(agentSchema{})
	// Each tool round is two steps, plus the opening and closing agent calls
	workflow.SetMaxSteps(2*a.maxToolRounds + 2)

	workflow.AddNode("agent", "decides whether to search materials or answer", a.agentNode)
	workflow.AddNode("tools", "executes requested material searches", a.toolsNode)

	workflow.SetEntryPoint("agent")
	workflow.AddConditionalEdge("agent", func(_ context.Context, state AgentState) string {
		if state.LastMessage().HasToolCalls() {
			return "tools"
		}
		return graph.END
	})
	workflow.AddEdge("tools", "agent")

	return workflow.Compile()
}

// agentNode calls the model over the conversation. Tools are offered until
// the round bound is hit; after that the model must answer directly.
func (a *Agent) agentNode(ctx context.Context, state AgentState) (AgentState, error) {
	messages := toLLMMessages(renderSystemPrompt(state.Learning), state.Messages)

	roundsUsed := state.toolRoundsThisTurn()

	var opts []llms.CallOption
	if len(a.tools) > 0 && roundsUsed < a.maxToolRounds {
		opts = append(opts, llms.WithTools(a.toolDefs()))
	}

	resp, err := a.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return AgentState{}, fmt.Errorf("model call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return AgentState{}, fmt.Errorf("model returned no choices")
	}
	choice := resp.Choices[0]

	aiMsg := Message{
		Role:    RoleAssistant,
		Content: choice.Content,
	}
	// Past the round bound the model was offered no tools, so any stray
	// tool call would loop forever; drop them and keep the text.
	if roundsUsed < a.maxToolRounds {
		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			aiMsg.ToolCalls = append(aiMsg.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.FunctionCall.Name,
				Arguments: tc.FunctionCall.Arguments,
			})
		}
	}

	return AgentState{Messages: []Message{aiMsg}}, nil
}

// toolsNode executes every tool call in the newest assistant message and
// appends the results as tool messages.
func (a *Agent) toolsNode(ctx context.Context, state AgentState) (AgentState, error) {
	last := state.LastMessage()

	var delta AgentState

	for _, call := range last.ToolCalls {
		content, sources, ok := a.executeToolCall(ctx, call)
		if !ok {
			if delta.Metadata == nil {
				delta.Metadata = map[string]any{}
			}
			delta.Metadata["tool_error"] = true
		}
		if sources != nil {
			delta.Sources = sources
		}

		delta.Messages = append(delta.Messages, Message{
			Role: RoleTool,
			ToolResponse: &ToolResponse{
				CallID:  call.ID,
				Name:    call.Name,
				Content: content,
			},
		})
	}

	return delta, nil
}

// executeToolCall runs one call and returns the content for the model, the
// citations if the tool exposes them, and whether the call succeeded.
func (a *Agent) executeToolCall(ctx context.Context, call ToolCall) (string, []rag.SourceCitation, bool) {
	tool, ok := a.toolsByName[call.Name]
	if !ok {
		a.logger.Warn("model requested unknown tool %s", call.Name)
		return fmt.Sprintf("Error: unknown tool %q", call.Name), nil, false
	}

	result, err := tool.Call(ctx, toolInputFromArguments(call.Arguments))
	if err != nil {
		a.logger.Error("tool %s failed: %v", call.Name, err)
		return "Error: the search could not be completed.", nil, false
	}

	var sources []rag.SourceCitation
	if cs, ok := tool.(CitationSource); ok {
		sources = cs.LastCitations()
	}
	return result, sources, true
}

// toolInputFromArguments unwraps the single "input" parameter the tool
// schema declares, falling back to the raw argument string.
func toolInputFromArguments(arguments string) string {
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err == nil {
		if input, ok := args["input"].(string); ok {
			return input
		}
	}
	return arguments
}

func (a *Agent) toolDefs() []llms.Tool {
	defs := make([]llms.Tool, 0, len(a.tools))
	for _, t := range a.tools {
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"input": map[string]any{
							"type":        "string",
							"description": "The search query or question",
						},
					},
					"required":             []string{"input"},
					"additionalProperties": false,
				},
			},
		})
	}
	return defs
}

// sessionKey builds the checkpoint thread key for a user's session.
func sessionKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// Chat runs one conversational turn for the given session. State resumes
// from the session's latest checkpoint, so the agent remembers prior turns.
func (a *Agent) Chat(ctx context.Context, userID, sessionID, message string) (*ChatResponse, error) {
	key := sessionKey(userID, sessionID)
	unlock := a.sessions.lock(key)
	defer unlock()

	input := AgentState{
		Messages: []Message{{Role: RoleUser, Content: message}},
		Learning: observeLearning(message),
		// Reset per-turn state carried over from the previous checkpoint:
		// citations only accompany an answer whose turn produced them.
		Sources:  []rag.SourceCitation{},
		Metadata: map[string]any{"tool_error": false},
	}

	final, err := a.runnable.InvokeWithConfig(ctx, input, graph.WithThreadID(key))
	if err != nil {
		return nil, fmt.Errorf("chat turn failed: %w", err)
	}

	answer := final.LastAssistantText()
	if answer == "" {
		if final.Metadata["tool_error"] == true {
			answer = RetrievalTroubleAnswer
		} else {
			answer = FallbackAnswer
		}
	}

	level := final.Learning.UserLevel
	if level == "" {
		level = LevelIntermediate
	}

	return &ChatResponse{
		Answer:    answer,
		Citations: final.Sources,
		Metadata: map[string]any{
			"user_level":  level,
			"topic":       final.Learning.CurrentTopic,
			"tool_rounds": final.toolRoundsThisTurn(),
		},
	}, nil
}

// SessionContext returns the learning context checkpointed for a session,
// with false when the session has no history.
func (a *Agent) SessionContext(ctx context.Context, userID, sessionID string) (LearningContext, bool, error) {
	state, found, err := a.runnable.LatestState(ctx, sessionKey(userID, sessionID))
	if err != nil || !found {
		return LearningContext{}, false, err
	}
	return state.Learning, true, nil
}

// ClearSession forgets a session's checkpointed state.
func (a *Agent) ClearSession(ctx context.Context, userID, sessionID string) error {
	return a.runnable.ClearThread(ctx, sessionKey(userID, sessionID))
}

// keyedMutex serializes turns per session key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
