// Package agent implements the conversational study assistant: a two-node
// state graph that lets the model call the retrieval tool, with per-session
// checkpointed memory and a learning context that adapts answers to the
// student.
package agent

import (
	"github.com/tmc/langchaingo/llms"

	"github.com/studygraph/studygraph/graph"
	"github.com/studygraph/studygraph/rag"
)

// Message roles. The state carries its own message type instead of
// llms.MessageContent so checkpoints survive a JSON round-trip; conversion
// to llms happens only at the model boundary.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResponse is the result of one tool invocation.
type ToolResponse struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Message is one conversation entry.
type Message struct {
	Role         string        `json:"role"`
	Content      string        `json:"content,omitempty"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	ToolResponse *ToolResponse `json:"tool_response,omitempty"`
}

// HasToolCalls reports whether the message requests tool invocations.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// LearningContext tracks what the agent knows about the student. Updated
// each turn from the user's message.
type LearningContext struct {
	UserLevel    string            `json:"user_level,omitempty"`
	CurrentTopic string            `json:"current_topic,omitempty"`
	RecentTopics []string          `json:"recent_topics,omitempty"`
	Preferences  map[string]string `json:"preferences,omitempty"`
}

// merge folds new observations into the context: non-empty scalar fields
// win, topic histories and preferences are unioned.
func (lc LearningContext) merge(update LearningContext) LearningContext {
	out := lc
	if update.UserLevel != "" {
		out.UserLevel = update.UserLevel
	}
	if update.CurrentTopic != "" && update.CurrentTopic != lc.CurrentTopic {
		if lc.CurrentTopic != "" {
			out.RecentTopics = appendUnique(out.RecentTopics, lc.CurrentTopic)
		}
		out.CurrentTopic = update.CurrentTopic
	}
	for _, topic := range update.RecentTopics {
		out.RecentTopics = appendUnique(out.RecentTopics, topic)
	}
	if len(update.Preferences) > 0 {
		merged := make(map[string]string, len(lc.Preferences)+len(update.Preferences))
		for k, v := range lc.Preferences {
			merged[k] = v
		}
		for k, v := range update.Preferences {
			merged[k] = v
		}
		out.Preferences = merged
	}
	return out
}

func appendUnique(topics []string, topic string) []string {
	for _, t := range topics {
		if t == topic {
			return topics
		}
	}
	return append(topics, topic)
}

// AgentState is the conversation state flowing through the graph and
// persisted in checkpoints.
type AgentState struct {
	Messages []Message            `json:"messages"`
	Learning LearningContext      `json:"learning"`
	Sources  []rag.SourceCitation `json:"sources,omitempty"`
	Metadata map[string]any       `json:"metadata,omitempty"`
}

// LastMessage returns the newest message, or a zero Message when empty.
func (s AgentState) LastMessage() Message {
	if len(s.Messages) == 0 {
		return Message{}
	}
	return s.Messages[len(s.Messages)-1]
}

// toolRoundsThisTurn counts how many tool rounds the current turn has used:
// assistant messages with tool calls since the last user message.
func (s AgentState) toolRoundsThisTurn() int {
	rounds := 0
	for i := len(s.Messages) - 1; i >= 0; i-- {
		msg := s.Messages[i]
		if msg.Role == RoleUser {
			break
		}
		if msg.Role == RoleAssistant && msg.HasToolCalls() {
			rounds++
		}
	}
	return rounds
}

// LastAssistantText returns the text of the newest assistant message in the
// current turn. It never reaches past the last user message, so an empty
// answer is reported as empty rather than echoing a previous turn.
func (s AgentState) LastAssistantText() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		msg := s.Messages[i]
		if msg.Role == RoleUser {
			break
		}
		if msg.Role == RoleAssistant && msg.Content != "" {
			return msg.Content
		}
	}
	return ""
}

// agentSchema merges node deltas into the running state: messages append,
// learning merges field-wise, sources overwrite when set, metadata unions.
type agentSchema struct{}

func (agentSchema) Init() AgentState {
	return AgentState{}
}

func (agentSchema) Update(current, new AgentState) (AgentState, error) {
	current.Messages = append(current.Messages, new.Messages...)
	current.Learning = current.Learning.merge(new.Learning)
	if new.Sources != nil {
		current.Sources = new.Sources
	}
	if len(new.Metadata) > 0 {
		if current.Metadata == nil {
			current.Metadata = make(map[string]any, len(new.Metadata))
		}
		for k, v := range new.Metadata {
			current.Metadata[k] = v
		}
	}
	return current, nil
}

var _ graph.StateSchema[AgentState] = agentSchema{}

// toLLMMessages converts the state's history to the model's message type,
// prepending the system prompt.
func toLLMMessages(systemPrompt string, messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}

	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		case RoleAssistant:
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if msg.Content != "" {
				mc.Parts = append(mc.Parts, llms.TextPart(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, mc)
		case RoleTool:
			if msg.ToolResponse == nil {
				continue
			}
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: msg.ToolResponse.CallID,
						Name:       msg.ToolResponse.Name,
						Content:    msg.ToolResponse.Content,
					},
				},
			})
		}
	}
	return out
}
