package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studygraph/studygraph/rag"
)

func TestAgentSchema_Update(t *testing.T) {
	schema := agentSchema{}

	t.Run("messages append", func(t *testing.T) {
		current := AgentState{Messages: []Message{{Role: RoleUser, Content: "hi"}}}
		updated, err := schema.Update(current, AgentState{
			Messages: []Message{{Role: RoleAssistant, Content: "hello"}},
		})
		require.NoError(t, err)
		require.Len(t, updated.Messages, 2)
		assert.Equal(t, RoleAssistant, updated.Messages[1].Role)
	})

	t.Run("learning merges field-wise", func(t *testing.T) {
		current := AgentState{Learning: LearningContext{
			UserLevel:    LevelBeginner,
			CurrentTopic: "squats",
		}}
		updated, err := schema.Update(current, AgentState{Learning: LearningContext{
			CurrentTopic: "deadlifts",
		}})
		require.NoError(t, err)
		assert.Equal(t, LevelBeginner, updated.Learning.UserLevel)
		assert.Equal(t, "deadlifts", updated.Learning.CurrentTopic)
		assert.Contains(t, updated.Learning.RecentTopics, "squats")
	})

	t.Run("sources overwrite when set", func(t *testing.T) {
		current := AgentState{Sources: []rag.SourceCitation{{Source: "old.md"}}}

		updated, err := schema.Update(current, AgentState{})
		require.NoError(t, err)
		assert.Equal(t, "old.md", updated.Sources[0].Source)

		updated, err = schema.Update(current, AgentState{
			Sources: []rag.SourceCitation{{Source: "new.md"}},
		})
		require.NoError(t, err)
		require.Len(t, updated.Sources, 1)
		assert.Equal(t, "new.md", updated.Sources[0].Source)
	})

	t.Run("metadata unions", func(t *testing.T) {
		current := AgentState{Metadata: map[string]any{"a": 1}}
		updated, err := schema.Update(current, AgentState{Metadata: map[string]any{"b": 2}})
		require.NoError(t, err)
		assert.Equal(t, 1, updated.Metadata["a"])
		assert.Equal(t, 2, updated.Metadata["b"])
	})
}

func TestAgentState_ToolRoundsThisTurn(t *testing.T) {
	state := AgentState{Messages: []Message{
		{Role: RoleUser, Content: "first question"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "1"}}},
		{Role: RoleTool, ToolResponse: &ToolResponse{CallID: "1"}},
		{Role: RoleAssistant, Content: "first answer"},
		{Role: RoleUser, Content: "second question"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "2"}}},
		{Role: RoleTool, ToolResponse: &ToolResponse{CallID: "2"}},
	}}
	assert.Equal(t, 1, state.toolRoundsThisTurn())
}

func TestAgentState_LastAssistantText(t *testing.T) {
	t.Run("within current turn", func(t *testing.T) {
		state := AgentState{Messages: []Message{
			{Role: RoleUser, Content: "q1"},
			{Role: RoleAssistant, Content: "a1"},
			{Role: RoleUser, Content: "q2"},
			{Role: RoleAssistant, Content: "a2"},
		}}
		assert.Equal(t, "a2", state.LastAssistantText())
	})

	t.Run("does not reach into previous turn", func(t *testing.T) {
		state := AgentState{Messages: []Message{
			{Role: RoleUser, Content: "q1"},
			{Role: RoleAssistant, Content: "a1"},
			{Role: RoleUser, Content: "q2"},
			{Role: RoleAssistant},
		}}
		assert.Empty(t, state.LastAssistantText())
	})
}

func TestAgentState_SurvivesJSONRoundTrip(t *testing.T) {
	state := AgentState{
		Messages: []Message{
			{Role: RoleUser, Content: "how deep should I squat"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{
				ID: "call_1", Name: "search_course_materials", Arguments: `{"input": "squat"}`,
			}}},
			{Role: RoleTool, ToolResponse: &ToolResponse{
				CallID: "call_1", Name: "search_course_materials", Content: "{}",
			}},
			{Role: RoleAssistant, Content: "Below parallel."},
		},
		Learning: LearningContext{
			UserLevel:    LevelIntermediate,
			CurrentTopic: "squats",
			Preferences:  map[string]string{"examples": "true"},
		},
		Sources: []rag.SourceCitation{{Source: "materials/squat.md", Score: 0.9}},
	}

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var decoded AgentState
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, state, decoded)
}

func TestObserveLearning(t *testing.T) {
	t.Run("level detection", func(t *testing.T) {
		lc := observeLearning("I'm a beginner, explain squats")
		assert.Equal(t, LevelBeginner, lc.UserLevel)
	})

	t.Run("preferences", func(t *testing.T) {
		lc := observeLearning("walk me through deadlifts step by step with examples")
		assert.Equal(t, "true", lc.Preferences["step_by_step"])
		assert.Equal(t, "true", lc.Preferences["examples"])
	})

	t.Run("topic guess", func(t *testing.T) {
		lc := observeLearning("what is hypertrophy")
		assert.Equal(t, "hypertrophy", lc.CurrentTopic)
	})

	t.Run("no signals", func(t *testing.T) {
		lc := observeLearning("why")
		assert.Empty(t, lc.UserLevel)
		assert.Empty(t, lc.CurrentTopic)
	})
}

func TestRenderSystemPrompt(t *testing.T) {
	prompt := renderSystemPrompt(LearningContext{
		UserLevel:    LevelAdvanced,
		CurrentTopic: "periodization",
		RecentTopics: []string{"volume", "deloads"},
		Preferences:  map[string]string{"concise": "true"},
	})

	assert.Contains(t, prompt, "advanced")
	assert.Contains(t, prompt, "periodization")
	assert.Contains(t, prompt, "volume, deloads")
	assert.Contains(t, prompt, "concise")
	assert.Contains(t, prompt, "search_course_materials")

	assert.Contains(t, renderSystemPrompt(LearningContext{}), "intermediate")
}
