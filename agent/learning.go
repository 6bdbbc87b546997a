package agent

import (
	"fmt"
	"strings"
)

// Recognized user levels.
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
)

var levelPhrases = map[string]string{
	"i'm a beginner":       LevelBeginner,
	"i am a beginner":      LevelBeginner,
	"i'm new to":           LevelBeginner,
	"i am new to":          LevelBeginner,
	"just starting":        LevelBeginner,
	"explain like":         LevelBeginner,
	"i'm intermediate":     LevelIntermediate,
	"i am intermediate":    LevelIntermediate,
	"some experience":      LevelIntermediate,
	"i'm advanced":         LevelAdvanced,
	"i am advanced":        LevelAdvanced,
	"i'm an advanced":      LevelAdvanced,
	"in depth":             LevelAdvanced,
	"technical detail":     LevelAdvanced,
	"years of experience":  LevelAdvanced,
}

var preferencePhrases = map[string]string{
	"step by step":  "step_by_step",
	"with examples": "examples",
	"an example":    "examples",
	"keep it short": "concise",
	"briefly":       "concise",
}

var topicStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"what": true, "how": true, "why": true, "when": true, "where": true,
	"which": true, "who": true, "can": true, "could": true, "should": true,
	"would": true, "do": true, "does": true, "did": true, "i": true,
	"you": true, "me": true, "my": true, "we": true, "it": true, "this": true,
	"that": true, "about": true, "tell": true, "explain": true, "please": true,
	"to": true, "of": true, "in": true, "on": true, "for": true, "with": true,
	"me.": true, "more": true, "some": true, "any": true, "there": true,
}

// observeLearning derives learning context updates from one user message:
// explicit level statements, phrasing preferences, and a rough topic guess.
func observeLearning(text string) LearningContext {
	lowered := strings.ToLower(text)

	var lc LearningContext
	for phrase, level := range levelPhrases {
		if strings.Contains(lowered, phrase) {
			lc.UserLevel = level
			break
		}
	}

	for phrase, pref := range preferencePhrases {
		if strings.Contains(lowered, phrase) {
			if lc.Preferences == nil {
				lc.Preferences = make(map[string]string)
			}
			lc.Preferences[pref] = "true"
		}
	}

	lc.CurrentTopic = guessTopic(lowered)
	return lc
}

// guessTopic picks the longest non-stopword as a cheap topic signal. Good
// enough to thread "you were asking about X" through the session.
func guessTopic(lowered string) string {
	best := ""
	for _, word := range strings.Fields(lowered) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if len(word) < 4 || topicStopwords[word] {
			continue
		}
		if len(word) > len(best) {
			best = word
		}
	}
	return best
}

// renderSystemPrompt builds the agent's system prompt from the learning
// context so answers stay adapted to the student.
func renderSystemPrompt(lc LearningContext) string {
	var b strings.Builder
	b.WriteString("You are a helpful study assistant for course materials. ")
	b.WriteString("Use the search_course_materials tool to ground answers in the materials, and cite what you used. ")
	b.WriteString("If the materials do not cover a question, say so honestly.\n")

	level := lc.UserLevel
	if level == "" {
		level = LevelIntermediate
	}
	fmt.Fprintf(&b, "The student is at %s level; match your explanations to that.\n", level)

	if lc.CurrentTopic != "" {
		fmt.Fprintf(&b, "Current topic of interest: %s.\n", lc.CurrentTopic)
	}
	if len(lc.RecentTopics) > 0 {
		fmt.Fprintf(&b, "Recently discussed: %s.\n", strings.Join(lc.RecentTopics, ", "))
	}
	if lc.Preferences["step_by_step"] == "true" {
		b.WriteString("The student prefers step-by-step explanations.\n")
	}
	if lc.Preferences["examples"] == "true" {
		b.WriteString("The student prefers concrete examples.\n")
	}
	if lc.Preferences["concise"] == "true" {
		b.WriteString("The student prefers concise answers.\n")
	}
	return b.String()
}
