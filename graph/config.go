package graph

// Config carries per-invocation options for a compiled graph.
type Config struct {
	// Configurable holds runtime parameters. The "thread_id" key enables
	// checkpoint-based resumption of a conversation thread.
	Configurable map[string]any

	// ResumeFrom overrides the entry point with an explicit node to resume
	// from. Normally set by the checkpointing layer, not by callers.
	ResumeFrom string

	// MaxSteps bounds the number of node executions in a single invocation.
	// Zero means the compiled graph's default applies.
	MaxSteps int
}

// ThreadID returns the thread_id from the configurable map, if set.
func (c *Config) ThreadID() string {
	if c == nil || c.Configurable == nil {
		return ""
	}
	if tid, ok := c.Configurable["thread_id"].(string); ok {
		return tid
	}
	return ""
}

// WithThreadID creates a Config with the given thread_id set in the
// configurable map. This is the usual way to enable checkpoint-based
// conversation resumption.
//
// Example:
//
//	result, err := runnable.InvokeWithConfig(ctx, state, graph.WithThreadID("user:session"))
func WithThreadID(threadID string) *Config {
	return &Config{
		Configurable: map[string]any{
			"thread_id": threadID,
		},
	}
}
