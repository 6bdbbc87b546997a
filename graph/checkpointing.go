package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/studygraph/studygraph/log"
	"github.com/studygraph/studygraph/store"
)

// Checkpoint is an alias for store.Checkpoint
type Checkpoint = store.Checkpoint

// CheckpointStore is an alias for store.CheckpointStore
type CheckpointStore = store.CheckpointStore

// CheckpointConfig configures checkpointing behavior
type CheckpointConfig struct {
	// Store is the checkpoint storage backend
	Store store.CheckpointStore

	// AutoSave enables automatic checkpointing after each node
	AutoSave bool

	// MaxCheckpoints limits the number of checkpoints kept per thread.
	// Zero means unlimited.
	MaxCheckpoints int

	// Logger receives checkpointing diagnostics. Defaults to the package
	// default logger.
	Logger log.Logger
}

// CheckpointableRunnable wraps a StateRunnable with checkpoint persistence
// and thread-based resumption. When invoked with a thread_id config, the
// latest checkpoint for that thread is loaded and merged with the new input
// via the graph schema, so a conversation continues where it left off.
type CheckpointableRunnable[S any] struct {
	runnable *StateRunnable[S]
	config   CheckpointConfig
}

// NewCheckpointableRunnable wraps a compiled runnable with checkpointing.
func NewCheckpointableRunnable[S any](runnable *StateRunnable[S], config CheckpointConfig) *CheckpointableRunnable[S] {
	if config.Logger == nil {
		config.Logger = log.GetDefaultLogger()
	}
	return &CheckpointableRunnable[S]{
		runnable: runnable,
		config:   config,
	}
}

// Invoke executes the graph with checkpointing support.
func (cr *CheckpointableRunnable[S]) Invoke(ctx context.Context, initialState S) (S, error) {
	return cr.InvokeWithConfig(ctx, initialState, nil)
}

// InvokeWithConfig executes the graph with checkpointing support and config.
func (cr *CheckpointableRunnable[S]) InvokeWithConfig(ctx context.Context, initialState S, config *Config) (S, error) {
	threadID := config.ThreadID()

	// Auto-resume: merge the latest checkpoint state for this thread with the
	// new input. ResumeFrom set explicitly takes precedence.
	if threadID != "" && (config == nil || config.ResumeFrom == "") {
		latest, err := store.Latest(ctx, cr.config.Store, threadID)
		if err != nil {
			cr.config.Logger.Warn("checkpoint lookup failed for thread %s: %v", threadID, err)
		} else if latest != nil {
			if checkpointState, ok := decodeCheckpointState[S](latest.State); ok {
				initialState = cr.mergeStates(checkpointState, initialState)
			} else {
				cr.config.Logger.Warn("checkpoint state for thread %s is not decodable, starting fresh", threadID)
			}
		}
	}

	// The save hook is scoped to this invocation, never installed on the
	// shared runnable, so concurrent threads checkpoint independently.
	var hook func(ctx context.Context, ran, next string, state S)
	if cr.config.AutoSave && threadID != "" {
		version := 0
		if latest, err := store.Latest(ctx, cr.config.Store, threadID); err == nil && latest != nil {
			version = latest.Version
		}
		hook = func(ctx context.Context, ran, next string, state S) {
			version++
			if err := cr.saveCheckpoint(ctx, threadID, ran, state, version); err != nil {
				cr.config.Logger.Warn("failed to save checkpoint for thread %s: %v", threadID, err)
			}
		}
	}

	if hook == nil {
		return cr.runnable.InvokeWithConfig(ctx, initialState, config)
	}
	return cr.runnable.InvokeWithHook(ctx, initialState, config, hook)
}

// SaveCheckpoint manually persists a state snapshot for a thread.
func (cr *CheckpointableRunnable[S]) SaveCheckpoint(ctx context.Context, threadID, nodeName string, state S) error {
	version := 1
	if latest, err := store.Latest(ctx, cr.config.Store, threadID); err == nil && latest != nil {
		version = latest.Version + 1
	}
	return cr.saveCheckpoint(ctx, threadID, nodeName, state, version)
}

// LatestState returns the most recent checkpointed state for a thread, or
// false when the thread has none.
func (cr *CheckpointableRunnable[S]) LatestState(ctx context.Context, threadID string) (S, bool, error) {
	var zero S
	latest, err := store.Latest(ctx, cr.config.Store, threadID)
	if err != nil {
		return zero, false, err
	}
	if latest == nil {
		return zero, false, nil
	}
	state, ok := decodeCheckpointState[S](latest.State)
	if !ok {
		return zero, false, fmt.Errorf("checkpoint state for thread %s is not decodable", threadID)
	}
	return state, true, nil
}

// ClearThread removes all checkpoints for a thread.
func (cr *CheckpointableRunnable[S]) ClearThread(ctx context.Context, threadID string) error {
	return cr.config.Store.Clear(ctx, threadID)
}

func (cr *CheckpointableRunnable[S]) saveCheckpoint(ctx context.Context, threadID, nodeName string, state S, version int) error {
	checkpoint := &store.Checkpoint{
		ID:        generateCheckpointID(),
		NodeName:  nodeName,
		State:     state,
		Timestamp: time.Now(),
		Version:   version,
		Metadata: map[string]any{
			"thread_id": threadID,
		},
	}

	if err := cr.config.Store.Save(ctx, checkpoint); err != nil {
		return err
	}

	if cr.config.MaxCheckpoints > 0 {
		cr.pruneCheckpoints(ctx, threadID)
	}
	return nil
}

// pruneCheckpoints drops the oldest checkpoints beyond MaxCheckpoints.
func (cr *CheckpointableRunnable[S]) pruneCheckpoints(ctx context.Context, threadID string) {
	checkpoints, err := cr.config.Store.List(ctx, threadID)
	if err != nil || len(checkpoints) <= cr.config.MaxCheckpoints {
		return
	}
	excess := len(checkpoints) - cr.config.MaxCheckpoints
	for _, cp := range checkpoints[:excess] {
		if err := cr.config.Store.Delete(ctx, cp.ID); err != nil {
			cr.config.Logger.Debug("failed to prune checkpoint %s: %v", cp.ID, err)
		}
	}
}

// mergeStates merges the checkpoint state with new input using the graph's
// schema. Without a schema the input replaces the checkpoint state.
func (cr *CheckpointableRunnable[S]) mergeStates(checkpointState S, input S) S {
	if cr.runnable.graph == nil || cr.runnable.graph.Schema == nil {
		return input
	}
	merged, err := cr.runnable.graph.Schema.Update(checkpointState, input)
	if err != nil {
		return input
	}
	return merged
}

// decodeCheckpointState recovers a typed state from a checkpoint's State
// field. In-memory stores hold the value directly; durable stores round-trip
// through JSON, so the loaded value is generic and is re-decoded here.
func decodeCheckpointState[S any](raw any) (S, bool) {
	if state, ok := raw.(S); ok {
		return state, true
	}

	var state S
	data, err := json.Marshal(raw)
	if err != nil {
		return state, false
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, false
	}
	return state, true
}

func generateCheckpointID() string {
	return fmt.Sprintf("checkpoint_%s", uuid.New().String())
}
