// Package store defines the checkpoint persistence contract shared by the
// memory, sqlite, redis, and postgres backends.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrCheckpointNotFound is returned when a checkpoint ID does not exist.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Checkpoint represents a saved state at a specific point in execution
type Checkpoint struct {
	ID        string         `json:"id"`
	NodeName  string         `json:"node_name"`
	State     any            `json:"state"`
	Metadata  map[string]any `json:"metadata"`
	Timestamp time.Time      `json:"timestamp"`
	Version   int            `json:"version"`
}

// ThreadID returns the thread_id recorded in the checkpoint metadata, if any.
func (c *Checkpoint) ThreadID() string {
	if c.Metadata == nil {
		return ""
	}
	if tid, ok := c.Metadata["thread_id"].(string); ok {
		return tid
	}
	return ""
}

// CheckpointStore defines the interface for checkpoint persistence
type CheckpointStore interface {
	// Save stores a checkpoint
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Load retrieves a checkpoint by ID
	Load(ctx context.Context, checkpointID string) (*Checkpoint, error)

	// List returns all checkpoints for a given thread, sorted by version
	List(ctx context.Context, threadID string) ([]*Checkpoint, error)

	// Delete removes a checkpoint
	Delete(ctx context.Context, checkpointID string) error

	// Clear removes all checkpoints for a thread
	Clear(ctx context.Context, threadID string) error
}

// LatestGetter is an optional optimization a CheckpointStore may implement
// to fetch the newest checkpoint for a thread without listing all of them.
type LatestGetter interface {
	GetLatestByThread(ctx context.Context, threadID string) (*Checkpoint, error)
}

// Latest returns the highest-version checkpoint for a thread, using the
// store's optimized lookup when available. Returns nil when the thread has
// no checkpoints.
func Latest(ctx context.Context, s CheckpointStore, threadID string) (*Checkpoint, error) {
	if getter, ok := s.(LatestGetter); ok {
		cp, err := getter.GetLatestByThread(ctx, threadID)
		if err != nil {
			if errors.Is(err, ErrCheckpointNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return cp, nil
	}

	checkpoints, err := s.List(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if len(checkpoints) == 0 {
		return nil, nil
	}

	latest := checkpoints[0]
	for _, cp := range checkpoints[1:] {
		if cp.Version > latest.Version {
			latest = cp
		}
	}
	return latest, nil
}
