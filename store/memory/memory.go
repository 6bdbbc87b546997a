// Package memory provides an in-memory checkpoint store, suitable for
// single-process sessions and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/studygraph/studygraph/store"
)

// MemoryCheckpointStore implements store.CheckpointStore in process memory.
// Safe for concurrent use.
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*store.Checkpoint
}

// NewMemoryCheckpointStore creates a new in-memory checkpoint store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[string]*store.Checkpoint),
	}
}

// Save stores a checkpoint, overwriting any existing one with the same ID.
func (s *MemoryCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	if checkpoint == nil || checkpoint.ID == "" {
		return fmt.Errorf("checkpoint must have an ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *checkpoint
	s.checkpoints[cp.ID] = &cp
	return nil
}

// Load retrieves a checkpoint by ID.
func (s *MemoryCheckpointStore) Load(ctx context.Context, checkpointID string) (*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[checkpointID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrCheckpointNotFound, checkpointID)
	}

	copied := *cp
	return &copied, nil
}

// List returns all checkpoints whose metadata references the given thread,
// sorted by version ascending.
func (s *MemoryCheckpointStore) List(ctx context.Context, threadID string) ([]*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*store.Checkpoint, 0)
	for _, cp := range s.checkpoints {
		if matchesThread(cp, threadID) {
			copied := *cp
			results = append(results, &copied)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Version < results[j].Version
	})
	return results, nil
}

// GetLatestByThread returns the highest-version checkpoint for a thread.
func (s *MemoryCheckpointStore) GetLatestByThread(ctx context.Context, threadID string) (*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *store.Checkpoint
	for _, cp := range s.checkpoints {
		if !matchesThread(cp, threadID) {
			continue
		}
		if latest == nil || cp.Version > latest.Version {
			latest = cp
		}
	}

	if latest == nil {
		return nil, fmt.Errorf("%w: no checkpoints for thread %s", store.ErrCheckpointNotFound, threadID)
	}

	copied := *latest
	return &copied, nil
}

// Delete removes a checkpoint. Deleting a missing checkpoint is a no-op.
func (s *MemoryCheckpointStore) Delete(ctx context.Context, checkpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.checkpoints, checkpointID)
	return nil
}

// Clear removes all checkpoints for a thread.
func (s *MemoryCheckpointStore) Clear(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, cp := range s.checkpoints {
		if matchesThread(cp, threadID) {
			delete(s.checkpoints, id)
		}
	}
	return nil
}

// matchesThread checks the metadata keys under which a checkpoint may be
// grouped.
func matchesThread(cp *store.Checkpoint, threadID string) bool {
	if cp.Metadata == nil {
		return false
	}
	for _, key := range []string{"thread_id", "session_id", "execution_id"} {
		if v, ok := cp.Metadata[key].(string); ok && v == threadID {
			return true
		}
	}
	return false
}

var _ store.CheckpointStore = (*MemoryCheckpointStore)(nil)
var _ store.LatestGetter = (*MemoryCheckpointStore)(nil)
