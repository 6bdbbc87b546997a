package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studygraph/studygraph/store"
)

func newTestStore(t *testing.T) *SqliteCheckpointStore {
	t.Helper()

	s, err := NewSqliteCheckpointStore(SqliteOptions{
		Path: filepath.Join(t.TempDir(), "checkpoints.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newCheckpoint(id, thread string, version int) *store.Checkpoint {
	return &store.Checkpoint{
		ID:        id,
		NodeName:  "agent",
		State:     map[string]any{"turn": float64(version)},
		Timestamp: time.Now().UTC(),
		Version:   version,
		Metadata: map[string]any{
			"thread_id": thread,
		},
	}
}

func TestSqliteCheckpointStore_SaveLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cp := newCheckpoint("cp-1", "alice:sess", 1)
	require.NoError(t, s.Save(ctx, cp))

	loaded, err := s.Load(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "cp-1", loaded.ID)
	assert.Equal(t, "agent", loaded.NodeName)
	assert.Equal(t, 1, loaded.Version)

	// JSON round-trip: state comes back as a generic map
	state, ok := loaded.State.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), state["turn"])

	_, err = s.Load(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrCheckpointNotFound)
}

func TestSqliteCheckpointStore_UpsertOnSameID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, newCheckpoint("cp", "t", 1)))
	require.NoError(t, s.Save(ctx, newCheckpoint("cp", "t", 2)))

	loaded, err := s.Load(ctx, "cp")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Version)

	list, err := s.List(ctx, "t")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSqliteCheckpointStore_ListAndLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, newCheckpoint("b", "t1", 2)))
	require.NoError(t, s.Save(ctx, newCheckpoint("a", "t1", 1)))
	require.NoError(t, s.Save(ctx, newCheckpoint("c", "t2", 1)))

	list, err := s.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Version)
	assert.Equal(t, 2, list[1].Version)

	latest, err := s.GetLatestByThread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "b", latest.ID)

	_, err = s.GetLatestByThread(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrCheckpointNotFound)
}

func TestSqliteCheckpointStore_DeleteClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, newCheckpoint("a", "t1", 1)))
	require.NoError(t, s.Save(ctx, newCheckpoint("b", "t1", 2)))
	require.NoError(t, s.Save(ctx, newCheckpoint("c", "t2", 1)))

	require.NoError(t, s.Delete(ctx, "a"))
	_, err := s.Load(ctx, "a")
	assert.ErrorIs(t, err, store.ErrCheckpointNotFound)

	require.NoError(t, s.Clear(ctx, "t1"))
	list, err := s.List(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, list)

	// Other threads untouched
	list, err = s.List(ctx, "t2")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSqliteCheckpointStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoints.db")

	s, err := NewSqliteCheckpointStore(SqliteOptions{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, newCheckpoint("cp", "alice:sess", 3)))
	require.NoError(t, s.Close())

	reopened, err := NewSqliteCheckpointStore(SqliteOptions{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	latest, err := reopened.GetLatestByThread(ctx, "alice:sess")
	require.NoError(t, err)
	assert.Equal(t, "cp", latest.ID)
	assert.Equal(t, 3, latest.Version)
}
