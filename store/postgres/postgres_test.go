package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studygraph/studygraph/store"
)

func newMockStore(t *testing.T) (*PostgresCheckpointStore, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return NewPostgresCheckpointStoreWithPool(mock, "session_checkpoints"), mock
}

func TestPostgresCheckpointStore_Save(t *testing.T) {
	s, mock := newMockStore(t)

	cp := &store.Checkpoint{
		ID:        "cp-1",
		NodeName:  "agent",
		State:     map[string]any{"turn": "one"},
		Timestamp: time.Now(),
		Version:   1,
		Metadata: map[string]any{
			"thread_id": "alice:sess",
		},
	}

	stateJSON, _ := json.Marshal(cp.State)
	metadataJSON, _ := json.Marshal(cp.Metadata)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_checkpoints")).
		WithArgs(
			cp.ID,
			"alice:sess",
			cp.NodeName,
			stateJSON,
			metadataJSON,
			cp.Timestamp,
			cp.Version,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Save(context.Background(), cp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_Save_WithoutThreadID(t *testing.T) {
	s, mock := newMockStore(t)

	cp := &store.Checkpoint{
		ID:        "cp-1",
		NodeName:  "agent",
		State:     map[string]any{"turn": "one"},
		Timestamp: time.Now(),
		Version:   1,
		Metadata:  map[string]any{},
	}

	stateJSON, _ := json.Marshal(cp.State)
	metadataJSON, _ := json.Marshal(cp.Metadata)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_checkpoints")).
		WithArgs(
			cp.ID,
			"",
			cp.NodeName,
			stateJSON,
			metadataJSON,
			cp.Timestamp,
			cp.Version,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Save(context.Background(), cp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_Load(t *testing.T) {
	s, mock := newMockStore(t)

	timestamp := time.Now()
	stateJSON, _ := json.Marshal(map[string]any{"turn": "one"})
	metadataJSON, _ := json.Marshal(map[string]any{"thread_id": "alice:sess"})

	rows := pgxmock.NewRows([]string{"id", "node_name", "state", "metadata", "timestamp", "version"}).
		AddRow("cp-1", "agent", stateJSON, metadataJSON, timestamp, 1)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, node_name, state, metadata, timestamp, version")).
		WithArgs("cp-1").
		WillReturnRows(rows)

	loaded, err := s.Load(context.Background(), "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "cp-1", loaded.ID)
	assert.Equal(t, "agent", loaded.NodeName)
	assert.Equal(t, 1, loaded.Version)
	assert.Equal(t, "alice:sess", loaded.ThreadID())

	state, ok := loaded.State.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "one", state["turn"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_Load_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, node_name, state, metadata, timestamp, version")).
		WithArgs("ghost").
		WillReturnError(errors.New("no rows in result set"))

	_, err := s.Load(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestPostgresCheckpointStore_List(t *testing.T) {
	s, mock := newMockStore(t)

	timestamp := time.Now()
	stateJSON, _ := json.Marshal(map[string]any{"turn": "one"})
	metadataJSON, _ := json.Marshal(map[string]any{"thread_id": "t"})

	rows := pgxmock.NewRows([]string{"id", "node_name", "state", "metadata", "timestamp", "version"}).
		AddRow("cp-1", "agent", stateJSON, metadataJSON, timestamp, 1).
		AddRow("cp-2", "tools", stateJSON, metadataJSON, timestamp, 2)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, node_name, state, metadata, timestamp, version")).
		WithArgs("t").
		WillReturnRows(rows)

	list, err := s.List(context.Background(), "t")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "cp-1", list[0].ID)
	assert.Equal(t, "cp-2", list[1].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_GetLatestByThread(t *testing.T) {
	s, mock := newMockStore(t)

	timestamp := time.Now()
	stateJSON, _ := json.Marshal(map[string]any{"turn": "three"})
	metadataJSON, _ := json.Marshal(map[string]any{"thread_id": "t"})

	rows := pgxmock.NewRows([]string{"id", "node_name", "state", "metadata", "timestamp", "version"}).
		AddRow("cp-3", "agent", stateJSON, metadataJSON, timestamp, 3)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY version DESC")).
		WithArgs("t").
		WillReturnRows(rows)

	latest, err := s.GetLatestByThread(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, "cp-3", latest.ID)
	assert.Equal(t, 3, latest.Version)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_DeleteClear(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM session_checkpoints WHERE id = $1")).
		WithArgs("cp-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, s.Delete(context.Background(), "cp-1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM session_checkpoints WHERE thread_id = $1")).
		WithArgs("t").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	require.NoError(t, s.Clear(context.Background(), "t"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_InitSchema(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS session_checkpoints")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
