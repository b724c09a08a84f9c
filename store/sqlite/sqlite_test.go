package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallnest/ragflow/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SqliteCheckpointStore {
	t.Helper()
	s, err := NewSqliteCheckpointStore(SqliteOptions{
		Path: filepath.Join(t.TempDir(), "checkpoints.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSqliteCheckpointStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cp := &store.Checkpoint{
		ID:        "cp-1",
		ThreadID:  "thread-1",
		NodeName:  "retrieve",
		Next:      "grade_documents",
		Step:      1,
		State:     json.RawMessage(`{"question":"Q","documents":[]}`),
		Metadata:  map[string]any{"workflow": "self-rag"},
		Timestamp: time.Now(),
	}
	require.NoError(t, s.Save(ctx, cp))

	loaded, err := s.Load(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "thread-1", loaded.ThreadID)
	assert.Equal(t, "grade_documents", loaded.Next)
	assert.Equal(t, 1, loaded.Step)
	assert.JSONEq(t, string(cp.State), string(loaded.State))
	assert.Equal(t, "self-rag", loaded.Metadata["workflow"])
	assert.WithinDuration(t, cp.Timestamp, loaded.Timestamp, time.Second)

	// Upsert keeps a single row.
	cp.Next = "generate"
	require.NoError(t, s.Save(ctx, cp))
	list, err := s.List(ctx, "thread-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "generate", list[0].Next)

	require.NoError(t, s.Delete(ctx, "cp-1"))
	_, err = s.Load(ctx, "cp-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSqliteCheckpointStore_LatestAndClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, step := range []int{1, 3, 2} {
		require.NoError(t, s.Save(ctx, &store.Checkpoint{
			ID:        fmt.Sprintf("cp-%d", step),
			ThreadID:  "t",
			NodeName:  "n",
			Next:      "END",
			Step:      step,
			Timestamp: time.Now(),
		}))
	}

	list, err := s.List(ctx, "t")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "cp-1", list[0].ID)
	assert.Equal(t, "cp-3", list[2].ID)
	assert.JSONEq(t, "null", string(list[0].State))

	latest, err := s.Latest(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Step)

	require.NoError(t, s.Clear(ctx, "t"))
	_, err = s.Latest(ctx, "t")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSqliteCheckpointStore_InvalidState(t *testing.T) {
	s := newTestStore(t)

	err := s.Save(context.Background(), &store.Checkpoint{ID: "cp", State: json.RawMessage("{oops")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to marshal state")
}
