package runlog

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/runsheet/core/model"
)

func TestRotatingJSONLStore_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	store, err := NewRotatingJSONLStore(path, 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	rec := Record{Timestamp: time.Now(), Day: model.Monday, Trigger: TriggerAuto,
		Unscheduled: []string{strings.Repeat("x", 4096)}}
	for i := 0; i < 300; i++ {
		require.NoError(t, store.Append(context.Background(), rec))
	}
	backups, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "runs-*.jsonl"))
	assert.NotEmpty(t, backups, "expected rotated files")

	out, err := store.Query(context.Background(), Query{})
	require.NoError(t, err)
	assert.Len(t, out, 300)
}

func TestRotatingJSONLStore_Query(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "runs.jsonl")
	store, err := NewRotatingJSONLStore(path, 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	now := time.Now()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, Record{Timestamp: now.Add(-time.Hour), Day: model.Monday, Trigger: TriggerAuto}))
	require.NoError(t, store.Append(ctx, Record{Timestamp: now, Day: model.Tuesday, Trigger: TriggerManual, JobID: "j1"}))
	require.NoError(t, store.Append(ctx, Record{Timestamp: now, Day: model.Monday, Trigger: TriggerForce}))

	all, err := store.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mon, err := store.Query(ctx, Query{Day: model.Monday})
	require.NoError(t, err)
	assert.Len(t, mon, 2)

	manual, err := store.Query(ctx, Query{Trigger: TriggerManual})
	require.NoError(t, err)
	require.Len(t, manual, 1)
	assert.Equal(t, "j1", manual[0].JobID)

	recent, err := store.Query(ctx, Query{Start: now.Add(-time.Minute)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestNew_EmptyPathIsNop(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, NopStore{}, s)
	assert.NoError(t, s.Append(context.Background(), Record{}))
}
