package audit

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRecorder_RecordWritesOneFile(t *testing.T) {
	dir := t.TempDir()
	r := NewFileRecorder(filepath.Join(dir, "calls"), nil)

	err := r.Record(context.Background(), Record{
		CallID:    "call-1",
		Tool:      "navigate_canvas",
		Arguments: map[string]any{"objectId": "item-42"},
		Status:    StatusCompleted,
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "calls"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	pattern := regexp.MustCompile(`^tool_call_\d{8}_\d{6}\.\d{3}_[0-9a-f-]{8}\.json$`)
	assert.Regexp(t, pattern, entries[0].Name())
}

func TestFileRecorder_ListNewestFirst(t *testing.T) {
	r := NewFileRecorder(t.TempDir(), nil)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, tool := range []string{"generate_task", "generate_lab_result", "navigate_canvas"} {
		require.NoError(t, r.Record(context.Background(), Record{
			CallID:    tool,
			Tool:      tool,
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Status:    StatusCompleted,
		}))
	}
	require.NoError(t, r.Record(context.Background(), Record{
		CallID:    "bad",
		Tool:      "navigate_canvas",
		Timestamp: base.Add(5 * time.Second),
		Status:    StatusFailed,
		Error:     "board: 404",
	}))

	all, err := r.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "bad", all[0].CallID)
	assert.True(t, all[0].Failed())
	assert.Equal(t, "board: 404", all[0].Error)
	assert.Equal(t, "generate_task", all[3].CallID)
	assert.NotEmpty(t, all[3].ID)

	limited, err := r.List(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestFileRecorder_ListSkipsForeignAndMalformed(t *testing.T) {
	dir := t.TempDir()
	r := NewFileRecorder(dir, nil)
	require.NoError(t, r.Record(context.Background(), Record{CallID: "ok", Tool: "generate_task"}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tool_call_zzz.json"), []byte("{"), 0644))

	recs, err := r.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "ok", recs[0].CallID)
}

func TestFileRecorder_ListMissingDir(t *testing.T) {
	r := NewFileRecorder(filepath.Join(t.TempDir(), "absent"), nil)
	recs, err := r.List(context.Background(), 0)
	assert.NoError(t, err)
	assert.Empty(t, recs)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	assert.NoError(t, r.Record(context.Background(), Record{Tool: "x"}))
	recs, err := r.List(context.Background(), 10)
	assert.NoError(t, err)
	assert.Nil(t, recs)
}
