package google

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/taskmirror/pkg/model"
)

func TestMarkerRoundTrip(t *testing.T) {
	task := &model.TaskRecord{
		ID:            "task-1",
		Title:         "Ship it",
		SourceKey:     "src-task-1",
		Tags:          []string{"ops", "infra"},
		AssigneeCount: 2,
	}

	block := BuildMarker(task)
	assert.Equal(t, "[SYNC_METADATA:sourceKey:src-task-1|syncVersion:1|tags:ops,infra|assignees:2]", block)

	marker, ok := ParseMarker(block)
	require.True(t, ok)
	assert.Equal(t, "src-task-1", marker.SourceKey)
	assert.Equal(t, 1, marker.SyncVersion)
	assert.Equal(t, []string{"ops", "infra"}, marker.Tags)
	assert.Equal(t, 2, marker.Assignees)
}

func TestMarkerMinimal(t *testing.T) {
	task := &model.TaskRecord{ID: "t", Title: "t", SourceKey: "k"}
	block := BuildMarker(task)
	assert.Equal(t, "[SYNC_METADATA:sourceKey:k|syncVersion:1]", block)

	marker, ok := ParseMarker(block)
	require.True(t, ok)
	assert.Equal(t, "k", marker.SourceKey)
	assert.Empty(t, marker.Tags)
	assert.Zero(t, marker.Assignees)
}

func TestParseMarkerInsideNotes(t *testing.T) {
	notes := "Remember the attachments.\n\n[SYNC_METADATA:sourceKey:abc|syncVersion:1]"
	marker, ok := ParseMarker(notes)
	require.True(t, ok)
	assert.Equal(t, "abc", marker.SourceKey)
}

func TestParseMarkerAbsent(t *testing.T) {
	_, ok := ParseMarker("just a human note")
	assert.False(t, ok)

	_, ok = ParseMarker("")
	assert.False(t, ok)

	// A block without a source key is useless for correlation.
	_, ok = ParseMarker("[SYNC_METADATA:syncVersion:1]")
	assert.False(t, ok)
}

func TestStripMarker(t *testing.T) {
	notes := "Call the vendor first.\n\n[SYNC_METADATA:sourceKey:abc|syncVersion:1]"
	assert.Equal(t, "Call the vendor first.", StripMarker(notes))
	assert.Equal(t, "no block", StripMarker("no block"))
}

func TestAppendMarkerReplacesStaleBlock(t *testing.T) {
	task := &model.TaskRecord{ID: "t", Title: "t", SourceKey: "new-key"}
	notes := "Human text.\n\n[SYNC_METADATA:sourceKey:old-key|syncVersion:1]"

	updated := AppendMarker(notes, task)
	marker, ok := ParseMarker(updated)
	require.True(t, ok)
	assert.Equal(t, "new-key", marker.SourceKey)
	assert.NotContains(t, updated, "old-key")
}

func TestMarkerSanitizesDelimiters(t *testing.T) {
	task := &model.TaskRecord{
		ID:        "t",
		Title:     "t",
		SourceKey: "key|with]bad[chars",
		Tags:      []string{"a,b", "c|d"},
	}

	block := BuildMarker(task)
	marker, ok := ParseMarker(block)
	require.True(t, ok)
	assert.Equal(t, "keywithbadchars", marker.SourceKey)
	assert.Equal(t, []string{"ab", "cd"}, marker.Tags)
}
