package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTask(t *testing.T) {
	input := `{
		"id": "task-42",
		"title": "Review launch checklist",
		"source_key": "src-task-42",
		"due_date": "2026-03-09T17:00:00Z",
		"priority": "high",
		"tags": ["launch", "ops"],
		"assignee_count": 2
	}`

	task, err := ParseTask(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, "task-42", task.ID)
	assert.Equal(t, "Review launch checklist", task.Title)
	assert.Equal(t, "src-task-42", task.SourceKey)
	assert.Equal(t, PriorityHigh, task.Priority)
	assert.Len(t, task.Tags, 2)
	assert.Equal(t, 2, task.AssigneeCount)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC), task.DueDate.UTC())
	assert.Nil(t, task.StartTime, "absent fields stay absent")
}

func TestParseTaskRejectsMissingFields(t *testing.T) {
	_, err := ParseTask(strings.NewReader(`{"id": "x", "title": "y"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source_key")

	_, err = ParseTask(strings.NewReader(`{"id": "x", "title": "y", "source_key": "k", "priority": "sometime"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "priority")
}

func TestParseTasksArray(t *testing.T) {
	input := `[
		{"id": "a", "title": "A", "source_key": "ka"},
		{"id": "b", "title": "B", "source_key": "kb"}
	]`

	tasks, err := ParseTasks(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].ID)
	assert.Equal(t, "b", tasks[1].ID)
}

func TestParseTasksConcatenated(t *testing.T) {
	input := `{"id": "a", "title": "A", "source_key": "ka"}
{"id": "b", "title": "B", "source_key": "kb"}`

	tasks, err := ParseTasks(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestParseTasksEmpty(t *testing.T) {
	tasks, err := ParseTasks(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
