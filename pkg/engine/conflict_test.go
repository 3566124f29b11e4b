package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/taskmirror/pkg/model"
)

func TestDetectConflictsSharedKey(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	calChanges := []model.ChangedItem{
		{ExternalID: "ev-1", DedupKey: "K", UpdatedAt: now},
	}
	taskChanges := []model.ChangedItem{
		{ExternalID: "gt-1", DedupKey: "K", UpdatedAt: now.Add(3 * time.Minute)},
	}

	records := DetectConflicts(calChanges, taskChanges, now)
	require.Len(t, records, 1)
	assert.Equal(t, "K", records[0].DedupKey)
	assert.Equal(t, "ev-1", records[0].CalendarChange.ExternalID)
	assert.Equal(t, "gt-1", records[0].TaskChange.ExternalID)
	assert.Equal(t, now, records[0].DetectedAt)
}

func TestDetectConflictsNoSharedKeys(t *testing.T) {
	now := time.Now()
	calChanges := []model.ChangedItem{{DedupKey: "A"}}
	taskChanges := []model.ChangedItem{{DedupKey: "B"}}

	assert.Empty(t, DetectConflicts(calChanges, taskChanges, now))
	assert.Empty(t, DetectConflicts(nil, taskChanges, now))
	assert.Empty(t, DetectConflicts(calChanges, nil, now))
}

func TestConflictSeverity(t *testing.T) {
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		a, b time.Time
		want string
	}{
		{"near-simultaneous", base, base.Add(5 * time.Minute), SeverityHigh},
		{"same instant", base, base, SeverityHigh},
		{"far apart", base, base.Add(3 * time.Hour), SeverityMedium},
		{"missing timestamp", base, time.Time{}, SeverityMedium},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := conflictSeverity(
				model.ChangedItem{UpdatedAt: tc.a},
				model.ChangedItem{UpdatedAt: tc.b},
			)
			assert.Equal(t, tc.want, got)
		})
	}
}
