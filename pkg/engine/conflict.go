package engine

import (
	"time"

	"github.com/harrisonrobin/taskmirror/pkg/model"
)

// concurrentEditWindow is how close together the two sides' edits must land
// to be flagged as a likely simultaneous edit rather than a stale mirror.
const concurrentEditWindow = 10 * time.Minute

// Conflict severities.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
)

// DetectConflicts cross-references the two services' change sets and emits
// one record per dedup key edited in both within the same pass. Detection
// only: which side wins is the caller's policy, not this engine's.
func DetectConflicts(calendarChanges, taskChanges []model.ChangedItem, detectedAt time.Time) []ConflictRecord {
	if len(calendarChanges) == 0 || len(taskChanges) == 0 {
		return nil
	}

	byKey := make(map[string]model.ChangedItem, len(taskChanges))
	for _, change := range taskChanges {
		byKey[change.DedupKey] = change
	}

	var records []ConflictRecord
	for _, calChange := range calendarChanges {
		taskChange, ok := byKey[calChange.DedupKey]
		if !ok {
			continue
		}
		records = append(records, ConflictRecord{
			DedupKey:       calChange.DedupKey,
			CalendarChange: calChange,
			TaskChange:     taskChange,
			DetectedAt:     detectedAt,
			Severity:       conflictSeverity(calChange, taskChange),
		})
	}
	return records
}

// conflictSeverity grades a conflict: edits landing close together on both
// sides look like genuinely concurrent user edits and rank high; anything
// else is a routine divergence.
func conflictSeverity(a, b model.ChangedItem) string {
	if a.UpdatedAt.IsZero() || b.UpdatedAt.IsZero() {
		return SeverityMedium
	}
	gap := a.UpdatedAt.Sub(b.UpdatedAt)
	if gap < 0 {
		gap = -gap
	}
	if gap <= concurrentEditWindow {
		return SeverityHigh
	}
	return SeverityMedium
}
