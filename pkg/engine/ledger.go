package engine

import (
	"sync"
	"time"

	"github.com/harrisonrobin/taskmirror/pkg/model"
)

// SyncOperation is one ledger entry: the full outcome of a single SyncTask
// invocation, written for every attempt, success or failure.
type SyncOperation struct {
	ID       string             `json:"id"`
	TaskID   string             `json:"task_id"`
	Strategy model.SyncStrategy `json:"strategy"`

	Calendar *model.UpsertResult `json:"calendar,omitempty"`
	Tasks    *model.UpsertResult `json:"tasks,omitempty"`

	Errors    []ServiceError `json:"errors,omitempty"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	Success   bool           `json:"success"`
}

// ConflictRecord pairs the same dedup key changed in both services within
// one incremental pass.
type ConflictRecord struct {
	DedupKey       string            `json:"dedup_key"`
	CalendarChange model.ChangedItem `json:"calendar_change"`
	TaskChange     model.ChangedItem `json:"task_change"`
	DetectedAt     time.Time         `json:"detected_at"`
	Severity       string            `json:"severity"`
}

// ledger is the in-memory append-only operation log, trimmed by age only
// when the caller asks.
type ledger struct {
	mu         sync.Mutex
	operations []SyncOperation
	conflicts  []ConflictRecord
}

func (l *ledger) appendOperation(op SyncOperation) {
	l.mu.Lock()
	l.operations = append(l.operations, op)
	l.mu.Unlock()
}

func (l *ledger) appendConflicts(records []ConflictRecord) {
	if len(records) == 0 {
		return
	}
	l.mu.Lock()
	l.conflicts = append(l.conflicts, records...)
	l.mu.Unlock()
}

func (l *ledger) snapshotOperations() []SyncOperation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SyncOperation, len(l.operations))
	copy(out, l.operations)
	return out
}

func (l *ledger) snapshotConflicts() []ConflictRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ConflictRecord, len(l.conflicts))
	copy(out, l.conflicts)
	return out
}

// trim drops operations and conflicts older than cutoff and reports how
// many entries were removed.
func (l *ledger) trim(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0

	kept := l.operations[:0]
	for _, op := range l.operations {
		if op.StartTime.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, op)
	}
	l.operations = kept

	keptConflicts := l.conflicts[:0]
	for _, c := range l.conflicts {
		if c.DetectedAt.Before(cutoff) {
			removed++
			continue
		}
		keptConflicts = append(keptConflicts, c)
	}
	l.conflicts = keptConflicts

	return removed
}
