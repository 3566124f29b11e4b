// Package strategy decides which external service(s) a task is mirrored to.
package strategy

import "github.com/harrisonrobin/taskmirror/pkg/model"

// longBlockHours is the estimated duration above which a task gets a
// calendar block reserved in addition to its task-list entry.
const longBlockHours = 4

// maxQuickTags is the tag count above which a task is considered to need
// extra visibility.
const maxQuickTags = 2

// Classify maps a task to a sync strategy. It is pure and deterministic:
// no I/O, no side effects, identical input always yields identical output.
//
// Rules are evaluated in order and the first match wins. The ordering is a
// fixed contract: several rules can be simultaneously true for one task,
// and reordering them changes observable behavior.
func Classify(task *model.TaskRecord) model.SyncStrategy {
	// 1. Time-and-place anchored: a concrete start/end time-of-day plus a
	// location belongs on the calendar alone.
	if task.HasTimedRange() && task.Location != "" {
		return model.StrategyCalendarOnly
	}

	// 2. Plain trackable item: nothing time- or place-anchored, a single
	// assignee, normal priority, and no long block wanted.
	if !task.HasTimedRange() &&
		task.Location == "" &&
		!task.MultiAssignee() &&
		!task.HighPriority() &&
		task.EstimatedHours <= longBlockHours {
		return model.StrategyTasksOnly
	}

	// 3. Needs extra visibility: many stakeholders, high priority, or
	// heavily tagged.
	if task.MultiAssignee() || task.HighPriority() || len(task.Tags) > maxQuickTags {
		return model.StrategyBoth
	}

	// 4. Long enough to want a block reserved.
	if task.EstimatedHours > longBlockHours {
		return model.StrategyBoth
	}

	// 5. Dated but not timed.
	if task.StartTime != nil && !task.HasTimedRange() {
		return model.StrategyBoth
	}

	// 6. Place without a time.
	if task.Location != "" && !task.HasTimedRange() {
		return model.StrategyCalendarOnly
	}

	// 7. Deadline-driven.
	if task.DueDate != nil {
		return model.StrategyTasksOnly
	}

	// 8. Conservative default.
	return model.StrategyTasksOnly
}
