package model

import (
	"fmt"
	"time"
)

// Priority levels understood by the classifier.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// SyncStrategy determines which external service(s) a task is mirrored to.
type SyncStrategy string

const (
	StrategyCalendarOnly SyncStrategy = "calendar_only"
	StrategyTasksOnly    SyncStrategy = "tasks_only"
	StrategyBoth         SyncStrategy = "both"
	StrategyNone         SyncStrategy = "none"
)

// Valid reports whether s is one of the known strategies.
func (s SyncStrategy) Valid() bool {
	switch s {
	case StrategyCalendarOnly, StrategyTasksOnly, StrategyBoth, StrategyNone:
		return true
	}
	return false
}

// Credentials is an already-valid bearer token pair scoped to one user.
// The engine never persists or refreshes these.
type Credentials struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Validate checks the fields the adapters cannot work without.
func (c Credentials) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("credentials missing user_id")
	}
	if c.AccessToken == "" {
		return fmt.Errorf("credentials missing access_token")
	}
	return nil
}

// TaskRecord is the engine's read-only view of a task. Optional fields use
// pointers so "absent" is distinguishable from a zero value; the classifier's
// rule order depends on that distinction.
type TaskRecord struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	AllDay    bool       `json:"all_day,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`

	Location string   `json:"location,omitempty"`
	Priority string   `json:"priority,omitempty"`
	Tags     []string `json:"tags,omitempty"`

	AssigneeCount  int     `json:"assignee_count,omitempty"`
	TeamAssigned   bool    `json:"team_assigned,omitempty"`
	EstimatedHours float64 `json:"estimated_hours,omitempty"`

	// SourceKey is the dedup key: stable for the life of the task, stored
	// inside every mirrored external item, and the only correlation
	// mechanism across the two external systems.
	SourceKey string `json:"source_key"`
}

// HasTimedRange reports whether the task carries a concrete start/end
// time-of-day pair (an all-day range has dates but no time-of-day).
func (t *TaskRecord) HasTimedRange() bool {
	return t.StartTime != nil && t.EndTime != nil && !t.AllDay
}

// HighPriority reports whether the task is high or urgent priority.
func (t *TaskRecord) HighPriority() bool {
	return t.Priority == PriorityHigh || t.Priority == PriorityUrgent
}

// MultiAssignee reports whether more than one individual, or a team, is
// assigned.
func (t *TaskRecord) MultiAssignee() bool {
	return t.AssigneeCount > 1 || t.TeamAssigned
}

// Validate checks the fields the engine cannot sync without.
func (t *TaskRecord) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task missing id")
	}
	if t.Title == "" {
		return fmt.Errorf("task %s missing title", t.ID)
	}
	if t.SourceKey == "" {
		return fmt.Errorf("task %s missing source_key", t.ID)
	}
	if t.Priority != "" {
		switch t.Priority {
		case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		default:
			return fmt.Errorf("task %s has unknown priority %q", t.ID, t.Priority)
		}
	}
	return nil
}
