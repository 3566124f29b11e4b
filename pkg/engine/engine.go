// Package engine decides where a task is mirrored and performs the
// mirroring against the two external services, aggregating partial
// failures instead of aborting on the first one.
package engine

import (
	"context"
	"time"

	"github.com/harrisonrobin/taskmirror/pkg/model"
)

// Adapter is the shared contract both external service adapters implement.
// The orchestrator never imports the Google SDK directly.
type Adapter interface {
	Upsert(ctx context.Context, creds model.Credentials, workspace string, task *model.TaskRecord) (*model.UpsertResult, error)
	Delete(ctx context.Context, creds model.Credentials, workspace, externalID string) error
	IncrementalSync(ctx context.Context, creds model.Credentials, workspace string, lastSync time.Time) (*model.ChangeSet, error)
	HealthCheck(ctx context.Context, creds model.Credentials) model.Health
}

// Service names used in per-service results and errors.
const (
	ServiceCalendar = "calendar"
	ServiceTasks    = "tasks"
)

// ServiceError records one service's failure inside an otherwise
// independent operation.
type ServiceError struct {
	Service string `json:"service"`
	Message string `json:"message"`
}

// serviceResult captures one adapter call's outcome as a value. Partial
// failure aggregation merges these; it never catches stray panics.
type serviceResult struct {
	service string
	ref     *model.UpsertResult
	err     error
}
