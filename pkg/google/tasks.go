package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"github.com/harrisonrobin/taskmirror/pkg/cache"
	"github.com/harrisonrobin/taskmirror/pkg/model"
	"github.com/harrisonrobin/taskmirror/pkg/retry"
)

// TasksAdapter mirrors tasks into a per-workspace task list. The Tasks
// service has no sync-token concept; incremental fetches use an updatedMin
// timestamp watermark instead.
type TasksAdapter struct {
	logger          zerolog.Logger
	exec            *retry.Executor
	clients         *cache.Cache[*tasks.Service]
	containers      *cache.Cache[string]
	cursors         *cache.Cache[string]
	containerPrefix string
	clientOpts      []option.ClientOption

	now func() time.Time
}

// TasksOptions tunes a TasksAdapter.
type TasksOptions struct {
	ContainerPrefix string
	Retry           retry.Config
	ClientOptions   []option.ClientOption
}

// NewTasksAdapter builds an adapter with its own caches.
func NewTasksAdapter(opts TasksOptions, logger zerolog.Logger) *TasksAdapter {
	prefix := opts.ContainerPrefix
	if prefix == "" {
		prefix = "TaskMirror"
	}
	logger = logger.With().Str("component", "tasks").Logger()
	return &TasksAdapter{
		logger:          logger,
		exec:            retry.NewExecutor(opts.Retry, logger),
		clients:         cache.New[*tasks.Service](clientTTL),
		containers:      cache.New[string](containerTTL),
		cursors:         cache.New[string](0),
		containerPrefix: prefix,
		clientOpts:      opts.ClientOptions,
		now:             time.Now,
	}
}

func (a *TasksAdapter) service(ctx context.Context, creds model.Credentials) (*tasks.Service, error) {
	if srv, ok := a.clients.Get(creds.UserID); ok {
		return srv, nil
	}
	srv, err := newTasksService(ctx, creds, a.clientOpts)
	if err != nil {
		return nil, err
	}
	a.clients.Set(creds.UserID, srv)
	return srv, nil
}

// ContainerName returns the deterministic task-list title for a workspace.
func (a *TasksAdapter) ContainerName(workspace string) string {
	return fmt.Sprintf("%s: %s", a.containerPrefix, workspace)
}

func (a *TasksAdapter) container(ctx context.Context, srv *tasks.Service, workspace string) (string, error) {
	if id, ok := a.containers.Get(workspace); ok {
		return id, nil
	}

	name := a.ContainerName(workspace)
	var containerID string

	err := a.exec.Execute(ctx, "tasklists.list", func() error {
		pageToken := ""
		for {
			call := srv.Tasklists.List().MaxResults(100)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			list, err := call.Context(ctx).Do()
			if err != nil {
				return err
			}
			for _, item := range list.Items {
				if item.Title == name {
					containerID = item.Id
					return nil
				}
			}
			if list.NextPageToken == "" {
				return nil
			}
			pageToken = list.NextPageToken
		}
	})
	if err != nil {
		return "", fmt.Errorf("unable to list task lists for workspace %q: %w", workspace, err)
	}

	if containerID == "" {
		err = a.exec.Execute(ctx, "tasklists.create", func() error {
			created, err := srv.Tasklists.Insert(&tasks.TaskList{Title: name}).Context(ctx).Do()
			if err != nil {
				return err
			}
			containerID = created.Id
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("unable to create task list %q: %w", name, err)
		}
		a.logger.Info().Str("workspace", workspace).Str("tasklist_id", containerID).Msg("created workspace task list")
	}

	a.containers.Set(workspace, containerID)
	return containerID, nil
}

// Upsert mirrors a task into the workspace task list. The service offers
// no search and no custom properties, so the adapter scans the list for an
// item whose notes carry a marker block with the same source key.
func (a *TasksAdapter) Upsert(ctx context.Context, creds model.Credentials, workspace string, task *model.TaskRecord) (*model.UpsertResult, error) {
	srv, err := a.service(ctx, creds)
	if err != nil {
		return nil, err
	}
	containerID, err := a.container(ctx, srv, workspace)
	if err != nil {
		return nil, err
	}

	// The marker stores the key with delimiter characters stripped, so the
	// lookup must compare against the same normalized form.
	dedupKey := sanitizeKey(task.SourceKey)
	existing, err := a.findBySourceKey(ctx, srv, containerID, dedupKey)
	if err != nil {
		return nil, fmt.Errorf("error searching for task %s: %w", task.SourceKey, err)
	}

	item := a.buildTask(task)

	var saved *tasks.Task
	operation := model.OperationCreated
	if existing != nil {
		operation = model.OperationUpdated
		item.Id = existing.Id
		err = a.exec.Execute(ctx, "tasks.update", func() error {
			updated, err2 := srv.Tasks.Update(containerID, existing.Id, item).Context(ctx).Do()
			if err2 != nil {
				return err2
			}
			saved = updated
			return nil
		})
	} else {
		err = a.exec.Execute(ctx, "tasks.insert", func() error {
			created, err2 := srv.Tasks.Insert(containerID, item).Context(ctx).Do()
			if err2 != nil {
				return err2
			}
			saved = created
			return nil
		})
	}
	if err != nil {
		return nil, fmt.Errorf("error upserting task %s: %w", task.SourceKey, err)
	}

	a.logger.Debug().
		Str("task_id", task.ID).
		Str("google_task_id", saved.Id).
		Str("operation", operation).
		Msg("task upserted")

	return &model.UpsertResult{
		ExternalID:  saved.Id,
		ContainerID: containerID,
		DedupKey:    dedupKey,
		Operation:   operation,
		Link:        saved.SelfLink,
	}, nil
}

// findBySourceKey scans the list for an item carrying the given dedup key,
// which must already be in the marker's normalized form.
func (a *TasksAdapter) findBySourceKey(ctx context.Context, srv *tasks.Service, containerID, sourceKey string) (*tasks.Task, error) {
	var found *tasks.Task
	err := a.exec.Execute(ctx, "tasks.search", func() error {
		pageToken := ""
		for {
			call := srv.Tasks.List(containerID).
				ShowCompleted(true).
				ShowHidden(true).
				MaxResults(100)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			page, err := call.Context(ctx).Do()
			if err != nil {
				return err
			}
			for _, item := range page.Items {
				if marker, ok := ParseMarker(item.Notes); ok && marker.SourceKey == sourceKey {
					found = item
					return nil
				}
			}
			if page.NextPageToken == "" {
				return nil
			}
			pageToken = page.NextPageToken
		}
	})
	return found, err
}

// Delete removes a task; an already-absent item is success.
func (a *TasksAdapter) Delete(ctx context.Context, creds model.Credentials, workspace, externalID string) error {
	srv, err := a.service(ctx, creds)
	if err != nil {
		return err
	}
	containerID, err := a.container(ctx, srv, workspace)
	if err != nil {
		return err
	}

	err = a.exec.Execute(ctx, "tasks.delete", func() error {
		return srv.Tasks.Delete(containerID, externalID).Context(ctx).Do()
	})
	if isGone(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error deleting task %s: %w", externalID, err)
	}
	return nil
}

// IncrementalSync fetches tasks changed since the stored watermark (or
// lastSync when no watermark exists). A watermark the service rejects is
// discarded and the fetch re-runs once without it.
func (a *TasksAdapter) IncrementalSync(ctx context.Context, creds model.Credentials, workspace string, lastSync time.Time) (*model.ChangeSet, error) {
	srv, err := a.service(ctx, creds)
	if err != nil {
		return nil, err
	}
	containerID, err := a.container(ctx, srv, workspace)
	if err != nil {
		return nil, err
	}

	cursorKey := creds.UserID + "/" + workspace
	watermark, _ := a.cursors.Get(cursorKey)
	if watermark == "" && !lastSync.IsZero() {
		watermark = lastSync.UTC().Format(time.RFC3339)
	}

	// The watermark for the next pass is taken before the fetch so changes
	// landing mid-fetch are picked up again rather than missed.
	nextCursor := a.now().UTC().Format(time.RFC3339)

	set, err := a.fetchChanges(ctx, srv, containerID, watermark)
	if err != nil {
		if !isBadWatermark(err) {
			return nil, err
		}
		a.logger.Warn().Str("workspace", workspace).Msg("watermark rejected, falling back to full resync")
		a.cursors.Delete(cursorKey)
		set, err = a.fetchChanges(ctx, srv, containerID, "")
		if err != nil {
			return nil, err
		}
		set.FullResync = true
	}

	set.NewCursor = nextCursor
	a.cursors.Set(cursorKey, nextCursor)
	return set, nil
}

func (a *TasksAdapter) fetchChanges(ctx context.Context, srv *tasks.Service, containerID, watermark string) (*model.ChangeSet, error) {
	set := &model.ChangeSet{FullResync: watermark == ""}

	err := a.exec.Execute(ctx, "tasks.changes", func() error {
		set.Items = nil
		pageToken := ""
		for {
			call := srv.Tasks.List(containerID).
				ShowCompleted(true).
				ShowHidden(true).
				ShowDeleted(true).
				MaxResults(100)
			if watermark != "" {
				call = call.UpdatedMin(watermark)
			}
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			page, err := call.Context(ctx).Do()
			if err != nil {
				return err
			}
			for _, item := range page.Items {
				marker, ok := ParseMarker(item.Notes)
				if !ok {
					// Manually-created item with no provenance.
					continue
				}
				changed := model.ChangedItem{
					ExternalID: item.Id,
					DedupKey:   marker.SourceKey,
					Title:      item.Title,
					Deleted:    item.Deleted,
				}
				if item.Updated != "" {
					if ts, perr := time.Parse(time.RFC3339, item.Updated); perr == nil {
						changed.UpdatedAt = ts
					}
				}
				set.Items = append(set.Items, changed)
			}
			if page.NextPageToken == "" {
				return nil
			}
			pageToken = page.NextPageToken
		}
	})
	if err != nil {
		return nil, err
	}

	set.ChangeCount = len(set.Items)
	return set, nil
}

// HealthCheck performs a minimal authenticated read; failures are reported,
// never returned.
func (a *TasksAdapter) HealthCheck(ctx context.Context, creds model.Credentials) model.Health {
	checkedAt := a.now()
	srv, err := a.service(ctx, creds)
	if err != nil {
		return model.Health{Status: model.StatusUnhealthy, Detail: err.Error(), CheckedAt: checkedAt}
	}
	if _, err := srv.Tasklists.List().MaxResults(1).Context(ctx).Do(); err != nil {
		return model.Health{Status: model.StatusUnhealthy, Detail: err.Error(), CheckedAt: checkedAt}
	}
	return model.Health{Status: model.StatusHealthy, CheckedAt: checkedAt}
}

// buildTask maps a TaskRecord onto a Tasks-service item. Due dates must be
// full RFC 3339 timestamps; bare dates are rejected upstream. Structured
// metadata rides in the notes marker block.
func (a *TasksAdapter) buildTask(task *model.TaskRecord) *tasks.Task {
	item := &tasks.Task{
		Title:  task.Title,
		Status: "needsAction",
		Notes:  AppendMarker(describeTask(task), task),
	}

	switch {
	case task.DueDate != nil:
		item.Due = task.DueDate.UTC().Format(time.RFC3339)
	case task.EndTime != nil:
		item.Due = task.EndTime.UTC().Format(time.RFC3339)
	case task.StartTime != nil:
		item.Due = task.StartTime.UTC().Format(time.RFC3339)
	}

	return item
}

// isBadWatermark reports whether the service rejected the updatedMin value.
func isBadWatermark(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 400
	}
	return false
}
