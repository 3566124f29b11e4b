package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/harrisonrobin/taskmirror/pkg/cache"
	"github.com/harrisonrobin/taskmirror/pkg/model"
	"github.com/harrisonrobin/taskmirror/pkg/retry"
)

const (
	// sourceKeyProperty is the private extended property under which the
	// dedup key is stored on every mirrored event.
	sourceKeyProperty = "taskmirror_source_key"
	// syncVersionProperty records the marker schema version on the event.
	syncVersionProperty = "taskmirror_sync_version"

	clientTTL    = time.Hour
	containerTTL = 24 * time.Hour

	// defaultLookback bounds a full (cursor-less) resync.
	defaultLookback = 30 * 24 * time.Hour
)

// CalendarAdapter mirrors tasks into a per-workspace secondary calendar.
type CalendarAdapter struct {
	logger          zerolog.Logger
	exec            *retry.Executor
	clients         *cache.Cache[*calendar.Service]
	containers      *cache.Cache[string]
	cursors         *cache.Cache[string]
	containerPrefix string
	clientOpts      []option.ClientOption

	now func() time.Time
}

// CalendarOptions tunes a CalendarAdapter.
type CalendarOptions struct {
	// ContainerPrefix names the per-workspace calendars; defaults to
	// "TaskMirror".
	ContainerPrefix string
	// Retry overrides the backoff defaults.
	Retry retry.Config
	// ClientOptions is appended to every service construction; tests use
	// it to point the adapter at a fake endpoint.
	ClientOptions []option.ClientOption
}

// NewCalendarAdapter builds an adapter with its own caches.
func NewCalendarAdapter(opts CalendarOptions, logger zerolog.Logger) *CalendarAdapter {
	prefix := opts.ContainerPrefix
	if prefix == "" {
		prefix = "TaskMirror"
	}
	logger = logger.With().Str("component", "calendar").Logger()
	return &CalendarAdapter{
		logger:          logger,
		exec:            retry.NewExecutor(opts.Retry, logger),
		clients:         cache.New[*calendar.Service](clientTTL),
		containers:      cache.New[string](containerTTL),
		cursors:         cache.New[string](0),
		containerPrefix: prefix,
		clientOpts:      opts.ClientOptions,
		now:             time.Now,
	}
}

// service returns a cached authenticated client for the user, building one
// on a miss.
func (a *CalendarAdapter) service(ctx context.Context, creds model.Credentials) (*calendar.Service, error) {
	if srv, ok := a.clients.Get(creds.UserID); ok {
		return srv, nil
	}
	srv, err := newCalendarService(ctx, creds, a.clientOpts)
	if err != nil {
		return nil, err
	}
	a.clients.Set(creds.UserID, srv)
	return srv, nil
}

// ContainerName returns the deterministic calendar summary for a workspace.
func (a *CalendarAdapter) ContainerName(workspace string) string {
	return fmt.Sprintf("%s: %s", a.containerPrefix, workspace)
}

// container finds or lazily creates the workspace's secondary calendar and
// returns its ID. Container identity never changes once created, so hits
// are served from a long-TTL cache.
func (a *CalendarAdapter) container(ctx context.Context, srv *calendar.Service, workspace string) (string, error) {
	if id, ok := a.containers.Get(workspace); ok {
		return id, nil
	}

	name := a.ContainerName(workspace)
	var containerID string

	err := a.exec.Execute(ctx, "calendar.list", func() error {
		pageToken := ""
		for {
			call := srv.CalendarList.List()
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			list, err := call.Context(ctx).Do()
			if err != nil {
				return err
			}
			for _, item := range list.Items {
				if item.Summary == name {
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
		return "", fmt.Errorf("unable to list calendars for workspace %q: %w", workspace, err)
	}

	if containerID == "" {
		err = a.exec.Execute(ctx, "calendar.create", func() error {
			created, err := srv.Calendars.Insert(&calendar.Calendar{Summary: name}).Context(ctx).Do()
			if err != nil {
				return err
			}
			containerID = created.Id
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("unable to create calendar %q: %w", name, err)
		}
		a.logger.Info().Str("workspace", workspace).Str("calendar_id", containerID).Msg("created workspace calendar")
	}

	a.containers.Set(workspace, containerID)
	return containerID, nil
}

// Upsert mirrors a task into the workspace calendar. There is no atomic
// upsert in the Calendar API: the adapter searches for an event whose
// dedup property matches the task's source key and updates it in place,
// otherwise it inserts a fresh one.
func (a *CalendarAdapter) Upsert(ctx context.Context, creds model.Credentials, workspace string, task *model.TaskRecord) (*model.UpsertResult, error) {
	srv, err := a.service(ctx, creds)
	if err != nil {
		return nil, err
	}
	containerID, err := a.container(ctx, srv, workspace)
	if err != nil {
		return nil, err
	}

	event := a.buildEvent(task)
	dedupKey := sanitizeKey(task.SourceKey)

	var existing *calendar.Event
	err = a.exec.Execute(ctx, "events.search", func() error {
		list, err := srv.Events.List(containerID).
			PrivateExtendedProperty(fmt.Sprintf("%s=%s", sourceKeyProperty, dedupKey)).
			MaxResults(2).
			Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(list.Items) > 0 {
			existing = list.Items[0]
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error searching for event %s: %w", task.SourceKey, err)
	}

	var saved *calendar.Event
	operation := model.OperationCreated
	if existing != nil {
		operation = model.OperationUpdated
		err = a.exec.Execute(ctx, "events.update", func() error {
			updated, err2 := srv.Events.Update(containerID, existing.Id, event).Context(ctx).Do()
			if err2 != nil {
				return err2
			}
			saved = updated
			return nil
		})
	} else {
		err = a.exec.Execute(ctx, "events.insert", func() error {
			created, err2 := srv.Events.Insert(containerID, event).Context(ctx).Do()
			if err2 != nil {
				return err2
			}
			saved = created
			return nil
		})
	}
	if err != nil {
		return nil, fmt.Errorf("error upserting event %s: %w", task.SourceKey, err)
	}

	a.logger.Debug().
		Str("task_id", task.ID).
		Str("event_id", saved.Id).
		Str("operation", operation).
		Msg("event upserted")

	return &model.UpsertResult{
		ExternalID:  saved.Id,
		ContainerID: containerID,
		DedupKey:    dedupKey,
		Operation:   operation,
		Link:        saved.HtmlLink,
	}, nil
}

// Delete removes an event. A 404 or 410 means the desired end state,
// absence, is already achieved and is treated as success.
func (a *CalendarAdapter) Delete(ctx context.Context, creds model.Credentials, workspace, externalID string) error {
	srv, err := a.service(ctx, creds)
	if err != nil {
		return err
	}
	containerID, err := a.container(ctx, srv, workspace)
	if err != nil {
		return err
	}

	err = a.exec.Execute(ctx, "events.delete", func() error {
		return srv.Events.Delete(containerID, externalID).Context(ctx).Do()
	})
	if isGone(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error deleting event %s: %w", externalID, err)
	}
	return nil
}

// IncrementalSync fetches events changed since the last pass. It prefers
// the opaque sync token saved from the previous pass and falls back to a
// timeMin lower bound. An expired token (410 Gone) is discarded and the
// fetch re-runs once as a full resync instead of surfacing the error.
func (a *CalendarAdapter) IncrementalSync(ctx context.Context, creds model.Credentials, workspace string, lastSync time.Time) (*model.ChangeSet, error) {
	srv, err := a.service(ctx, creds)
	if err != nil {
		return nil, err
	}
	containerID, err := a.container(ctx, srv, workspace)
	if err != nil {
		return nil, err
	}

	cursorKey := creds.UserID + "/" + workspace
	cursor, _ := a.cursors.Get(cursorKey)

	set, err := a.fetchChanges(ctx, srv, containerID, cursor, lastSync)
	if err != nil {
		if !isGone(err) {
			return nil, err
		}
		// Token invalidated upstream: discard it and resync in full.
		a.logger.Warn().Str("workspace", workspace).Msg("sync token expired, falling back to full resync")
		a.cursors.Delete(cursorKey)
		set, err = a.fetchChanges(ctx, srv, containerID, "", lastSync)
		if err != nil {
			return nil, err
		}
		set.FullResync = true
	}

	if set.NewCursor != "" {
		a.cursors.Set(cursorKey, set.NewCursor)
	}
	return set, nil
}

func (a *CalendarAdapter) fetchChanges(ctx context.Context, srv *calendar.Service, containerID, cursor string, lastSync time.Time) (*model.ChangeSet, error) {
	set := &model.ChangeSet{FullResync: cursor == ""}
	if lastSync.IsZero() {
		lastSync = a.now().Add(-defaultLookback)
	}

	pageToken := ""
	for {
		var page *calendar.Events
		err := a.exec.Execute(ctx, "events.changes", func() error {
			call := srv.Events.List(containerID).ShowDeleted(true)
			if cursor != "" {
				call = call.SyncToken(cursor)
			} else {
				call = call.TimeMin(lastSync.UTC().Format(time.RFC3339))
			}
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			page, err = call.Context(ctx).Do()
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, ev := range page.Items {
			key := eventSourceKey(ev)
			if key == "" {
				// Manually-created item with no provenance.
				continue
			}
			item := model.ChangedItem{
				ExternalID: ev.Id,
				DedupKey:   key,
				Title:      ev.Summary,
				Deleted:    ev.Status == "cancelled",
			}
			if ev.Updated != "" {
				if ts, perr := time.Parse(time.RFC3339, ev.Updated); perr == nil {
					item.UpdatedAt = ts
				}
			}
			set.Items = append(set.Items, item)
		}

		if page.NextPageToken == "" {
			set.NewCursor = page.NextSyncToken
			break
		}
		pageToken = page.NextPageToken
	}

	set.ChangeCount = len(set.Items)
	return set, nil
}

// HealthCheck performs a minimal authenticated read. Failures are reported
// in the result, never returned.
func (a *CalendarAdapter) HealthCheck(ctx context.Context, creds model.Credentials) model.Health {
	checkedAt := a.now()
	srv, err := a.service(ctx, creds)
	if err != nil {
		return model.Health{Status: model.StatusUnhealthy, Detail: err.Error(), CheckedAt: checkedAt}
	}
	if _, err := srv.CalendarList.List().MaxResults(1).Context(ctx).Do(); err != nil {
		return model.Health{Status: model.StatusUnhealthy, Detail: err.Error(), CheckedAt: checkedAt}
	}
	return model.Health{Status: model.StatusHealthy, CheckedAt: checkedAt}
}

// buildEvent maps a task onto a calendar event. Reminders are disabled and
// no attendees are set: a background sync must not trigger outbound email.
func (a *CalendarAdapter) buildEvent(task *model.TaskRecord) *calendar.Event {
	event := &calendar.Event{
		Summary:  task.Title,
		Location: task.Location,
		Reminders: &calendar.EventReminders{
			UseDefault:      false,
			ForceSendFields: []string{"UseDefault"},
		},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				sourceKeyProperty:   sanitizeKey(task.SourceKey),
				syncVersionProperty: "1",
			},
		},
	}

	event.Description = describeTask(task)

	switch {
	case task.HasTimedRange():
		event.Start = &calendar.EventDateTime{DateTime: task.StartTime.UTC().Format(time.RFC3339)}
		event.End = &calendar.EventDateTime{DateTime: task.EndTime.UTC().Format(time.RFC3339)}
	case task.StartTime != nil:
		// All-day: the Calendar service's ranges are end-exclusive, so the
		// event must end the day after the last covered day.
		start := task.StartTime.UTC()
		last := start
		if task.EndTime != nil {
			last = task.EndTime.UTC()
		}
		event.Start = &calendar.EventDateTime{Date: start.Format("2006-01-02")}
		event.End = &calendar.EventDateTime{Date: last.AddDate(0, 0, 1).Format("2006-01-02")}
	case task.DueDate != nil:
		due := task.DueDate.UTC()
		event.Start = &calendar.EventDateTime{Date: due.Format("2006-01-02")}
		event.End = &calendar.EventDateTime{Date: due.AddDate(0, 0, 1).Format("2006-01-02")}
	default:
		// No dates at all: pin an all-day block to today rather than fail.
		today := a.now().UTC()
		event.Start = &calendar.EventDateTime{Date: today.Format("2006-01-02")}
		event.End = &calendar.EventDateTime{Date: today.AddDate(0, 0, 1).Format("2006-01-02")}
	}

	return event
}

// describeTask renders the human-readable event description.
func describeTask(task *model.TaskRecord) string {
	var b strings.Builder
	if len(task.Tags) > 0 {
		for _, tag := range task.Tags {
			fmt.Fprintf(&b, "#%s ", tag)
		}
		b.WriteString("\n\n")
	}
	if task.Priority != "" {
		fmt.Fprintf(&b, "Priority: %s\n", task.Priority)
	}
	if task.DueDate != nil {
		fmt.Fprintf(&b, "Due: %s\n", task.DueDate.UTC().Format(time.RFC3339))
	}
	if task.EstimatedHours > 0 {
		fmt.Fprintf(&b, "Estimate: %.1fh\n", task.EstimatedHours)
	}
	fmt.Fprintf(&b, "Source: %s\n", task.SourceKey)
	return b.String()
}

func eventSourceKey(ev *calendar.Event) string {
	if ev.ExtendedProperties == nil || ev.ExtendedProperties.Private == nil {
		return ""
	}
	return ev.ExtendedProperties.Private[sourceKeyProperty]
}

// isGone reports whether err is a 404/410 from the service, which marks an
// already-absent item or an expired sync token.
func isGone(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 404 || apiErr.Code == 410
	}
	return false
}
