package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harrisonrobin/taskmirror/pkg/model"
	"github.com/harrisonrobin/taskmirror/pkg/strategy"
)

const (
	// DefaultChunkSize bounds how many tasks a bulk sync runs in parallel.
	DefaultChunkSize = 3
	// DefaultChunkPause is the courtesy pause between bulk chunks, on top
	// of the per-call backoff the retry executor already provides.
	DefaultChunkPause = 500 * time.Millisecond
)

// Options tunes an Orchestrator.
type Options struct {
	ChunkSize  int
	ChunkPause time.Duration
}

// Orchestrator is the engine façade: it classifies tasks, drives the two
// adapters, aggregates partial failures, and keeps the operation ledger.
type Orchestrator struct {
	calendar Adapter
	tasks    Adapter
	logger   zerolog.Logger

	chunkSize  int
	chunkPause time.Duration

	ledger ledger

	// seams for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
	newID func() string
}

// NewOrchestrator wires the two adapters into an orchestrator.
func NewOrchestrator(calendar, tasks Adapter, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkPause <= 0 {
		opts.ChunkPause = DefaultChunkPause
	}
	return &Orchestrator{
		calendar:   calendar,
		tasks:      tasks,
		logger:     logger.With().Str("component", "orchestrator").Logger(),
		chunkSize:  opts.ChunkSize,
		chunkPause: opts.ChunkPause,
		now:        time.Now,
		sleep:      sleepCtx,
		newID:      uuid.NewString,
	}
}

// SyncTask classifies the task (unless forced overrides the classifier)
// and mirrors it to the selected service(s). With strategy "both" the two
// adapter calls run concurrently and fail independently: the operation is
// marked failed only when every attempted service fails. The resulting
// operation is appended to the ledger regardless of outcome.
func (o *Orchestrator) SyncTask(ctx context.Context, creds model.Credentials, task *model.TaskRecord, workspace string, forced model.SyncStrategy) SyncOperation {
	op := SyncOperation{
		ID:        o.newID(),
		TaskID:    task.ID,
		StartTime: o.now(),
	}

	if err := task.Validate(); err != nil {
		op.Strategy = model.StrategyNone
		op.Errors = append(op.Errors, ServiceError{Service: "classification", Message: err.Error()})
		op.EndTime = o.now()
		o.ledger.appendOperation(op)
		return op
	}

	syncStrategy := forced
	if !syncStrategy.Valid() {
		syncStrategy = strategy.Classify(task)
	}
	op.Strategy = syncStrategy

	results := o.dispatch(ctx, creds, task, workspace, syncStrategy)

	attempted := 0
	failed := 0
	for _, res := range results {
		attempted++
		if res.err != nil {
			failed++
			op.Errors = append(op.Errors, ServiceError{Service: res.service, Message: res.err.Error()})
			continue
		}
		switch res.service {
		case ServiceCalendar:
			op.Calendar = res.ref
		case ServiceTasks:
			op.Tasks = res.ref
		}
	}

	// Partial success still counts: only a full wipeout fails the task.
	op.Success = attempted == 0 || failed < attempted
	op.EndTime = o.now()

	o.logger.Info().
		Str("task_id", task.ID).
		Str("strategy", string(syncStrategy)).
		Bool("success", op.Success).
		Int("service_errors", failed).
		Msg("task synced")

	o.ledger.appendOperation(op)
	return op
}

// dispatch fans the task out to the adapters the strategy selects, capturing
// each outcome as a value.
func (o *Orchestrator) dispatch(ctx context.Context, creds model.Credentials, task *model.TaskRecord, workspace string, syncStrategy model.SyncStrategy) []serviceResult {
	type target struct {
		service string
		adapter Adapter
	}

	var targets []target
	switch syncStrategy {
	case model.StrategyCalendarOnly:
		targets = []target{{ServiceCalendar, o.calendar}}
	case model.StrategyTasksOnly:
		targets = []target{{ServiceTasks, o.tasks}}
	case model.StrategyBoth:
		targets = []target{{ServiceCalendar, o.calendar}, {ServiceTasks, o.tasks}}
	case model.StrategyNone:
		return nil
	}

	results := make([]serviceResult, len(targets))
	var wg sync.WaitGroup
	for i, tgt := range targets {
		wg.Add(1)
		go func(i int, tgt target) {
			defer wg.Done()
			ref, err := tgt.adapter.Upsert(ctx, creds, workspace, task)
			results[i] = serviceResult{service: tgt.service, ref: ref, err: err}
		}(i, tgt)
	}
	wg.Wait()
	return results
}

// BulkResult aggregates a SyncTasks run. Total always equals
// Successful + Failed.
type BulkResult struct {
	Total      int             `json:"total"`
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
	Errors     []ServiceError  `json:"errors,omitempty"`
	Operations []SyncOperation `json:"operations"`
}

// SyncTasks mirrors a batch in fixed-size chunks to bound parallel load on
// the external services, pausing briefly between chunks (not after the
// last). Per-task failures are recorded without aborting the batch.
func (o *Orchestrator) SyncTasks(ctx context.Context, creds model.Credentials, taskList []*model.TaskRecord, workspace string) BulkResult {
	result := BulkResult{Total: len(taskList)}

	for start := 0; start < len(taskList); start += o.chunkSize {
		end := start + o.chunkSize
		if end > len(taskList) {
			end = len(taskList)
		}
		chunk := taskList[start:end]

		ops := make([]SyncOperation, len(chunk))
		var wg sync.WaitGroup
		for i, task := range chunk {
			wg.Add(1)
			go func(i int, task *model.TaskRecord) {
				defer wg.Done()
				ops[i] = o.SyncTask(ctx, creds, task, workspace, "")
			}(i, task)
		}
		wg.Wait()

		for _, op := range ops {
			result.Operations = append(result.Operations, op)
			if op.Success {
				result.Successful++
			} else {
				result.Failed++
			}
			result.Errors = append(result.Errors, op.Errors...)
		}

		if end < len(taskList) {
			o.sleep(ctx, o.chunkPause)
		}
	}

	o.logger.Info().
		Int("total", result.Total).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("bulk sync finished")

	return result
}

// IncrementalReport is the outcome of one incremental pass across both
// services.
type IncrementalReport struct {
	Calendar  *model.ChangeSet `json:"calendar,omitempty"`
	Tasks     *model.ChangeSet `json:"tasks,omitempty"`
	Conflicts []ConflictRecord `json:"conflicts,omitempty"`
	Errors    []ServiceError   `json:"errors,omitempty"`
}

// IncrementalSync fetches both services' changes concurrently, with the
// same failure isolation as SyncTask, then cross-references the change
// sets for conflicts. Detected conflicts are also appended to the
// conflict log.
func (o *Orchestrator) IncrementalSync(ctx context.Context, creds model.Credentials, workspace string, lastSync time.Time) IncrementalReport {
	var report IncrementalReport
	var calErr, taskErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		report.Calendar, calErr = o.calendar.IncrementalSync(ctx, creds, workspace, lastSync)
	}()
	go func() {
		defer wg.Done()
		report.Tasks, taskErr = o.tasks.IncrementalSync(ctx, creds, workspace, lastSync)
	}()
	wg.Wait()

	if calErr != nil {
		report.Errors = append(report.Errors, ServiceError{Service: ServiceCalendar, Message: calErr.Error()})
	}
	if taskErr != nil {
		report.Errors = append(report.Errors, ServiceError{Service: ServiceTasks, Message: taskErr.Error()})
	}

	if report.Calendar != nil && report.Tasks != nil {
		report.Conflicts = DetectConflicts(report.Calendar.Items, report.Tasks.Items, o.now())
		o.ledger.appendConflicts(report.Conflicts)
	}

	o.logger.Info().
		Str("workspace", workspace).
		Int("conflicts", len(report.Conflicts)).
		Int("errors", len(report.Errors)).
		Msg("incremental sync finished")

	return report
}

// RemoveTask deletes the task's mirrored items from both services. Absence
// on either side is success.
func (o *Orchestrator) RemoveTask(ctx context.Context, creds model.Credentials, workspace, calendarID, googleTaskID string) []ServiceError {
	var errs []ServiceError
	var mu sync.Mutex
	var wg sync.WaitGroup

	remove := func(service string, adapter Adapter, externalID string) {
		defer wg.Done()
		if externalID == "" {
			return
		}
		if err := adapter.Delete(ctx, creds, workspace, externalID); err != nil {
			mu.Lock()
			errs = append(errs, ServiceError{Service: service, Message: err.Error()})
			mu.Unlock()
		}
	}

	wg.Add(2)
	go remove(ServiceCalendar, o.calendar, calendarID)
	go remove(ServiceTasks, o.tasks, googleTaskID)
	wg.Wait()

	return errs
}

// HealthReport aggregates both adapters' health.
type HealthReport struct {
	Overall  string       `json:"overall"`
	Calendar model.Health `json:"calendar"`
	Tasks    model.Health `json:"tasks"`
}

// HealthCheck reports healthy only when both adapters do; any single
// failure degrades the overall status.
func (o *Orchestrator) HealthCheck(ctx context.Context, creds model.Credentials) HealthReport {
	var report HealthReport
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		report.Calendar = o.calendar.HealthCheck(ctx, creds)
	}()
	go func() {
		defer wg.Done()
		report.Tasks = o.tasks.HealthCheck(ctx, creds)
	}()
	wg.Wait()

	if report.Calendar.Healthy() && report.Tasks.Healthy() {
		report.Overall = model.StatusHealthy
	} else {
		report.Overall = model.StatusDegraded
	}
	return report
}

// History returns a copy of the operation ledger.
func (o *Orchestrator) History() []SyncOperation {
	return o.ledger.snapshotOperations()
}

// Conflicts returns a copy of the conflict log.
func (o *Orchestrator) Conflicts() []ConflictRecord {
	return o.ledger.snapshotConflicts()
}

// ClearOldSyncHistory drops ledger and conflict entries older than keepDays
// and reports how many were removed. Called out-of-band, never
// automatically.
func (o *Orchestrator) ClearOldSyncHistory(keepDays int) int {
	cutoff := o.now().AddDate(0, 0, -keepDays)
	removed := o.ledger.trim(cutoff)
	if removed > 0 {
		o.logger.Info().Int("removed", removed).Int("keep_days", keepDays).Msg("trimmed sync history")
	}
	return removed
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
