// Package scheduler keeps one live cron job per enabled schedule and turns
// fire events into queued executions. It never runs workflows itself: every
// fire creates a pending execution and publishes it to the bus for workers.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/events"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

type Scheduler struct {
	logger    *slog.Logger
	store     persistence.Persistence
	publisher eventbus.EventPublisher

	mu      sync.Mutex
	runners map[string]*cron.Cron    // one runner per IANA timezone
	jobs    map[string]scheduledJob  // schedule id -> live cron entry
	started bool
}

type scheduledJob struct {
	timezone string
	spec     string
	entryID  cron.EntryID
}

func NewScheduler(logger *slog.Logger, store persistence.Persistence, publisher eventbus.EventPublisher) *Scheduler {
	return &Scheduler{
		logger:    logger.With("module", "scheduler"),
		store:     store,
		publisher: publisher,
		runners:   make(map[string]*cron.Cron),
		jobs:      make(map[string]scheduledJob),
	}
}

// Start loads every runnable schedule of an active workflow and registers
// its cron job.
func (s *Scheduler) Start(ctx context.Context) error {
	schedules, err := s.store.Schedules(ctx)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}

	registered := 0

	for _, schedule := range schedules {
		if !schedule.Runnable() {
			continue
		}

		workflow, err := s.store.WorkflowByID(ctx, schedule.WorkflowID)
		if err != nil {
			s.logger.Warn("skipping schedule with missing workflow",
				"schedule_id", schedule.ID, "workflow_id", schedule.WorkflowID, "error", err)

			continue
		}

		if !workflow.IsExecutable() {
			continue
		}

		if err := s.Add(schedule); err != nil {
			s.logger.Error("failed to register schedule", "schedule_id", schedule.ID, "error", err)

			continue
		}

		registered++
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	s.logger.Info("scheduler started", "schedules", registered)

	return nil
}

// Add registers a live cron job for the schedule, replacing any existing job
// with the same id.
func (s *Scheduler) Add(schedule *models.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(schedule.ID)

	timezone := schedule.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	runner, err := s.runnerLocked(timezone)
	if err != nil {
		return err
	}

	scheduleID := schedule.ID

	entryID, err := runner.AddFunc(schedule.CronExpression, func() {
		s.fire(scheduleID)
	})
	if err != nil {
		return err
	}

	s.jobs[scheduleID] = scheduledJob{timezone: timezone, spec: schedule.CronExpression, entryID: entryID}

	s.logger.Info("schedule registered",
		"schedule_id", schedule.ID,
		"workflow_id", schedule.WorkflowID,
		"cron", schedule.CronExpression,
		"timezone", timezone,
	)

	return nil
}

// Update atomically replaces the live job for the schedule. Disabled
// schedules are simply removed.
func (s *Scheduler) Update(schedule *models.Schedule) error {
	if !schedule.Runnable() {
		s.Remove(schedule.ID)

		return nil
	}

	return s.Add(schedule)
}

// Remove unregisters the schedule's live job if it has one.
func (s *Scheduler) Remove(scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(scheduleID)
}

func (s *Scheduler) removeLocked(scheduleID string) {
	job, exists := s.jobs[scheduleID]
	if !exists {
		return
	}

	if runner, ok := s.runners[job.timezone]; ok {
		runner.Remove(job.entryID)
	}

	delete(s.jobs, scheduleID)
}

// HasJob reports whether a live cron job exists for the schedule.
func (s *Scheduler) HasJob(scheduleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.jobs[scheduleID]

	return exists
}

func (s *Scheduler) runnerLocked(timezone string) (*cron.Cron, error) {
	if runner, exists := s.runners[timezone]; exists {
		return runner, nil
	}

	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}

	runner := cron.New(cron.WithLocation(location))
	runner.Start()
	s.runners[timezone] = runner

	return runner, nil
}

// fire handles one cron tick. The schedule and workflow are reloaded so a
// disable or archive that happened after registration is honored.
func (s *Scheduler) fire(scheduleID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := s.logger.With("schedule_id", scheduleID)

	schedule, err := s.store.ScheduleByID(ctx, scheduleID)
	if err != nil {
		logger.Error("schedule vanished, removing job", "error", err)
		s.Remove(scheduleID)

		return
	}

	if !schedule.Runnable() {
		logger.Info("schedule no longer runnable, removing job")
		s.Remove(scheduleID)

		return
	}

	workflow, err := s.store.WorkflowByID(ctx, schedule.WorkflowID)
	if err != nil || !workflow.IsExecutable() {
		logger.Warn("workflow not executable, skipping fire", "workflow_id", schedule.WorkflowID)

		return
	}

	if err := s.enqueue(ctx, workflow, schedule); err != nil {
		s.recordFailure(ctx, schedule, err)

		return
	}

	s.recordSuccess(ctx, schedule)
}

// enqueue creates the pending execution and hands it to the bus. The worker
// picks it up from there; the scheduler never executes inline.
func (s *Scheduler) enqueue(ctx context.Context, workflow *models.Workflow, schedule *models.Schedule) error {
	now := time.Now().UTC()

	execution := &models.Execution{
		ID:            uuid.New().String(),
		WorkflowID:    workflow.ID,
		Status:        models.ExecutionStatusPending,
		TriggerSource: models.TriggerTypeSchedule,
		TriggerPayload: map[string]any{
			"schedule_id": schedule.ID,
			"fired_at":    now.Format(time.RFC3339),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.SaveExecution(ctx, execution); err != nil {
		return fmt.Errorf("create execution: %w", err)
	}

	event := events.ExecutionQueued{
		BaseEvent:     events.NewBaseEvent(events.ExecutionQueuedEvent, workflow.ID),
		ExecutionID:   execution.ID,
		TriggerSource: string(models.TriggerTypeSchedule),
	}

	if err := s.publisher.Publish(ctx, workflow.ID, event); err != nil {
		// The execution already exists; without a queued event no worker
		// will ever claim it, so it must settle as failed here.
		finished := time.Now().UTC()
		execution.Status = models.ExecutionStatusFailed
		execution.ErrorMessage = fmt.Sprintf("enqueue failed: %v", err)
		execution.FinishedAt = &finished
		execution.UpdatedAt = finished

		if saveErr := s.store.SaveExecution(ctx, execution); saveErr != nil {
			s.logger.Error("failed to mark execution failed after enqueue error",
				"execution_id", execution.ID, "error", saveErr)
		}

		return fmt.Errorf("publish queued event: %w", err)
	}

	execution.Status = models.ExecutionStatusQueued
	execution.UpdatedAt = time.Now().UTC()

	if err := s.store.SaveExecution(ctx, execution); err != nil {
		return fmt.Errorf("mark execution queued: %w", err)
	}

	return nil
}

func (s *Scheduler) recordSuccess(ctx context.Context, schedule *models.Schedule) {
	now := time.Now().UTC()
	schedule.LastRunAt = &now
	schedule.TotalRuns++
	schedule.SuccessRuns++
	schedule.ConsecutiveFailures = 0

	if err := schedule.UpdateNextRunAt(now); err != nil {
		s.logger.Error("failed to compute next run", "schedule_id", schedule.ID, "error", err)
	}

	if err := s.store.SaveSchedule(ctx, schedule); err != nil {
		s.logger.Error("failed to persist schedule run", "schedule_id", schedule.ID, "error", err)
	}
}

// recordFailure counts an enqueue failure and auto-disables the schedule once
// the consecutive-failure threshold is hit. Auto-disable requires an operator
// to re-enable explicitly.
func (s *Scheduler) recordFailure(ctx context.Context, schedule *models.Schedule, cause error) {
	now := time.Now().UTC()
	schedule.LastRunAt = &now
	schedule.TotalRuns++
	schedule.FailedRuns++
	schedule.ConsecutiveFailures++
	schedule.UpdatedAt = now

	logger := s.logger.With("schedule_id", schedule.ID, "consecutive_failures", schedule.ConsecutiveFailures)
	logger.Error("schedule fire failed", "error", cause)

	if schedule.ConsecutiveFailures >= schedule.FailureThreshold() {
		schedule.AutoDisabled = true
		schedule.Enabled = false
		s.Remove(schedule.ID)
		logger.Error("schedule auto-disabled after repeated failures", "threshold", schedule.FailureThreshold())
	}

	if err := s.store.SaveSchedule(ctx, schedule); err != nil {
		logger.Error("failed to persist schedule failure", "error", err)
	}
}

// Sync reconciles live jobs against persistence. Schedules created or changed
// through the API in another process are picked up here; jobs whose schedule
// vanished or stopped being runnable are removed.
func (s *Scheduler) Sync(ctx context.Context) error {
	schedules, err := s.store.Schedules(ctx)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}

	wanted := make(map[string]bool, len(schedules))

	for _, schedule := range schedules {
		if !schedule.Runnable() {
			continue
		}

		workflow, err := s.store.WorkflowByID(ctx, schedule.WorkflowID)
		if err != nil || !workflow.IsExecutable() {
			continue
		}

		wanted[schedule.ID] = true

		s.mu.Lock()
		job, exists := s.jobs[schedule.ID]
		s.mu.Unlock()

		timezone := schedule.Timezone
		if timezone == "" {
			timezone = "UTC"
		}

		if exists && job.spec == schedule.CronExpression && job.timezone == timezone {
			continue
		}

		if err := s.Add(schedule); err != nil {
			s.logger.Error("failed to sync schedule", "schedule_id", schedule.ID, "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for scheduleID := range s.jobs {
		if !wanted[scheduleID] {
			s.removeLocked(scheduleID)
		}
	}

	return nil
}

// Stop halts every cron runner and waits for in-flight fire callbacks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	runners := make([]*cron.Cron, 0, len(s.runners))

	for _, runner := range s.runners {
		runners = append(runners, runner)
	}
	s.mu.Unlock()

	for _, runner := range runners {
		<-runner.Stop().Done()
	}

	s.logger.Info("scheduler stopped")
}
