package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/scheduler"
)

// ScheduleService manages schedule definitions and keeps the live scheduler
// in sync with them. Every mutation validates first, persists second and
// touches the live jobs last, so the scheduler never carries a job for a
// schedule persistence does not know.
type ScheduleService struct {
	logger    *slog.Logger
	store     persistence.Persistence
	scheduler *scheduler.Scheduler
}

func NewScheduleService(logger *slog.Logger, store persistence.Persistence, sched *scheduler.Scheduler) *ScheduleService {
	return &ScheduleService{
		logger:    logger.With("module", "schedule_service"),
		store:     store,
		scheduler: sched,
	}
}

// Create validates and persists a new schedule for an existing workflow and
// registers its live job when both schedule and workflow allow it.
func (s *ScheduleService) Create(ctx context.Context, workflowID, cronExpression, timezone string) (*models.Schedule, error) {
	workflow, err := s.store.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	schedule, err := models.NewSchedule(uuid.New().String(), workflow.ID, cronExpression, timezone)
	if err != nil {
		return nil, NewValidationError("schedule", err)
	}

	if err := s.store.SaveSchedule(ctx, schedule); err != nil {
		return nil, err
	}

	if workflow.IsExecutable() {
		if err := s.scheduler.Add(schedule); err != nil {
			return nil, err
		}
	}

	s.logger.InfoContext(ctx, "schedule created",
		"schedule_id", schedule.ID,
		"workflow_id", workflowID,
		"cron", cronExpression,
	)

	return schedule, nil
}

func (s *ScheduleService) Get(ctx context.Context, id string) (*models.Schedule, error) {
	return s.store.ScheduleByID(ctx, id)
}

func (s *ScheduleService) List(ctx context.Context) ([]*models.Schedule, error) {
	return s.store.Schedules(ctx)
}

func (s *ScheduleService) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Schedule, error) {
	if _, err := s.store.WorkflowByID(ctx, workflowID); err != nil {
		return nil, err
	}

	return s.store.SchedulesByWorkflowID(ctx, workflowID)
}

// Update changes a schedule's cron expression, timezone or enabled flag.
// Re-enabling clears the auto-disable state and its failure counter.
func (s *ScheduleService) Update(ctx context.Context, id, cronExpression, timezone string, enabled bool) (*models.Schedule, error) {
	schedule, err := s.store.ScheduleByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if cronExpression != "" {
		schedule.CronExpression = cronExpression
	}

	if timezone != "" {
		schedule.Timezone = timezone
	}

	if enabled && !schedule.Enabled {
		schedule.ConsecutiveFailures = 0
		schedule.AutoDisabled = false
	}

	schedule.Enabled = enabled
	schedule.UpdatedAt = time.Now().UTC()

	if err := schedule.Validate(); err != nil {
		return nil, NewValidationError("schedule", err)
	}

	if schedule.Runnable() {
		if err := schedule.UpdateNextRunAt(time.Now().UTC()); err != nil {
			return nil, NewValidationError("schedule", err)
		}
	}

	if err := s.store.SaveSchedule(ctx, schedule); err != nil {
		return nil, err
	}

	if err := s.scheduler.Update(schedule); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "schedule updated", "schedule_id", id, "enabled", enabled)

	return schedule, nil
}

// Delete removes the schedule and its live job.
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteSchedule(ctx, id); err != nil {
		return err
	}

	s.scheduler.Remove(id)

	s.logger.InfoContext(ctx, "schedule deleted", "schedule_id", id)

	return nil
}
