package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cascadehq/cascade/pkg/engine"
	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/events"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// ExecutionService starts, inspects and stops executions. Starting is always
// queue-based: the service persists a pending record, publishes an
// execution.queued event and marks the record queued. It never runs the
// engine inline.
type ExecutionService struct {
	logger    *slog.Logger
	store     persistence.Persistence
	publisher eventbus.EventPublisher
	canceller *engine.Canceller
}

func NewExecutionService(logger *slog.Logger, store persistence.Persistence, publisher eventbus.EventPublisher, canceller *engine.Canceller) *ExecutionService {
	return &ExecutionService{
		logger:    logger.With("module", "execution_service"),
		store:     store,
		publisher: publisher,
		canceller: canceller,
	}
}

// Start enqueues a new execution of an active workflow. The trigger payload
// is persisted with the execution and becomes the initial context data.
func (s *ExecutionService) Start(ctx context.Context, workflowID string, source models.TriggerType, payload map[string]any) (*models.Execution, error) {
	workflow, err := s.store.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !workflow.IsExecutable() {
		return nil, ErrWorkflowNotExecutable
	}

	now := time.Now().UTC()
	execution := &models.Execution{
		ID:             uuid.New().String(),
		WorkflowID:     workflow.ID,
		Status:         models.ExecutionStatusPending,
		TriggerSource:  source,
		TriggerPayload: payload,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.SaveExecution(ctx, execution); err != nil {
		return nil, err
	}

	event := events.ExecutionQueued{
		BaseEvent:     events.NewBaseEvent(events.ExecutionQueuedEvent, workflow.ID),
		ExecutionID:   execution.ID,
		TriggerSource: string(source),
	}

	if err := s.publisher.Publish(ctx, workflow.ID, event); err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatusQueued
	execution.UpdatedAt = time.Now().UTC()

	if err := s.store.SaveExecution(ctx, execution); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "execution enqueued",
		"execution_id", execution.ID,
		"workflow_id", workflow.ID,
		"trigger_source", source,
	)

	return execution, nil
}

func (s *ExecutionService) Get(ctx context.Context, id string) (*models.Execution, error) {
	return s.store.ExecutionByID(ctx, id)
}

// List returns the most recent executions of a workflow, newest first.
func (s *ExecutionService) List(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error) {
	if _, err := s.store.WorkflowByID(ctx, workflowID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 50
	}

	return s.store.Executions(ctx, workflowID, limit)
}

// Steps returns the per-node records of one execution in traversal order.
func (s *ExecutionService) Steps(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	if _, err := s.store.ExecutionByID(ctx, executionID); err != nil {
		return nil, err
	}

	return s.store.StepsByExecutionID(ctx, executionID)
}

// Stop requests cancellation of an execution. Queued and pending executions
// flip to stopped immediately; running ones get a stop request the engine
// honors between nodes. Terminal executions cannot be stopped.
func (s *ExecutionService) Stop(ctx context.Context, id string) (*models.Execution, error) {
	execution, err := s.store.ExecutionByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if execution.Status.IsTerminal() {
		return nil, ErrExecutionFinished
	}

	if execution.Status == models.ExecutionStatusPending || execution.Status == models.ExecutionStatusQueued {
		// Not claimed yet: flip to stopped directly. A worker that already
		// loaded the queued event sees the terminal status and drops it.
		now := time.Now().UTC()
		execution.Status = models.ExecutionStatusStopped
		execution.FinishedAt = &now
		execution.UpdatedAt = now

		if err := s.store.SaveExecution(ctx, execution); err != nil {
			return nil, err
		}
	}

	// Local flag covers single-process setups; the event reaches the worker
	// actually running the execution.
	s.canceller.RequestStop(id)

	event := events.ExecutionStopRequested{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStopRequestedEvent, execution.WorkflowID),
		ExecutionID: id,
	}
	if err := s.publisher.Publish(ctx, execution.WorkflowID, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish stop request", "execution_id", id, "error", err)
	}

	s.logger.InfoContext(ctx, "execution stop requested", "execution_id", id, "status", execution.Status)

	return execution, nil
}
