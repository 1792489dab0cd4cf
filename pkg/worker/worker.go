// Package worker consumes queued executions from the bus and runs them
// through the engine. Workers are stateless; any instance can claim any
// queued execution.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cascadehq/cascade/pkg/engine"
	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/events"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

type Worker struct {
	id     string
	logger *slog.Logger
	bus    eventbus.EventBus
	store  persistence.Persistence
	engine *engine.Engine
}

func NewWorker(id string, logger *slog.Logger, bus eventbus.EventBus, store persistence.Persistence, eng *engine.Engine) *Worker {
	if id == "" {
		id = "worker-" + uuid.New().String()[:8]
	}

	return &Worker{
		id:     id,
		logger: logger.With("module", "worker", "worker_id", id),
		bus:    bus,
		store:  store,
		engine: eng,
	}
}

func (w *Worker) ID() string {
	return w.id
}

// Start registers the queued-execution and stop-request handlers and begins
// consuming.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.bus.Handle(events.ExecutionQueuedEvent, w.handleQueued); err != nil {
		return err
	}

	if err := w.bus.Handle(events.ExecutionStopRequestedEvent, w.handleStopRequested); err != nil {
		return err
	}

	if err := w.bus.Subscribe(ctx); err != nil {
		return err
	}

	w.logger.Info("worker started")

	return nil
}

// handleStopRequested flags the execution for cancellation. If this worker is
// running it, the engine stops between nodes; otherwise the flag is a no-op.
func (w *Worker) handleStopRequested(_ context.Context, raw any) error {
	event, ok := raw.(*events.ExecutionStopRequested)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", raw)
	}

	w.logger.Info("stop requested", "execution_id", event.ExecutionID)
	w.engine.RequestStop(event.ExecutionID)

	return nil
}

func (w *Worker) handleQueued(ctx context.Context, raw any) error {
	event, ok := raw.(*events.ExecutionQueued)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", raw)
	}

	logger := w.logger.With("execution_id", event.ExecutionID, "workflow_id", event.WorkflowID)

	execution, err := w.store.ExecutionByID(ctx, event.ExecutionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			logger.Warn("queued execution no longer exists, dropping")

			return nil
		}

		return err
	}

	// Another worker already claimed it, or it was stopped while queued.
	if execution.Status != models.ExecutionStatusQueued && execution.Status != models.ExecutionStatusPending {
		logger.Info("execution not claimable, skipping", "status", execution.Status)

		return nil
	}

	workflow, err := w.store.WorkflowByID(ctx, execution.WorkflowID)
	if err != nil {
		logger.Error("workflow snapshot missing, failing execution", "error", err)

		return w.failWithoutRun(ctx, execution, err)
	}

	w.publish(ctx, workflow.ID, events.ExecutionStarted{
		BaseEvent:   w.baseEvent(events.ExecutionStartedEvent, workflow.ID),
		ExecutionID: execution.ID,
	})

	result, err := w.engine.Run(ctx, workflow, execution)
	if err != nil {
		if errors.Is(err, engine.ErrNotRunnable) {
			return nil
		}

		logger.Error("engine run failed", "error", err)

		return err
	}

	w.updateWorkflowStats(ctx, workflow, result)

	switch result.Status {
	case models.ExecutionStatusCompleted:
		w.publish(ctx, workflow.ID, events.ExecutionCompleted{
			BaseEvent:      w.baseEvent(events.ExecutionCompletedEvent, workflow.ID),
			ExecutionID:    result.ID,
			DurationMs:     result.DurationMs,
			NodesCompleted: result.NodesCompleted,
		})
	case models.ExecutionStatusFailed, models.ExecutionStatusTimeout:
		w.publish(ctx, workflow.ID, events.ExecutionFailed{
			BaseEvent:   w.baseEvent(events.ExecutionFailedEvent, workflow.ID),
			ExecutionID: result.ID,
			NodeID:      result.ErrorNodeID,
			Error:       result.ErrorMessage,
		})
	default:
	}

	return nil
}

func (w *Worker) failWithoutRun(ctx context.Context, execution *models.Execution, cause error) error {
	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusFailed
	execution.ErrorMessage = cause.Error()
	execution.FinishedAt = &now
	execution.UpdatedAt = now

	if err := w.store.SaveExecution(ctx, execution); err != nil {
		return err
	}

	w.publish(ctx, execution.WorkflowID, events.ExecutionFailed{
		BaseEvent:   w.baseEvent(events.ExecutionFailedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		Error:       cause.Error(),
	})

	return nil
}

// updateWorkflowStats folds the finished run into the definition's counters.
func (w *Worker) updateWorkflowStats(ctx context.Context, workflow *models.Workflow, execution *models.Execution) {
	fresh, err := w.store.WorkflowByID(ctx, workflow.ID)
	if err != nil {
		w.logger.Warn("cannot update workflow stats", "workflow_id", workflow.ID, "error", err)

		return
	}

	total := fresh.TotalExecutions
	fresh.AvgDurationMs = (fresh.AvgDurationMs*float64(total) + float64(execution.DurationMs)) / float64(total+1)
	fresh.TotalExecutions++

	switch execution.Status {
	case models.ExecutionStatusCompleted:
		fresh.SuccessExecutions++
	case models.ExecutionStatusFailed, models.ExecutionStatusTimeout:
		fresh.FailedExecutions++
	default:
	}

	fresh.UpdatedAt = time.Now().UTC()

	if err := w.store.SaveWorkflow(ctx, fresh); err != nil {
		w.logger.Warn("cannot persist workflow stats", "workflow_id", workflow.ID, "error", err)
	}
}

func (w *Worker) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, workflowID)
	base.WorkerID = w.id

	return base
}

func (w *Worker) publish(ctx context.Context, key string, event eventbus.Event) {
	if err := w.bus.Publish(ctx, key, event); err != nil {
		w.logger.Warn("failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
