package worker

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/channels/gochannel"
	"github.com/cascadehq/cascade/pkg/engine"
	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/events"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence/file"
	"github.com/cascadehq/cascade/pkg/registry"
)

func testWorker(t *testing.T) (*Worker, eventbus.EventBus, *file.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	reg := registry.NewRegistry(slog.Default())
	registry.RegisterDefaults(reg, slog.Default(), nil)

	eng := engine.NewEngine(slog.Default(), reg, store, engine.NewCanceller())

	return NewWorker("worker-test", slog.Default(), bus, store, eng), bus, store
}

func seedWorkflowAndExecution(t *testing.T, store *file.Persistence) (*models.Workflow, *models.Execution) {
	t.Helper()

	workflow := &models.Workflow{
		ID:     "wf-1",
		Name:   "queued run",
		Status: models.WorkflowStatusActive,
		Nodes: []*models.WorkflowNode{
			{
				ID:       "start",
				Type:     models.NodeTypeTriggerManual,
				Category: models.CategoryTrigger,
				Next:     []models.WorkflowEdge{{Target: "emit"}},
			},
			{
				ID:       "emit",
				Type:     "set_variable",
				Category: models.CategoryAction,
				Config:   map[string]any{"variables": map[string]any{"done": true}},
			},
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveWorkflow(context.Background(), workflow))

	execution := &models.Execution{
		ID:            "exec-1",
		WorkflowID:    workflow.ID,
		Status:        models.ExecutionStatusQueued,
		TriggerSource: models.TriggerTypeManual,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.SaveExecution(context.Background(), execution))

	return workflow, execution
}

func waitForStatus(t *testing.T, store *file.Persistence, executionID string, status models.ExecutionStatus) *models.Execution {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		execution, err := store.ExecutionByID(context.Background(), executionID)
		if err == nil && execution.Status == status {
			return execution
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("execution %s never reached status %s", executionID, status)

	return nil
}

func TestWorkerRunsQueuedExecution(t *testing.T) {
	worker, bus, store := testWorker(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, worker.Start(ctx))

	workflow, execution := seedWorkflowAndExecution(t, store)

	event := events.ExecutionQueued{
		BaseEvent:   events.NewBaseEvent(events.ExecutionQueuedEvent, workflow.ID),
		ExecutionID: execution.ID,
	}
	require.NoError(t, bus.Publish(ctx, workflow.ID, event))

	finished := waitForStatus(t, store, execution.ID, models.ExecutionStatusCompleted)
	assert.Equal(t, 2, finished.NodesCompleted)

	updated, err := store.WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.TotalExecutions)
	assert.Equal(t, int64(1), updated.SuccessExecutions)
}

func TestWorkerSkipsClaimedExecution(t *testing.T) {
	worker, bus, store := testWorker(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, worker.Start(ctx))

	workflow, execution := seedWorkflowAndExecution(t, store)
	execution.Status = models.ExecutionStatusCompleted
	require.NoError(t, store.SaveExecution(ctx, execution))

	event := events.ExecutionQueued{
		BaseEvent:   events.NewBaseEvent(events.ExecutionQueuedEvent, workflow.ID),
		ExecutionID: execution.ID,
	}
	require.NoError(t, bus.Publish(ctx, workflow.ID, event))

	// Give the handler a moment; the execution must stay untouched.
	time.Sleep(100 * time.Millisecond)

	unchanged, err := store.ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, unchanged.Status)
	assert.Zero(t, unchanged.NodesCompleted)
}
