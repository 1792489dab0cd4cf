package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

func testStore(t *testing.T) *Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func TestWorkflowRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	workflow := &models.Workflow{
		ID:           "wf-1",
		Name:         "roundtrip",
		Status:       models.WorkflowStatusActive,
		TriggerType:  models.TriggerTypeWebhook,
		WebhookToken: "token-abc",
		Nodes: []*models.WorkflowNode{
			{ID: "start", Type: models.NodeTypeTriggerWebhook, Category: models.CategoryTrigger},
		},
		CreatedAt: time.Now().UTC(),
	}

	require.NoError(t, store.SaveWorkflow(ctx, workflow))

	loaded, err := store.WorkflowByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "roundtrip", loaded.Name)
	require.Len(t, loaded.Nodes, 1)

	byToken, err := store.WorkflowByWebhookToken(ctx, "token-abc")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", byToken.ID)

	_, err = store.WorkflowByWebhookToken(ctx, "wrong-token")
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)

	require.NoError(t, store.DeleteWorkflow(ctx, "wf-1"))
	_, err = store.WorkflowByID(ctx, "wf-1")
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestExecutionsNewestFirstWithLimit(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := time.Now().UTC()

	for i, id := range []string{"ex-old", "ex-mid", "ex-new"} {
		require.NoError(t, store.SaveExecution(ctx, &models.Execution{
			ID:         id,
			WorkflowID: "wf-1",
			Status:     models.ExecutionStatusCompleted,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	executions, err := store.Executions(ctx, "wf-1", 2)
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, "ex-new", executions[0].ID)
	assert.Equal(t, "ex-mid", executions[1].ID)
}

func TestStepsSortedByOrder(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for _, step := range []*models.ExecutionStep{
		{ID: "s-b", ExecutionID: "ex-1", NodeID: "second", Order: 1},
		{ID: "s-a", ExecutionID: "ex-1", NodeID: "first", Order: 0},
	} {
		require.NoError(t, store.SaveStep(ctx, step))
	}

	steps, err := store.StepsByExecutionID(ctx, "ex-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "first", steps[0].NodeID)
	assert.Equal(t, "second", steps[1].NodeID)
}

func TestStaleRunningExecutions(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-2 * time.Hour)
	recent := time.Now().UTC()

	require.NoError(t, store.SaveExecution(ctx, &models.Execution{
		ID: "ex-stale", WorkflowID: "wf-1", Status: models.ExecutionStatusRunning, StartedAt: &old,
	}))
	require.NoError(t, store.SaveExecution(ctx, &models.Execution{
		ID: "ex-live", WorkflowID: "wf-1", Status: models.ExecutionStatusRunning, StartedAt: &recent,
	}))

	stale, err := store.StaleRunningExecutions(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "ex-stale", stale[0].ID)
}

func TestScheduleAndCredentialNotFound(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	_, err := store.ScheduleByID(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrScheduleNotFound)

	_, err = store.CredentialByID(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrCredentialNotFound)

	assert.ErrorIs(t, store.DeleteSchedule(ctx, "missing"), persistence.ErrScheduleNotFound)
	assert.ErrorIs(t, store.DeleteCredential(ctx, "missing"), persistence.ErrCredentialNotFound)
}
