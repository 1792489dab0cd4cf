package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence/file"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
	fail   bool
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fail {
		return errors.New("broker unavailable")
	}

	p.events = append(p.events, event)

	return nil
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.events)
}

func testSetup(t *testing.T) (*Scheduler, *file.Persistence, *capturingPublisher) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	publisher := &capturingPublisher{}
	scheduler := NewScheduler(slog.Default(), store, publisher)
	t.Cleanup(scheduler.Stop)

	return scheduler, store, publisher
}

func seedWorkflow(t *testing.T, store *file.Persistence, id string, status models.WorkflowStatus) {
	t.Helper()

	require.NoError(t, store.SaveWorkflow(context.Background(), &models.Workflow{
		ID:        id,
		Name:      "scheduled workflow",
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}))
}

func seedSchedule(t *testing.T, store *file.Persistence, id, workflowID string) *models.Schedule {
	t.Helper()

	schedule, err := models.NewSchedule(id, workflowID, "*/5 * * * *", "UTC")
	require.NoError(t, err)
	require.NoError(t, store.SaveSchedule(context.Background(), schedule))

	return schedule
}

func TestFireEnqueuesExecution(t *testing.T) {
	scheduler, store, publisher := testSetup(t)
	seedWorkflow(t, store, "wf-1", models.WorkflowStatusActive)
	schedule := seedSchedule(t, store, "sch-1", "wf-1")
	require.NoError(t, scheduler.Add(schedule))

	scheduler.fire(schedule.ID)

	assert.Equal(t, 1, publisher.count())

	executions, err := store.Executions(context.Background(), "wf-1", 0)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, models.ExecutionStatusQueued, executions[0].Status)
	assert.Equal(t, models.TriggerTypeSchedule, executions[0].TriggerSource)

	updated, err := store.ScheduleByID(context.Background(), schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.SuccessRuns)
	assert.Equal(t, 0, updated.ConsecutiveFailures)
	assert.NotNil(t, updated.LastRunAt)
}

func TestFireAutoDisablesAfterThreshold(t *testing.T) {
	scheduler, store, publisher := testSetup(t)
	publisher.fail = true

	seedWorkflow(t, store, "wf-1", models.WorkflowStatusActive)
	schedule := seedSchedule(t, store, "sch-1", "wf-1")
	require.NoError(t, scheduler.Add(schedule))

	for i := 0; i < models.DefaultMaxConsecutiveFailures; i++ {
		before, err := store.ScheduleByID(context.Background(), schedule.ID)
		require.NoError(t, err)
		assert.False(t, before.AutoDisabled, "disabled before threshold at failure %d", i)

		scheduler.fire(schedule.ID)
	}

	updated, err := store.ScheduleByID(context.Background(), schedule.ID)
	require.NoError(t, err)
	assert.True(t, updated.AutoDisabled)
	assert.False(t, updated.Enabled)
	assert.Equal(t, models.DefaultMaxConsecutiveFailures, updated.ConsecutiveFailures)
	assert.False(t, scheduler.HasJob(schedule.ID))
}

func TestFireEnqueueFailureSettlesExecution(t *testing.T) {
	scheduler, store, publisher := testSetup(t)
	publisher.fail = true

	seedWorkflow(t, store, "wf-1", models.WorkflowStatusActive)
	schedule := seedSchedule(t, store, "sch-1", "wf-1")
	require.NoError(t, scheduler.Add(schedule))

	scheduler.fire(schedule.ID)

	executions, err := store.Executions(context.Background(), "wf-1", 0)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, models.ExecutionStatusFailed, executions[0].Status)
	assert.Contains(t, executions[0].ErrorMessage, "enqueue failed")
	assert.NotNil(t, executions[0].FinishedAt)
}

func TestFireSuccessResetsFailureCounter(t *testing.T) {
	scheduler, store, publisher := testSetup(t)
	publisher.fail = true

	seedWorkflow(t, store, "wf-1", models.WorkflowStatusActive)
	schedule := seedSchedule(t, store, "sch-1", "wf-1")
	require.NoError(t, scheduler.Add(schedule))

	scheduler.fire(schedule.ID)
	scheduler.fire(schedule.ID)

	publisher.fail = false
	scheduler.fire(schedule.ID)

	updated, err := store.ScheduleByID(context.Background(), schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.ConsecutiveFailures)
	assert.False(t, updated.AutoDisabled)
	assert.True(t, scheduler.HasJob(schedule.ID))
}

func TestFireSkipsStaleSchedule(t *testing.T) {
	scheduler, store, publisher := testSetup(t)
	seedWorkflow(t, store, "wf-1", models.WorkflowStatusActive)
	schedule := seedSchedule(t, store, "sch-1", "wf-1")
	require.NoError(t, scheduler.Add(schedule))

	// Disabled after registration; the next fire must drop the job.
	schedule.Enabled = false
	require.NoError(t, store.SaveSchedule(context.Background(), schedule))

	scheduler.fire(schedule.ID)

	assert.Equal(t, 0, publisher.count())
	assert.False(t, scheduler.HasJob(schedule.ID))
}

func TestFireSkipsInactiveWorkflow(t *testing.T) {
	scheduler, store, publisher := testSetup(t)
	seedWorkflow(t, store, "wf-1", models.WorkflowStatusInactive)
	schedule := seedSchedule(t, store, "sch-1", "wf-1")
	require.NoError(t, scheduler.Add(schedule))

	scheduler.fire(schedule.ID)

	assert.Equal(t, 0, publisher.count())

	executions, err := store.Executions(context.Background(), "wf-1", 0)
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestAddReplacesExistingJob(t *testing.T) {
	scheduler, store, _ := testSetup(t)
	seedWorkflow(t, store, "wf-1", models.WorkflowStatusActive)
	schedule := seedSchedule(t, store, "sch-1", "wf-1")

	require.NoError(t, scheduler.Add(schedule))

	schedule.CronExpression = "0 12 * * *"
	require.NoError(t, scheduler.Update(schedule))

	assert.True(t, scheduler.HasJob(schedule.ID))

	scheduler.mu.Lock()
	jobCount := len(scheduler.jobs)
	scheduler.mu.Unlock()
	assert.Equal(t, 1, jobCount)
}

func TestAddRejectsMalformedCron(t *testing.T) {
	scheduler, _, _ := testSetup(t)

	err := scheduler.Add(&models.Schedule{
		ID:             "sch-bad",
		WorkflowID:     "wf-1",
		CronExpression: "not a cron",
	})
	require.Error(t, err)
	assert.False(t, scheduler.HasJob("sch-bad"))
}

func TestStartRegistersRunnableSchedulesOnly(t *testing.T) {
	scheduler, store, _ := testSetup(t)

	seedWorkflow(t, store, "wf-active", models.WorkflowStatusActive)
	seedWorkflow(t, store, "wf-draft", models.WorkflowStatusDraft)

	active := seedSchedule(t, store, "sch-active", "wf-active")
	draft := seedSchedule(t, store, "sch-draft", "wf-draft")

	disabled := seedSchedule(t, store, "sch-disabled", "wf-active")
	disabled.Enabled = false
	require.NoError(t, store.SaveSchedule(context.Background(), disabled))

	require.NoError(t, scheduler.Start(context.Background()))

	assert.True(t, scheduler.HasJob(active.ID))
	assert.False(t, scheduler.HasJob(draft.ID))
	assert.False(t, scheduler.HasJob(disabled.ID))
}

func TestSyncReconcilesJobs(t *testing.T) {
	scheduler, store, _ := testSetup(t)

	seedWorkflow(t, store, "wf-1", models.WorkflowStatusActive)
	existing := seedSchedule(t, store, "sch-existing", "wf-1")
	require.NoError(t, scheduler.Add(existing))

	// Created in another process after Start.
	fresh := seedSchedule(t, store, "sch-fresh", "wf-1")

	// Disabled in another process while a job is still live.
	stale := seedSchedule(t, store, "sch-stale", "wf-1")
	require.NoError(t, scheduler.Add(stale))
	stale.Enabled = false
	require.NoError(t, store.SaveSchedule(context.Background(), stale))

	require.NoError(t, scheduler.Sync(context.Background()))

	assert.True(t, scheduler.HasJob(existing.ID))
	assert.True(t, scheduler.HasJob(fresh.ID))
	assert.False(t, scheduler.HasJob(stale.ID))
}
