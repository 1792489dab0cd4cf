package engine

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence/file"
	"github.com/cascadehq/cascade/pkg/registry"
)

func testEngine(t *testing.T) (*Engine, *file.Persistence, *Canceller) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(slog.Default())
	registry.RegisterDefaults(reg, slog.Default(), nil)

	canceller := NewCanceller()

	return NewEngine(slog.Default(), reg, store, canceller), store, canceller
}

func testExecution(workflowID string, payload map[string]any) *models.Execution {
	return &models.Execution{
		ID:             "exec-1",
		WorkflowID:     workflowID,
		Status:         models.ExecutionStatusQueued,
		TriggerSource:  models.TriggerTypeManual,
		TriggerPayload: payload,
		CreatedAt:      time.Now().UTC(),
	}
}

func triggerNode(next ...models.WorkflowEdge) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:       "start",
		Type:     models.NodeTypeTriggerManual,
		Category: models.CategoryTrigger,
		Next:     next,
	}
}

func edge(target string) models.WorkflowEdge {
	return models.WorkflowEdge{Target: target}
}

func labeled(target, label string) models.WorkflowEdge {
	return models.WorkflowEdge{Target: target, Label: label}
}

func TestRunConditionRoutingAndSkipping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count": 7}`))
	}))
	defer server.Close()

	workflow := &models.Workflow{
		ID:     "wf-1",
		Name:   "routing",
		Status: models.WorkflowStatusActive,
		Nodes: []*models.WorkflowNode{
			triggerNode(edge("fetch")),
			{
				ID:       "fetch",
				Type:     "http_request",
				Category: models.CategoryAction,
				Config:   map[string]any{"url": server.URL},
				Next:     []models.WorkflowEdge{edge("check")},
			},
			{
				ID:       "check",
				Type:     "condition",
				Category: models.CategoryCondition,
				Config:   map[string]any{"condition": "results.fetch.body.count > 5"},
				Next: []models.WorkflowEdge{
					labeled("big", models.EdgeLabelTrue),
					labeled("small", models.EdgeLabelFalse),
				},
			},
			{
				ID:       "big",
				Type:     "set_variable",
				Category: models.CategoryAction,
				Config:   map[string]any{"variables": map[string]any{"size": "big"}},
			},
			{
				ID:       "small",
				Type:     "set_variable",
				Category: models.CategoryAction,
				Config:   map[string]any{"variables": map[string]any{"size": "small"}},
			},
		},
	}

	engine, store, _ := testEngine(t)
	execution := testExecution(workflow.ID, nil)

	result, err := engine.Run(context.Background(), workflow, execution)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, result.Status)
	assert.Equal(t, 4, result.NodesCompleted)
	assert.Equal(t, 1, result.NodesSkipped)

	steps, err := store.StepsByExecutionID(context.Background(), execution.ID)
	require.NoError(t, err)

	byNode := make(map[string]*models.ExecutionStep, len(steps))
	for _, step := range steps {
		byNode[step.NodeID] = step
	}

	require.NotNil(t, byNode["check"].ConditionMet)
	assert.True(t, *byNode["check"].ConditionMet)
	assert.Equal(t, models.StepStatusCompleted, byNode["big"].Status)
	assert.Equal(t, models.StepStatusSkipped, byNode["small"].Status)

	require.NotNil(t, byNode["fetch"].HTTPStatusCode)
	assert.Equal(t, http.StatusOK, *byNode["fetch"].HTTPStatusCode)

	// Step input snapshots the context data at dispatch time, not the node
	// config: by the time check runs, the fetch result is part of the data.
	assert.Contains(t, byNode["check"].Input, "body")
	assert.NotContains(t, byNode["check"].Input, "condition")
}

func TestRunHTTPFailureRetriesThenStops(t *testing.T) {
	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	workflow := &models.Workflow{
		ID:      "wf-2",
		Name:    "retry-stop",
		Status:  models.WorkflowStatusActive,
		Retry:   models.RetryPolicy{MaxRetries: 2, DelaySeconds: 0.01, BackoffMultiplier: 2},
		OnError: models.ErrorPolicyStop,
		Nodes: []*models.WorkflowNode{
			triggerNode(edge("fetch")),
			{
				ID:       "fetch",
				Type:     "http_request",
				Category: models.CategoryAction,
				Config:   map[string]any{"url": server.URL},
				Next:     []models.WorkflowEdge{edge("after")},
			},
			{
				ID:       "after",
				Type:     "log",
				Category: models.CategoryAction,
				Config:   map[string]any{"message": "never reached"},
			},
		},
	}

	engine, store, _ := testEngine(t)
	execution := testExecution(workflow.ID, nil)

	result, err := engine.Run(context.Background(), workflow, execution)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, result.Status)
	assert.Equal(t, "fetch", result.ErrorNodeID)
	assert.NotEmpty(t, result.ErrorMessage)
	assert.Equal(t, int32(3), hits.Load())

	steps, err := store.StepsByExecutionID(context.Background(), execution.ID)
	require.NoError(t, err)

	byNode := make(map[string]*models.ExecutionStep, len(steps))
	for _, step := range steps {
		byNode[step.NodeID] = step
	}

	assert.Equal(t, models.StepStatusFailed, byNode["fetch"].Status)
	assert.Equal(t, 2, byNode["fetch"].RetryCount)
	require.NotNil(t, byNode["fetch"].HTTPStatusCode)
	assert.Equal(t, http.StatusInternalServerError, *byNode["fetch"].HTTPStatusCode)
	assert.Equal(t, models.StepStatusSkipped, byNode["after"].Status)
}

func TestRunContinuePolicyKeepsOtherBranches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	workflow := &models.Workflow{
		ID:      "wf-3",
		Name:    "continue",
		Status:  models.WorkflowStatusActive,
		OnError: models.ErrorPolicyContinue,
		Nodes: []*models.WorkflowNode{
			triggerNode(edge("broken"), edge("healthy")),
			{
				ID:       "broken",
				Type:     "http_request",
				Category: models.CategoryAction,
				Config:   map[string]any{"url": server.URL},
				Next:     []models.WorkflowEdge{edge("downstream")},
			},
			{
				ID:       "downstream",
				Type:     "log",
				Category: models.CategoryAction,
				Config:   map[string]any{"message": "behind failure"},
			},
			{
				ID:       "healthy",
				Type:     "set_variable",
				Category: models.CategoryAction,
				Config:   map[string]any{"variables": map[string]any{"ok": true}},
			},
		},
	}

	engine, store, _ := testEngine(t)
	execution := testExecution(workflow.ID, nil)

	result, err := engine.Run(context.Background(), workflow, execution)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, result.Status)
	assert.Equal(t, 1, result.NodesFailed)
	assert.Equal(t, 1, result.NodesSkipped)

	steps, err := store.StepsByExecutionID(context.Background(), execution.ID)
	require.NoError(t, err)

	byNode := make(map[string]*models.ExecutionStep, len(steps))
	for _, step := range steps {
		byNode[step.NodeID] = step
	}

	assert.Equal(t, models.StepStatusFailed, byNode["broken"].Status)
	assert.Equal(t, models.StepStatusSkipped, byNode["downstream"].Status)
	assert.Equal(t, models.StepStatusCompleted, byNode["healthy"].Status)
}

func TestRunWaitNodeSharesVariables(t *testing.T) {
	workflow := &models.Workflow{
		ID:     "wf-4",
		Name:   "wait-vars",
		Status: models.WorkflowStatusActive,
		Nodes: []*models.WorkflowNode{
			triggerNode(edge("set")),
			{
				ID:       "set",
				Type:     "set_variable",
				Category: models.CategoryAction,
				Config:   map[string]any{"variables": map[string]any{"marker": "before-wait"}},
				Next:     []models.WorkflowEdge{edge("pause")},
			},
			{
				ID:       "pause",
				Type:     "wait",
				Category: models.CategoryAction,
				Config:   map[string]any{"duration_seconds": 0.05},
				Next:     []models.WorkflowEdge{edge("emit")},
			},
			{
				ID:       "emit",
				Type:     "transform",
				Category: models.CategoryAction,
				Config: map[string]any{
					"mapping": map[string]any{"seen": "{{variables.marker}}"},
				},
			},
		},
	}

	engine, store, _ := testEngine(t)
	execution := testExecution(workflow.ID, nil)

	start := time.Now()
	result, err := engine.Run(context.Background(), workflow, execution)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, result.Status)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	steps, err := store.StepsByExecutionID(context.Background(), execution.ID)
	require.NoError(t, err)

	var emit *models.ExecutionStep
	for _, step := range steps {
		if step.NodeID == "emit" {
			emit = step
		}
	}

	require.NotNil(t, emit)
	assert.Equal(t, "before-wait", emit.Output["seen"])
}

func TestRunTimesOut(t *testing.T) {
	workflow := &models.Workflow{
		ID:             "wf-5",
		Name:           "timeout",
		Status:         models.WorkflowStatusActive,
		TimeoutSeconds: 1,
		Nodes: []*models.WorkflowNode{
			triggerNode(edge("pause")),
			{
				ID:       "pause",
				Type:     "wait",
				Category: models.CategoryAction,
				Config:   map[string]any{"duration_seconds": float64(30)},
			},
		},
	}

	engine, _, _ := testEngine(t)
	execution := testExecution(workflow.ID, nil)

	result, err := engine.Run(context.Background(), workflow, execution)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusTimeout, result.Status)
	assert.Contains(t, result.ErrorMessage, "timeout")
}

// deadlineStrictStore refuses writes on an expired context, the way the
// database-backed stores do.
type deadlineStrictStore struct {
	*file.Persistence
}

func (s *deadlineStrictStore) SaveExecution(ctx context.Context, execution *models.Execution) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.Persistence.SaveExecution(ctx, execution)
}

func (s *deadlineStrictStore) SaveStep(ctx context.Context, step *models.ExecutionStep) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.Persistence.SaveStep(ctx, step)
}

func TestRunTimeoutPersistsTerminalState(t *testing.T) {
	store := &deadlineStrictStore{Persistence: file.NewPersistence(t.TempDir())}

	reg := registry.NewRegistry(slog.Default())
	registry.RegisterDefaults(reg, slog.Default(), nil)

	engine := NewEngine(slog.Default(), reg, store, NewCanceller())

	workflow := &models.Workflow{
		ID:             "wf-9",
		Name:           "timeout-persist",
		Status:         models.WorkflowStatusActive,
		TimeoutSeconds: 1,
		Nodes: []*models.WorkflowNode{
			triggerNode(edge("pause")),
			{
				ID:       "pause",
				Type:     "wait",
				Category: models.CategoryAction,
				Config:   map[string]any{"duration_seconds": float64(30)},
			},
		},
	}

	execution := testExecution(workflow.ID, nil)

	result, err := engine.Run(context.Background(), workflow, execution)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusTimeout, result.Status)

	persisted, err := store.ExecutionByID(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusTimeout, persisted.Status)
	require.NotNil(t, persisted.FinishedAt)

	steps, err := store.StepsByExecutionID(context.Background(), execution.ID)
	require.NoError(t, err)

	for _, step := range steps {
		if step.NodeID == "pause" {
			assert.Equal(t, models.StepStatusFailed, step.Status)
		}
	}
}

func TestRunStopRequested(t *testing.T) {
	workflow := &models.Workflow{
		ID:     "wf-6",
		Name:   "stopped",
		Status: models.WorkflowStatusActive,
		Nodes: []*models.WorkflowNode{
			triggerNode(edge("noop")),
			{
				ID:       "noop",
				Type:     "log",
				Category: models.CategoryAction,
				Config:   map[string]any{"message": "unreached"},
			},
		},
	}

	engine, _, canceller := testEngine(t)
	execution := testExecution(workflow.ID, nil)
	canceller.RequestStop(execution.ID)

	result, err := engine.Run(context.Background(), workflow, execution)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusStopped, result.Status)
	assert.False(t, canceller.Stopped(execution.ID))
}

func TestRunCyclicGraphFailsFast(t *testing.T) {
	workflow := &models.Workflow{
		ID:     "wf-7",
		Name:   "cyclic",
		Status: models.WorkflowStatusActive,
		Nodes: []*models.WorkflowNode{
			triggerNode(edge("a")),
			{
				ID:       "a",
				Type:     "log",
				Category: models.CategoryAction,
				Config:   map[string]any{"message": "a"},
				Next:     []models.WorkflowEdge{edge("b")},
			},
			{
				ID:       "b",
				Type:     "log",
				Category: models.CategoryAction,
				Config:   map[string]any{"message": "b"},
				Next:     []models.WorkflowEdge{edge("a")},
			},
		},
	}

	engine, _, _ := testEngine(t)
	execution := testExecution(workflow.ID, nil)

	done := make(chan struct{})

	var result *models.Execution

	go func() {
		defer close(done)

		var err error
		result, err = engine.Run(context.Background(), workflow, execution)
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cyclic graph did not terminate")
	}

	assert.Equal(t, models.ExecutionStatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "cycle")
}

func TestRunRejectsTerminalExecution(t *testing.T) {
	engine, _, _ := testEngine(t)

	execution := testExecution("wf-8", nil)
	execution.Status = models.ExecutionStatusCompleted

	_, err := engine.Run(context.Background(), &models.Workflow{ID: "wf-8", Name: "done"}, execution)
	assert.ErrorIs(t, err, ErrNotRunnable)
}
