// Package engine runs workflow executions: it traverses the node graph
// breadth-first from the trigger, dispatches each node through the registry,
// applies the definition's retry and error policies, and records every node
// visit as an execution step.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cascadehq/cascade/pkg/expr"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/registry"
)

// ErrNotRunnable is returned when the execution is already terminal or the
// workflow cannot run.
var ErrNotRunnable = errors.New("execution is not runnable")

type Engine struct {
	logger    *slog.Logger
	registry  *registry.Registry
	store     persistence.ExecutionRepository
	canceller *Canceller
	tracer    trace.Tracer
}

func NewEngine(logger *slog.Logger, reg *registry.Registry, store persistence.ExecutionRepository, canceller *Canceller) *Engine {
	return &Engine{
		logger:    logger.With("module", "engine"),
		registry:  reg,
		store:     store,
		canceller: canceller,
		tracer:    otel.Tracer("cascade/engine"),
	}
}

// RequestStop flags an execution for cancellation. The traversal loop checks
// the flag between nodes.
func (e *Engine) RequestStop(executionID string) {
	e.canceller.RequestStop(executionID)
}

// Run executes a workflow snapshot. The returned execution carries the final
// status; the error is non-nil only for infrastructure failures (persistence
// being down), never for workflow-level failures.
func (e *Engine) Run(ctx context.Context, workflow *models.Workflow, execution *models.Execution) (*models.Execution, error) {
	if execution.Status.IsTerminal() {
		return execution, ErrNotRunnable
	}

	ctx, span := e.tracer.Start(ctx, "execution.run", trace.WithAttributes(
		attribute.String("workflow.id", workflow.ID),
		attribute.String("execution.id", execution.ID),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, workflow.Timeout())
	defer cancel()

	defer e.canceller.Clear(execution.ID)

	logger := e.logger.With("execution_id", execution.ID, "workflow_id", workflow.ID)

	// Graph defects, including cycles, fail the execution before any node
	// runs. Saved workflows are validated, but a definition may have been
	// written by an older version or directly to storage.
	if err := workflow.ValidateGraph(); err != nil {
		logger.Error("workflow graph is invalid", "error", err)

		return e.finish(ctx, workflow, execution, models.ExecutionStatusFailed, "", err)
	}

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusRunning
	execution.StartedAt = &now
	execution.NodesTotal = len(workflow.Nodes)

	if err := e.store.SaveExecution(ctx, execution); err != nil {
		return execution, err
	}

	execCtx := models.NewExecutionContext(execution.ID, workflow.ID, execution.TriggerPayload, workflow.Variables)

	run := &traversal{
		workflow:  workflow,
		execution: execution,
		execCtx:   execCtx,
		visited:   make(map[string]bool, len(workflow.Nodes)),
		queue:     []string{workflow.TriggerNode().ID},
	}

	for len(run.queue) > 0 {
		if e.canceller.Stopped(execution.ID) {
			logger.Info("stop requested, halting traversal")

			return e.finish(ctx, workflow, execution, models.ExecutionStatusStopped, "", nil)
		}

		if err := ctx.Err(); err != nil {
			return e.timeoutOrStop(ctx, workflow, execution, err)
		}

		nodeID := run.queue[0]
		run.queue = run.queue[1:]

		if run.visited[nodeID] {
			// Converging edges reach an already-executed node; each
			// node runs at most once per execution.
			continue
		}

		run.visited[nodeID] = true

		node := workflow.NodeByID(nodeID)

		step, err := e.runNode(ctx, run, node)
		if err != nil {
			return execution, err
		}

		if step.Status == models.StepStatusFailed {
			execution.NodesFailed++
			execution.ErrorNodeID = node.ID
			execution.ErrorMessage = step.ErrorMessage

			if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(ctx.Err(), context.Canceled) {
				return e.timeoutOrStop(ctx, workflow, execution, ctx.Err())
			}

			if workflow.OnError == models.ErrorPolicyContinue {
				logger.Warn("node failed, continuing other branches", "node_id", node.ID)

				continue
			}

			logger.Error("node failed, stopping execution", "node_id", node.ID, "error", step.ErrorMessage)

			if err := e.markUnvisitedSkipped(ctx, run); err != nil {
				return execution, err
			}

			return e.finish(ctx, workflow, execution, models.ExecutionStatusFailed, node.ID, errors.New(step.ErrorMessage))
		}

		execution.NodesCompleted++

		next, err := e.nextTargets(node, step, execCtx)
		if err != nil {
			logger.Error("edge evaluation failed", "node_id", node.ID, "error", err)

			return e.finish(ctx, workflow, execution, models.ExecutionStatusFailed, node.ID, err)
		}

		run.queue = append(run.queue, next...)
	}

	if err := e.markUnvisitedSkipped(ctx, run); err != nil {
		return execution, err
	}

	// Failed branches under the continue policy do not fail the run.
	status := models.ExecutionStatusCompleted

	return e.finish(ctx, workflow, execution, status, execution.ErrorNodeID, nil)
}

type traversal struct {
	workflow  *models.Workflow
	execution *models.Execution
	execCtx   *models.ExecutionContext
	visited   map[string]bool
	queue     []string
	order     int
}

// runNode executes one node with the definition's retry policy, recording a
// step for the visit. A failed step is reported in the step status, not the
// error return.
func (e *Engine) runNode(ctx context.Context, run *traversal, node *models.WorkflowNode) (*models.ExecutionStep, error) {
	ctx, span := e.tracer.Start(ctx, "execution.node", trace.WithAttributes(
		attribute.String("node.id", node.ID),
		attribute.String("node.type", node.Type),
	))
	defer span.End()

	started := time.Now().UTC()

	step := &models.ExecutionStep{
		ID:          uuid.New().String(),
		ExecutionID: run.execution.ID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		NodeName:    node.Name,
		Order:       run.order,
		Status:      models.StepStatusRunning,
		Input:       maps.Clone(run.execCtx.Data),
		StartedAt:   &started,
	}
	run.order++

	if err := e.store.SaveStep(ctx, step); err != nil {
		return nil, err
	}

	output, execErr := e.executeWithRetries(ctx, run, node, step)

	finished := time.Now().UTC()
	step.FinishedAt = &finished
	step.DurationMs = finished.Sub(started).Milliseconds()
	step.Output = output

	if statusCode, ok := asInt(output["status_code"]); ok {
		step.HTTPStatusCode = &statusCode
	}

	if met, ok := output["condition_met"].(bool); ok {
		step.ConditionMet = &met
	}

	if execErr != nil {
		step.Status = models.StepStatusFailed
		step.ErrorMessage = execErr.Error()
	} else {
		step.Status = models.StepStatusCompleted

		if node.IsConditionNode() {
			run.execCtx.RecordResult(node.ID, output)
		} else {
			run.execCtx.MergeResult(node.ID, output)
		}
	}

	// A timed-out node leaves the run context expired; the step record must
	// still reach storage.
	saveCtx, cancel := saveContext(ctx)
	defer cancel()

	if err := e.store.SaveStep(saveCtx, step); err != nil {
		return nil, err
	}

	return step, nil
}

func (e *Engine) executeWithRetries(ctx context.Context, run *traversal, node *models.WorkflowNode, step *models.ExecutionStep) (map[string]any, error) {
	handler, err := e.registry.Create(node)
	if err != nil {
		return nil, err
	}

	policy := run.workflow.Retry
	delay := time.Duration(policy.DelaySeconds * float64(time.Second))

	multiplier := policy.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}

	var output map[string]any

	for attempt := 0; ; attempt++ {
		output, err = handler.Execute(ctx, run.execCtx)
		if err == nil {
			return output, nil
		}

		if attempt >= policy.MaxRetries || ctx.Err() != nil {
			return output, err
		}

		step.RetryCount = attempt + 1

		e.logger.Warn("node attempt failed, retrying",
			"execution_id", run.execution.ID,
			"node_id", node.ID,
			"attempt", attempt+1,
			"delay", delay.String(),
			"error", err,
		)

		if !sleep(ctx, delay) {
			return output, ctx.Err()
		}

		delay = time.Duration(float64(delay) * multiplier)
	}
}

// nextTargets picks the outgoing edges to follow. Condition nodes follow only
// the edges labeled with their outcome; other nodes follow every edge. An
// edge guard expression can veto any edge.
func (e *Engine) nextTargets(node *models.WorkflowNode, step *models.ExecutionStep, execCtx *models.ExecutionContext) ([]string, error) {
	var targets []string

	for _, edge := range node.Next {
		if node.IsConditionNode() && edge.Label != "" {
			if step.ConditionMet == nil || edge.Label != strconv.FormatBool(*step.ConditionMet) {
				continue
			}
		}

		if edge.Condition != "" {
			pass, err := expr.Evaluate(edge.Condition, execCtx)
			if err != nil {
				return nil, fmt.Errorf("edge %s -> %s: %w", node.ID, edge.Target, err)
			}

			if !pass {
				continue
			}
		}

		targets = append(targets, edge.Target)
	}

	return targets, nil
}

// markUnvisitedSkipped records a skipped step for every node the traversal
// never reached: branches behind a false condition and everything downstream
// of failed nodes under the continue policy.
func (e *Engine) markUnvisitedSkipped(ctx context.Context, run *traversal) error {
	for _, node := range run.workflow.Nodes {
		if run.visited[node.ID] {
			continue
		}

		run.execution.NodesSkipped++

		step := &models.ExecutionStep{
			ID:          uuid.New().String(),
			ExecutionID: run.execution.ID,
			NodeID:      node.ID,
			NodeType:    node.Type,
			NodeName:    node.Name,
			Order:       run.order,
			Status:      models.StepStatusSkipped,
		}
		run.order++

		if err := e.store.SaveStep(ctx, step); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) timeoutOrStop(ctx context.Context, workflow *models.Workflow, execution *models.Execution, cause error) (*models.Execution, error) {
	if errors.Is(cause, context.DeadlineExceeded) {
		return e.finish(ctx, workflow, execution, models.ExecutionStatusTimeout, "",
			fmt.Errorf("execution exceeded %s timeout", workflow.Timeout()))
	}

	return e.finish(ctx, workflow, execution, models.ExecutionStatusStopped, "", nil)
}

// finish settles the execution into a terminal state and persists it. The
// save uses a fresh context so a timed-out run can still be recorded.
func (e *Engine) finish(ctx context.Context, workflow *models.Workflow, execution *models.Execution, status models.ExecutionStatus, errorNodeID string, cause error) (*models.Execution, error) {
	now := time.Now().UTC()
	execution.Status = status
	execution.FinishedAt = &now
	execution.UpdatedAt = now

	if execution.StartedAt != nil {
		execution.DurationMs = now.Sub(*execution.StartedAt).Milliseconds()
	}

	if cause != nil {
		execution.ErrorMessage = cause.Error()
		execution.ErrorNodeID = errorNodeID
	}

	saveCtx, cancel := saveContext(ctx)
	defer cancel()

	if err := e.store.SaveExecution(saveCtx, execution); err != nil {
		return execution, err
	}

	e.logger.Info("execution finished",
		"execution_id", execution.ID,
		"workflow_id", workflow.ID,
		"status", status,
		"duration_ms", execution.DurationMs,
		"nodes_completed", execution.NodesCompleted,
		"nodes_failed", execution.NodesFailed,
		"nodes_skipped", execution.NodesSkipped,
	)

	return execution, nil
}

// saveContext returns a context usable for persistence writes. Once the run
// context has timed out or been cancelled it is replaced by a short detached
// deadline so terminal records still land.
func saveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}

	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

// sleep waits for the delay or the context, whichever ends first.
func sleep(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return true
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func asInt(value any) (int, bool) {
	switch typed := value.(type) {
	case int:
		return typed, true
	case int64:
		return int(typed), true
	case float64:
		return int(typed), true
	default:
		return 0, false
	}
}
