package models

// ExecutionContext is the transient per-run state shared by node handlers.
// It is mutated in place as traversal proceeds: action results merge into
// Data and are recorded under Results[nodeID]. It must never be shared
// between concurrent executions.
type ExecutionContext struct {
	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id"`
	Data        map[string]any `json:"data,omitempty"`
	Results     map[string]any `json:"results,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
}

// NewExecutionContext builds a context seeded from the trigger payload and
// the definition's global variables. Maps are copied so an execution never
// aliases the definition snapshot.
func NewExecutionContext(executionID, workflowID string, triggerPayload, variables map[string]any) *ExecutionContext {
	ctx := &ExecutionContext{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		Data:        make(map[string]any, len(triggerPayload)),
		Results:     make(map[string]any),
		Variables:   make(map[string]any, len(variables)),
	}

	for k, v := range triggerPayload {
		ctx.Data[k] = v
	}

	for k, v := range variables {
		ctx.Variables[k] = v
	}

	return ctx
}

// MergeResult records a node's result and folds it into the shared data.
func (c *ExecutionContext) MergeResult(nodeID string, result map[string]any) {
	c.Results[nodeID] = result

	for k, v := range result {
		c.Data[k] = v
	}
}

// RecordResult stores a node's result without touching Data. Used for
// condition nodes whose outcome must not leak into the data stream.
func (c *ExecutionContext) RecordResult(nodeID string, result map[string]any) {
	c.Results[nodeID] = result
}

// Lookup resolves a root name used by expressions and templates.
func (c *ExecutionContext) Lookup(root string) (any, bool) {
	switch root {
	case "data":
		return c.Data, true
	case "results":
		return c.Results, true
	case "variables", "vars":
		return c.Variables, true
	case "execution":
		return map[string]any{"id": c.ExecutionID, "workflow_id": c.WorkflowID}, true
	default:
		return nil, false
	}
}
