// Package models defines the core domain models for graph-based workflow automation.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, not executable
	WorkflowStatusActive   WorkflowStatus = "active"   // Executable by triggers and schedules
	WorkflowStatusInactive WorkflowStatus = "inactive" // Temporarily disabled
	WorkflowStatusArchived WorkflowStatus = "archived" // Soft-deleted, kept for execution history
)

// TriggerType identifies how a workflow execution is started.
type TriggerType string

const (
	TriggerTypeManual   TriggerType = "manual"
	TriggerTypeSchedule TriggerType = "schedule"
	TriggerTypeWebhook  TriggerType = "webhook"
	TriggerTypeEvent    TriggerType = "event"
)

// RetryPolicy controls per-node retry behavior during an execution.
type RetryPolicy struct {
	MaxRetries        int     `json:"max_retries"        validate:"gte=0,lte=10"`
	DelaySeconds      float64 `json:"delay_seconds"      validate:"gte=0"`
	BackoffMultiplier float64 `json:"backoff_multiplier" validate:"gte=1"`
}

// ErrorPolicy decides what happens when a node exhausts its retries.
type ErrorPolicy string

const (
	ErrorPolicyStop     ErrorPolicy = "stop"     // Fail the whole execution (default)
	ErrorPolicyContinue ErrorPolicy = "continue" // Skip the failed branch, keep traversing
)

// Workflow represents a directed-graph workflow definition.
type Workflow struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"           validate:"required,min=3"`
	Description   string          `json:"description"`
	Status        WorkflowStatus  `json:"status"         validate:"required"`
	TriggerType   TriggerType     `json:"trigger_type"   validate:"required"`
	TriggerConfig map[string]any  `json:"trigger_config,omitempty"`
	WebhookToken  string          `json:"webhook_token,omitempty"`
	Nodes         []*WorkflowNode `json:"nodes"`
	Variables     map[string]any  `json:"variables,omitempty"`

	TimeoutSeconds int         `json:"timeout_seconds"`
	Retry          RetryPolicy `json:"retry"`
	OnError        ErrorPolicy `json:"on_error"`

	TotalExecutions   int64   `json:"total_executions"`
	SuccessExecutions int64   `json:"success_executions"`
	FailedExecutions  int64   `json:"failed_executions"`
	AvgDurationMs     float64 `json:"avg_duration_ms"`

	Owner      string     `json:"owner,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// DefaultTimeoutSeconds bounds executions whose definition does not set one.
const DefaultTimeoutSeconds = 300

// Timeout returns the execution deadline for this definition.
func (w *Workflow) Timeout() time.Duration {
	seconds := w.TimeoutSeconds
	if seconds <= 0 {
		seconds = DefaultTimeoutSeconds
	}

	return time.Duration(seconds) * time.Second
}

// TriggerNode returns the workflow's single trigger node, or nil when the
// graph has none. Graphs with zero or multiple triggers fail Validate.
func (w *Workflow) TriggerNode() *WorkflowNode {
	for _, node := range w.Nodes {
		if node.IsTriggerNode() {
			return node
		}
	}

	return nil
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// IsExecutable reports whether triggers may start new executions.
func (w *Workflow) IsExecutable() bool {
	return w.Status == WorkflowStatusActive
}
