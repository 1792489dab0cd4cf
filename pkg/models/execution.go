package models

import "time"

// ExecutionStatus is the execution-level state machine:
// pending -> queued -> running -> {completed | failed | stopped | timeout}.
// "waiting" marks an execution parked on a wait node. Terminal states have
// no outgoing transitions.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusQueued    ExecutionStatus = "queued"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusStopped   ExecutionStatus = "stopped"
	ExecutionStatusWaiting   ExecutionStatus = "waiting"
	ExecutionStatusTimeout   ExecutionStatus = "timeout"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusStopped, ExecutionStatusTimeout:
		return true
	default:
		return false
	}
}

// Execution is one run instance of a workflow.
type Execution struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflow_id"    validate:"required"`
	Status         ExecutionStatus `json:"status"`
	TriggerSource  TriggerType     `json:"trigger_source"`
	TriggerPayload map[string]any  `json:"trigger_payload,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMs int64      `json:"duration_ms"`

	NodesTotal     int `json:"nodes_total"`
	NodesCompleted int `json:"nodes_completed"`
	NodesFailed    int `json:"nodes_failed"`
	NodesSkipped   int `json:"nodes_skipped"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorNodeID  string `json:"error_node_id,omitempty"`
	ErrorStack   string `json:"error_stack,omitempty"`
	RetryCount   int    `json:"retry_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StepStatus is the per-node state within one execution.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusWaiting   StepStatus = "waiting"
)

// ExecutionStep records one node visit within one execution.
type ExecutionStep struct {
	ID          string     `json:"id"`
	ExecutionID string     `json:"execution_id" validate:"required"`
	NodeID      string     `json:"node_id"      validate:"required"`
	NodeType    string     `json:"node_type"`
	NodeName    string     `json:"node_name,omitempty"`
	Order       int        `json:"order"`
	Status      StepStatus `json:"status"`

	Input  map[string]any `json:"input,omitempty"`
	Output map[string]any `json:"output,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	RetryCount   int    `json:"retry_count"`

	// Node-type specific fields.
	ConditionMet   *bool `json:"condition_met,omitempty"`
	HTTPStatusCode *int  `json:"http_status_code,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
