// Package events defines the messages exchanged over the execution bus.
// Trigger firing and execution running are decoupled: producers (API,
// scheduler, webhook endpoint) only ever enqueue, and workers pick
// executions up from the bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the bus topic all execution lifecycle events flow through.
const Topic = "cascade.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionQueuedEvent        EventType = "execution.queued"
	ExecutionStartedEvent       EventType = "execution.started"
	ExecutionCompletedEvent     EventType = "execution.completed"
	ExecutionFailedEvent        EventType = "execution.failed"
	ExecutionStopRequestedEvent EventType = "execution.stop_requested"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// ExecutionQueued is published when an execution is created and waiting for a
// worker. It carries only identifiers; workers load the workflow snapshot and
// trigger payload from persistence.
type ExecutionQueued struct {
	BaseEvent

	ExecutionID   string `json:"execution_id"`
	TriggerSource string `json:"trigger_source"`
}

func (e ExecutionQueued) GetType() EventType {
	return ExecutionQueuedEvent
}

// ExecutionStarted is published by the worker that claimed an execution.
type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID    string `json:"execution_id"`
	DurationMs     int64  `json:"duration_ms"`
	NodesCompleted int    `json:"nodes_completed"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

// ExecutionStopRequested asks whichever worker is running the execution to
// stop it between nodes. Workers not running it ignore the event.
type ExecutionStopRequested struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionStopRequested) GetType() EventType {
	return ExecutionStopRequestedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id,omitempty"`
	Error       string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}
