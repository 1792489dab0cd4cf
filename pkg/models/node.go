package models

// NodeCategory represents the execution role of a node.
type NodeCategory string

const (
	CategoryTrigger     NodeCategory = "trigger"     // Entry point only, never dispatched
	CategoryAction      NodeCategory = "action"      // Result merged into context data
	CategoryCondition   NodeCategory = "condition"   // Routes true/false, result not merged
	CategoryIntegration NodeCategory = "integration" // External system call, credential-backed
)

// Built-in trigger node types.
const (
	NodeTypeTriggerManual   = "trigger:manual"
	NodeTypeTriggerSchedule = "trigger:schedule"
	NodeTypeTriggerWebhook  = "trigger:webhook"
	NodeTypeTriggerEvent    = "trigger:event"
)

// Edge labels used by condition nodes to select a branch.
const (
	EdgeLabelTrue  = "true"
	EdgeLabelFalse = "false"
)

// Position is the node's 2D layout position. Display only, no execution semantics.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// WorkflowEdge connects a node to a downstream node. An edge may carry a
// guard condition evaluated against the execution context, and a label used
// by condition nodes to pick the true/false branch.
type WorkflowEdge struct {
	Target    string `json:"target"              validate:"required"`
	Condition string `json:"condition,omitempty"`
	Label     string `json:"label,omitempty"`
}

// WorkflowNode represents a node instance in a workflow graph.
type WorkflowNode struct {
	ID       string         `json:"id"       validate:"required"`
	Type     string         `json:"type"     validate:"required"`
	Category NodeCategory   `json:"category" validate:"required"`
	Name     string         `json:"name"`
	Config   map[string]any `json:"config,omitempty"`
	Position Position       `json:"position"`
	Next     []WorkflowEdge `json:"next,omitempty"`
}

func (n *WorkflowNode) IsTriggerNode() bool {
	return n.Category == CategoryTrigger
}

func (n *WorkflowNode) IsConditionNode() bool {
	return n.Category == CategoryCondition
}
