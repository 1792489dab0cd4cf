// Package trigger provides the entry-point node types for workflow graphs.
// Trigger nodes do not perform work; they mark where an execution starts and
// hand the trigger payload to downstream nodes.
package trigger

import (
	"context"
	"maps"

	"github.com/cascadehq/cascade/pkg/models"
)

// TriggerNode is the executable placeholder for all trigger node types. Its
// result is the trigger payload, so downstream nodes can reference it through
// the node's result entry as well as through the context data.
type TriggerNode struct {
	triggerType string
}

func NewTriggerNode(triggerType string) *TriggerNode {
	return &TriggerNode{triggerType: triggerType}
}

func (n *TriggerNode) Execute(_ context.Context, execCtx *models.ExecutionContext) (map[string]any, error) {
	// The result merges back into the context data; echoing the live map
	// would make Data reference itself and break serialization.
	return map[string]any{
		"trigger_type": n.triggerType,
		"payload":      maps.Clone(execCtx.Data),
	}, nil
}
