package trigger

import (
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/protocol"
)

// Factory registers one trigger node type. The four built-in trigger types
// share the same runtime behavior and differ only in how executions reach the
// queue (manual API call, scheduler, webhook endpoint, bus event).
type Factory struct {
	nodeType    string
	description string
}

func NewManualFactory() *Factory {
	return &Factory{
		nodeType:    models.NodeTypeTriggerManual,
		description: "Starts the workflow when a user or API client requests a run.",
	}
}

func NewScheduleFactory() *Factory {
	return &Factory{
		nodeType:    models.NodeTypeTriggerSchedule,
		description: "Starts the workflow on a cron schedule managed by the scheduler service.",
	}
}

func NewWebhookFactory() *Factory {
	return &Factory{
		nodeType:    models.NodeTypeTriggerWebhook,
		description: "Starts the workflow when its webhook URL receives a POST request.",
	}
}

func NewEventFactory() *Factory {
	return &Factory{
		nodeType:    models.NodeTypeTriggerEvent,
		description: "Starts the workflow when a matching platform event is published.",
	}
}

func (f *Factory) Type() string {
	return f.nodeType
}

func (f *Factory) Category() models.NodeCategory {
	return models.CategoryTrigger
}

func (f *Factory) Description() string {
	return f.description
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description": map[string]any{
				"type":        "string",
				"description": "Optional note shown in the editor next to the trigger.",
			},
		},
		"additionalProperties": true,
	}
}

func (f *Factory) Create(_ map[string]any) (protocol.Node, error) {
	return NewTriggerNode(f.nodeType), nil
}
