// Package setvariable provides a node that writes values into the execution's
// shared variable map. Later nodes see the updated values.
package setvariable

import (
	"context"
	"errors"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/protocol"
	"github.com/cascadehq/cascade/pkg/template"
)

type Node struct {
	variables map[string]any
}

func NewNode(config map[string]any) (*Node, error) {
	variables, ok := config["variables"].(map[string]any)
	if !ok || len(variables) == 0 {
		return nil, errors.New("missing or empty field 'variables'")
	}

	return &Node{variables: variables}, nil
}

func (n *Node) Execute(_ context.Context, execCtx *models.ExecutionContext) (map[string]any, error) {
	rendered, err := template.RenderConfig(n.variables, execCtx)
	if err != nil {
		return nil, err
	}

	for name, value := range rendered {
		execCtx.Variables[name] = value
	}

	return map[string]any{"variables": rendered}, nil
}

// Factory creates set-variable node instances.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Type() string {
	return "set_variable"
}

func (f *Factory) Category() models.NodeCategory {
	return models.CategoryAction
}

func (f *Factory) Description() string {
	return "Sets one or more execution variables. Values support templating and are visible to all downstream nodes."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"variables": map[string]any{
				"type":        "object",
				"description": "Variable names mapped to their new values. Values support templating.",
				"minProperties": 1,
				"examples": []map[string]any{
					{"retry_count": 0, "api_base": "{{data.base_url}}"},
				},
			},
		},
		"required":             []string{"variables"},
		"additionalProperties": false,
	}
}

func (f *Factory) Create(config map[string]any) (protocol.Node, error) {
	return NewNode(config)
}
