// Package transform provides a node that reshapes context data into a new
// structure using templated field mappings.
package transform

import (
	"context"
	"errors"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/protocol"
	"github.com/cascadehq/cascade/pkg/template"
)

type Node struct {
	mapping map[string]any
}

func NewNode(config map[string]any) (*Node, error) {
	mapping, ok := config["mapping"].(map[string]any)
	if !ok || len(mapping) == 0 {
		return nil, errors.New("missing or empty field 'mapping'")
	}

	return &Node{mapping: mapping}, nil
}

// Execute renders every mapping entry against the execution context. Single
// placeholder values keep their original type, so structured data survives
// the reshaping.
func (n *Node) Execute(_ context.Context, execCtx *models.ExecutionContext) (map[string]any, error) {
	return template.RenderConfig(n.mapping, execCtx)
}

// Factory creates transform node instances.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Type() string {
	return "transform"
}

func (f *Factory) Category() models.NodeCategory {
	return models.CategoryAction
}

func (f *Factory) Description() string {
	return "Builds a new data structure from templated field mappings over the execution context."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mapping": map[string]any{
				"type":          "object",
				"description":   "Output field names mapped to template expressions.",
				"minProperties": 1,
				"examples": []map[string]any{
					{
						"user_id": "{{results.fetch_user.body.id}}",
						"label":   "{{data.env}}-report",
					},
				},
			},
		},
		"required":             []string{"mapping"},
		"additionalProperties": false,
	}
}

func (f *Factory) Create(config map[string]any) (protocol.Node, error) {
	return NewNode(config)
}
