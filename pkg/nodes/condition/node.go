// Package condition provides the branching node. Its expression is evaluated
// against the execution context and the engine routes the execution through
// the matching true or false edges.
package condition

import (
	"context"
	"errors"
	"fmt"

	"github.com/cascadehq/cascade/pkg/expr"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/protocol"
)

// ResultKey is the output field holding the evaluated boolean. The engine
// reads it to pick the outgoing edges.
const ResultKey = "condition_met"

type Node struct {
	condition string
}

func NewNode(config map[string]any) (*Node, error) {
	condition, ok := config["condition"].(string)
	if !ok || condition == "" {
		return nil, errors.New("missing required field 'condition'")
	}

	// Reject malformed expressions at build time rather than mid-run.
	if _, err := expr.Parse(condition); err != nil {
		return nil, fmt.Errorf("invalid condition: %w", err)
	}

	return &Node{condition: condition}, nil
}

func (n *Node) Execute(_ context.Context, execCtx *models.ExecutionContext) (map[string]any, error) {
	met, err := expr.Evaluate(n.condition, execCtx)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		ResultKey:    met,
		"expression": n.condition,
	}, nil
}

// Factory creates condition node instances.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Type() string {
	return "condition"
}

func (f *Factory) Category() models.NodeCategory {
	return models.CategoryCondition
}

func (f *Factory) Description() string {
	return "Evaluates a boolean expression over the execution context and routes the run through its true or false branch."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Boolean expression over data, results and variables.",
				"minLength":   1,
				"examples": []string{
					`results.fetch.status_code == 200`,
					`data.priority == "high" && variables.alerts_enabled`,
				},
			},
		},
		"required":             []string{"condition"},
		"additionalProperties": false,
	}
}

func (f *Factory) Create(config map[string]any) (protocol.Node, error) {
	return NewNode(config)
}
