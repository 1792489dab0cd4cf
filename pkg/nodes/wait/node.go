// Package wait provides a node that pauses the execution for a fixed
// duration. The pause honors execution cancellation and timeout.
package wait

import (
	"context"
	"errors"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/protocol"
)

const maxWaitSeconds = 3600

type Node struct {
	duration time.Duration
}

func NewNode(config map[string]any) (*Node, error) {
	seconds, ok := config["duration_seconds"].(float64)
	if !ok {
		if whole, isInt := config["duration_seconds"].(int); isInt {
			seconds, ok = float64(whole), true
		}
	}

	if !ok || seconds <= 0 {
		return nil, errors.New("missing or invalid field 'duration_seconds'")
	}

	if seconds > maxWaitSeconds {
		return nil, errors.New("'duration_seconds' exceeds the one hour maximum")
	}

	return &Node{duration: time.Duration(seconds * float64(time.Second))}, nil
}

func (n *Node) Execute(ctx context.Context, _ *models.ExecutionContext) (map[string]any, error) {
	timer := time.NewTimer(n.duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	return map[string]any{
		"waited_seconds": n.duration.Seconds(),
	}, nil
}

// Factory creates wait node instances.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Type() string {
	return "wait"
}

func (f *Factory) Category() models.NodeCategory {
	return models.CategoryAction
}

func (f *Factory) Description() string {
	return "Pauses the execution for a fixed number of seconds before continuing."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration_seconds": map[string]any{
				"type":        "number",
				"description": "How long to pause, in seconds.",
				"minimum":     0.001,
				"maximum":     maxWaitSeconds,
			},
		},
		"required":             []string{"duration_seconds"},
		"additionalProperties": false,
	}
}

func (f *Factory) Create(config map[string]any) (protocol.Node, error) {
	return NewNode(config)
}
