// Package lognode provides a node that writes a templated message to the
// service log, tagged with the execution it belongs to.
package lognode

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/protocol"
	"github.com/cascadehq/cascade/pkg/template"
)

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

type Node struct {
	logger  *slog.Logger
	message string
	level   slog.Level
}

func NewNode(logger *slog.Logger, config map[string]any) (*Node, error) {
	message, ok := config["message"].(string)
	if !ok || message == "" {
		return nil, errors.New("missing required field 'message'")
	}

	level := slog.LevelInfo

	if name, ok := config["level"].(string); ok && name != "" {
		parsed, known := levels[strings.ToLower(name)]
		if !known {
			return nil, errors.New("unknown log level " + name)
		}

		level = parsed
	}

	return &Node{logger: logger, message: message, level: level}, nil
}

func (n *Node) Execute(ctx context.Context, execCtx *models.ExecutionContext) (map[string]any, error) {
	message, err := template.RenderString(n.message, execCtx)
	if err != nil {
		return nil, err
	}

	n.logger.Log(ctx, n.level, message,
		"execution_id", execCtx.ExecutionID,
		"workflow_id", execCtx.WorkflowID,
	)

	return map[string]any{"message": message}, nil
}

// Factory creates log node instances bound to the service logger.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{logger: logger.With("module", "log_node")}
}

func (f *Factory) Type() string {
	return "log"
}

func (f *Factory) Category() models.NodeCategory {
	return models.CategoryAction
}

func (f *Factory) Description() string {
	return "Writes a templated message to the service log at a chosen level."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating.",
				"minLength":   1,
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level.",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "error"},
			},
		},
		"required":             []string{"message"},
		"additionalProperties": false,
	}
}

func (f *Factory) Create(config map[string]any) (protocol.Node, error) {
	return NewNode(f.logger, config)
}
