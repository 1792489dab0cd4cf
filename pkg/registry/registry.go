// Package registry maps node-type tags to their handler factories and
// validates node configurations against each type's declared schema.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/protocol"
)

// ErrUnknownNodeType is returned when a node type has no registered factory.
// At execution time this is fatal for that execution only.
var ErrUnknownNodeType = errors.New("unknown node type")

// ErrInvalidNodeConfig wraps schema validation failures.
var ErrInvalidNodeConfig = errors.New("invalid node configuration")

// NodeTypeInfo describes one registered node type. Served by the API and fed
// into the AI generator's system prompt.
type NodeTypeInfo struct {
	Type        string              `json:"type"`
	Category    models.NodeCategory `json:"category"`
	Description string              `json:"description"`
	Schema      map[string]any      `json:"schema"`
}

type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.NodeFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "registry"),
		factories: make(map[string]protocol.NodeFactory),
	}
}

// Register adds a factory, replacing any previous registration for the type.
func (r *Registry) Register(factory protocol.NodeFactory) {
	r.factories[factory.Type()] = factory
}

// Resolve returns the factory for a node type.
func (r *Registry) Resolve(nodeType string) (protocol.NodeFactory, error) {
	factory, ok := r.factories[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}

	return factory, nil
}

// Create validates the node's configuration against its type schema and
// builds a handler instance.
func (r *Registry) Create(node *models.WorkflowNode) (protocol.Node, error) {
	factory, err := r.Resolve(node.Type)
	if err != nil {
		return nil, err
	}

	if err := r.validate(factory, node.Config); err != nil {
		return nil, fmt.Errorf("node %q: %w", node.ID, err)
	}

	return factory.Create(node.Config)
}

// ValidateConfig checks a configuration against the schema declared for the
// node type. Used at definition-save time and on generated graphs.
func (r *Registry) ValidateConfig(nodeType string, config map[string]any) error {
	factory, err := r.Resolve(nodeType)
	if err != nil {
		return err
	}

	return r.validate(factory, config)
}

func (r *Registry) validate(factory protocol.NodeFactory, config map[string]any) error {
	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidNodeConfig, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, issue := range result.Errors() {
			details = append(details, issue.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidNodeConfig, strings.Join(details, "; "))
	}

	return nil
}

// NodeTypes lists all registered node types.
func (r *Registry) NodeTypes() []NodeTypeInfo {
	infos := make([]NodeTypeInfo, 0, len(r.factories))

	for _, factory := range r.factories {
		infos = append(infos, NodeTypeInfo{
			Type:        factory.Type(),
			Category:    factory.Category(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	return infos
}

// HealthCheck reports whether the registry has node types registered.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.factories) == 0 {
		return "no node types registered", false
	}

	return fmt.Sprintf("%d node types registered", len(r.factories)), true
}
