// Package protocol defines the interfaces and contracts for pluggable nodes.
package protocol

import (
	"context"

	"github.com/cascadehq/cascade/pkg/models"
)

// Node is one executable handler instance, created from a workflow node's
// configuration. Execute receives the shared execution context; the returned
// map is the node's result. The engine decides whether the result is merged
// into the context data (actions, integrations) or only recorded
// (conditions).
type Node interface {
	Execute(ctx context.Context, execCtx *models.ExecutionContext) (map[string]any, error)
}

// NodeFactory creates node instances and describes the node type.
type NodeFactory interface {
	// Type returns the unique node-type tag, e.g. "http_request".
	Type() string

	// Category returns the execution role of nodes of this type.
	Category() models.NodeCategory

	// Description returns a human-readable description of the node type.
	Description() string

	// Schema returns the JSON Schema its configuration is validated
	// against at definition-save and generation time.
	Schema() map[string]any

	// Create builds a node instance from a raw configuration map.
	Create(config map[string]any) (Node, error)
}

// CredentialSource resolves decrypted credential fields for integration
// nodes. Implementations decrypt transiently per invocation; callers must
// not retain or log the returned map.
type CredentialSource interface {
	Credentials(ctx context.Context, credentialID string) (map[string]any, error)
}
