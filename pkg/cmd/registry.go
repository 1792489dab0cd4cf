package cmd

import (
	"log/slog"

	"github.com/cascadehq/cascade/pkg/protocol"
	"github.com/cascadehq/cascade/pkg/registry"
)

// NewRegistry builds the node registry with every built-in node type.
func NewRegistry(logger *slog.Logger, credentials protocol.CredentialSource) *registry.Registry {
	reg := registry.NewRegistry(logger)
	registry.RegisterDefaults(reg, logger, credentials)

	return reg
}
