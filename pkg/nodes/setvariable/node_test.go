package setvariable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
)

func TestExecuteSetsVariables(t *testing.T) {
	node, err := NewNode(map[string]any{
		"variables": map[string]any{
			"greeting": "hello {{data.name}}",
			"attempts": 3,
		},
	})
	require.NoError(t, err)

	execCtx := models.NewExecutionContext("e", "w",
		map[string]any{"name": "ada"},
		map[string]any{"existing": "kept"},
	)

	result, err := node.Execute(context.Background(), execCtx)
	require.NoError(t, err)

	assert.Equal(t, "hello ada", execCtx.Variables["greeting"])
	assert.Equal(t, 3, execCtx.Variables["attempts"])
	assert.Equal(t, "kept", execCtx.Variables["existing"])
	assert.Contains(t, result, "variables")
}

func TestNewNodeRequiresVariables(t *testing.T) {
	_, err := NewNode(map[string]any{})
	require.Error(t, err)

	_, err = NewNode(map[string]any{"variables": map[string]any{}})
	require.Error(t, err)
}
