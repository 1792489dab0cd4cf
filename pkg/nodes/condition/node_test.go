package condition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
)

func TestExecuteEvaluatesExpression(t *testing.T) {
	node, err := NewNode(map[string]any{
		"condition": `results.fetch.status_code == 200 && data.env == "prod"`,
	})
	require.NoError(t, err)

	execCtx := models.NewExecutionContext("e", "w", map[string]any{"env": "prod"}, nil)
	execCtx.Results["fetch"] = map[string]any{"status_code": 200}

	result, err := node.Execute(context.Background(), execCtx)
	require.NoError(t, err)
	assert.Equal(t, true, result[ResultKey])

	execCtx.Results["fetch"] = map[string]any{"status_code": 500}

	result, err = node.Execute(context.Background(), execCtx)
	require.NoError(t, err)
	assert.Equal(t, false, result[ResultKey])
}

func TestNewNodeRejectsMalformedExpression(t *testing.T) {
	_, err := NewNode(map[string]any{"condition": "data.count >"})
	require.Error(t, err)
}

func TestNewNodeRequiresCondition(t *testing.T) {
	_, err := NewNode(map[string]any{})
	require.Error(t, err)

	_, err = NewNode(map[string]any{"condition": ""})
	require.Error(t, err)
}
