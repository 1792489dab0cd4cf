package trigger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
)

func TestExecuteEchoesPayloadCopy(t *testing.T) {
	execCtx := models.NewExecutionContext("ex-1", "wf-1", map[string]any{"order_id": "42"}, nil)
	node := NewTriggerNode(models.NodeTypeTriggerManual)

	output, err := node.Execute(context.Background(), execCtx)
	require.NoError(t, err)
	assert.Equal(t, models.NodeTypeTriggerManual, output["trigger_type"])
	assert.Equal(t, map[string]any{"order_id": "42"}, output["payload"])

	// Merging the output back into the context must keep the data
	// serializable: the payload echo may not alias the live data map.
	execCtx.MergeResult("start", output)

	_, err = json.Marshal(execCtx.Data)
	require.NoError(t, err)

	_, err = json.Marshal(output)
	require.NoError(t, err)
}
