package wait

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
)

func TestExecuteWaitsForDuration(t *testing.T) {
	node, err := NewNode(map[string]any{"duration_seconds": 0.05})
	require.NoError(t, err)

	start := time.Now()
	result, err := node.Execute(context.Background(), models.NewExecutionContext("e", "w", nil, nil))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 0.05, result["waited_seconds"])
}

func TestExecuteCancelled(t *testing.T) {
	node, err := NewNode(map[string]any{"duration_seconds": float64(30)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = node.Execute(ctx, models.NewExecutionContext("e", "w", nil, nil))
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewNodeRejectsInvalidDuration(t *testing.T) {
	for _, config := range []map[string]any{
		{},
		{"duration_seconds": float64(0)},
		{"duration_seconds": float64(-1)},
		{"duration_seconds": float64(7200)},
		{"duration_seconds": "ten"},
	} {
		_, err := NewNode(config)
		assert.Error(t, err, "config %v", config)
	}
}
