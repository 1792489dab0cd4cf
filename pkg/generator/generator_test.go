package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/registry"
)

type cannedClient struct {
	response string
}

func (c *cannedClient) Complete(_ context.Context, _ string, _ string) (string, error) {
	return c.response, nil
}

func testGenerator(response string) *Generator {
	reg := registry.NewRegistry(slog.Default())
	registry.RegisterDefaults(reg, slog.Default(), nil)

	return NewGenerator(slog.Default(), &cannedClient{response: response}, reg)
}

func TestGenerateStripsMarkdownFences(t *testing.T) {
	response := "```json\n" + `{
		"name": "Notify on failure",
		"trigger_type": "manual",
		"nodes": [
			{"id": "start", "type": "trigger:manual", "next": [{"target": "notify"}]},
			{"id": "notify", "type": "log", "config": {"message": "failed"}}
		]
	}` + "\n```"

	workflow, warnings, err := testGenerator(response).Generate(context.Background(), "notify me")
	require.NoError(t, err)

	assert.Equal(t, "Notify on failure", workflow.Name)
	assert.Equal(t, models.WorkflowStatusDraft, workflow.Status)
	assert.Len(t, workflow.Nodes, 2)
	assert.Empty(t, warnings)
}

func TestGenerateSynthesizesMissingTrigger(t *testing.T) {
	response := `{
		"name": "No trigger",
		"trigger_type": "webhook",
		"nodes": [
			{"id": "notify", "type": "log", "config": {"message": "hello"}}
		]
	}`

	workflow, warnings, err := testGenerator(response).Generate(context.Background(), "hello")
	require.NoError(t, err)

	trigger := workflow.TriggerNode()
	require.NotNil(t, trigger)
	assert.Equal(t, "trigger:webhook", trigger.Type)
	assert.NotEmpty(t, warnings)

	// The orphaned node gets connected to the synthesized trigger.
	require.NoError(t, workflow.ValidateGraph())
}

func TestGenerateDropsExtrasAndDanglingEdges(t *testing.T) {
	response := `{
		"name": "Messy draft",
		"trigger_type": "manual",
		"nodes": [
			{"id": "start", "type": "trigger:manual", "next": [{"target": "step"}]},
			{"id": "second_start", "type": "trigger:manual"},
			{"id": "step", "type": "log", "config": {"message": "hi"}, "next": [{"target": "ghost"}]},
			{"id": "alien", "type": "quantum_sync"}
		]
	}`

	workflow, warnings, err := testGenerator(response).Generate(context.Background(), "messy")
	require.NoError(t, err)

	assert.Nil(t, workflow.NodeByID("second_start"))
	assert.Nil(t, workflow.NodeByID("alien"))

	joined := strings.Join(warnings, "\n")
	assert.Contains(t, joined, "extra trigger")
	assert.Contains(t, joined, "unknown type")
	assert.Contains(t, joined, "ghost")

	require.NoError(t, workflow.ValidateGraph())
}

func TestGenerateTruncatesOversizedGraph(t *testing.T) {
	nodes := []map[string]any{
		{"id": "start", "type": "trigger:manual"},
	}
	for i := 0; i < MaxGeneratedNodes+10; i++ {
		nodes = append(nodes, map[string]any{
			"id":     fmt.Sprintf("step_%d", i),
			"type":   "log",
			"config": map[string]any{"message": "x"},
		})
	}

	encoded, err := json.Marshal(map[string]any{
		"name":         "Big",
		"trigger_type": "manual",
		"nodes":        nodes,
	})
	require.NoError(t, err)

	workflow, warnings, err := testGenerator(string(encoded)).Generate(context.Background(), "big")
	require.NoError(t, err)

	assert.LessOrEqual(t, len(workflow.Nodes), MaxGeneratedNodes)
	assert.Contains(t, strings.Join(warnings, "\n"), "truncated")
}

func TestGenerateRejectsNonJSON(t *testing.T) {
	_, _, err := testGenerator("I cannot help with that.").Generate(context.Background(), "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestGenerateRejectsEmptyDescription(t *testing.T) {
	_, _, err := testGenerator("{}").Generate(context.Background(), "   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
}
