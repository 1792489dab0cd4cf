package registry

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
)

func testRegistry() *Registry {
	r := NewRegistry(slog.Default())
	RegisterDefaults(r, slog.Default(), nil)

	return r
}

func TestResolveUnknownType(t *testing.T) {
	r := testRegistry()

	_, err := r.Resolve("teleport")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownNodeType)
}

func TestCreateValidatesConfig(t *testing.T) {
	r := testRegistry()

	_, err := r.Create(&models.WorkflowNode{
		ID:   "fetch",
		Type: "http_request",
		Config: map[string]any{
			"method": "GET",
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidNodeConfig)

	node, err := r.Create(&models.WorkflowNode{
		ID:   "fetch",
		Type: "http_request",
		Config: map[string]any{
			"url": "https://example.com",
		},
	})
	require.NoError(t, err)
	assert.NotNil(t, node)
}

func TestValidateConfigRejectsUnknownFields(t *testing.T) {
	r := testRegistry()

	err := r.ValidateConfig("wait", map[string]any{
		"duration_seconds": float64(2),
		"bogus":            true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidNodeConfig)
}

func TestNodeTypesListsAllDefaults(t *testing.T) {
	infos := testRegistry().NodeTypes()

	types := make(map[string]models.NodeCategory, len(infos))
	for _, info := range infos {
		types[info.Type] = info.Category
	}

	assert.Equal(t, models.CategoryTrigger, types[models.NodeTypeTriggerManual])
	assert.Equal(t, models.CategoryAction, types["http_request"])
	assert.Equal(t, models.CategoryCondition, types["condition"])
	assert.Equal(t, models.CategoryIntegration, types["slack"])
	assert.Equal(t, models.CategoryIntegration, types["run_test"])
	assert.Len(t, infos, 15)
}

func TestHealthCheck(t *testing.T) {
	empty := NewRegistry(slog.Default())

	_, healthy := empty.HealthCheck()
	assert.False(t, healthy)

	message, healthy := testRegistry().HealthCheck()
	assert.True(t, healthy)
	assert.Contains(t, message, "15")
}
