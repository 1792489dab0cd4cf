package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
)

func testContext() *models.ExecutionContext {
	ctx := models.NewExecutionContext("exec-1", "wf-1",
		map[string]any{"user": "ada", "count": float64(2)},
		map[string]any{"base_url": "https://api.example.com"},
	)
	ctx.Results["fetch"] = map[string]any{
		"status_code": 200,
		"body":        map[string]any{"id": "abc", "tags": []any{"a", "b"}},
	}

	return ctx
}

func TestRenderSinglePlaceholderPreservesType(t *testing.T) {
	ctx := testContext()

	value, err := Render("{{results.fetch.status_code}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, value)

	value, err = Render("{{results.fetch.body}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "abc", "tags": []any{"a", "b"}}, value)
}

func TestRenderMixedString(t *testing.T) {
	ctx := testContext()

	value, err := Render("{{variables.base_url}}/users/{{data.user}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/users/ada", value)
}

func TestRenderMissingPathIsEmpty(t *testing.T) {
	ctx := testContext()

	value, err := Render("hello {{data.nope}}!", ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello !", value)
}

func TestRenderUnknownRoot(t *testing.T) {
	_, err := Render("{{env.SECRET}}", testContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownRoot)
}

func TestRenderConfigDeep(t *testing.T) {
	ctx := testContext()

	rendered, err := RenderConfig(map[string]any{
		"url": "{{variables.base_url}}/items",
		"headers": map[string]any{
			"X-User": "{{data.user}}",
		},
		"limit": 5,
		"tags":  []any{"{{data.user}}", "static"},
	}, ctx)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/items", rendered["url"])
	assert.Equal(t, map[string]any{"X-User": "ada"}, rendered["headers"])
	assert.Equal(t, 5, rendered["limit"])
	assert.Equal(t, []any{"ada", "static"}, rendered["tags"])
}

func TestRenderNoPlaceholders(t *testing.T) {
	value, err := Render("plain text", testContext())
	require.NoError(t, err)
	assert.Equal(t, "plain text", value)
}
