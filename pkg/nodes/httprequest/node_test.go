package httprequest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
)

func testContext() *models.ExecutionContext {
	return models.NewExecutionContext("exec-1", "wf-1",
		map[string]any{"user_id": "u-42"},
		map[string]any{"api_key": "test-key"},
	)
}

func TestExecuteRendersTemplatesAndDecodesJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/u-42", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "u-42", "active": true}`))
	}))
	defer server.Close()

	node, err := NewNode(map[string]any{
		"url": server.URL + "/users/{{data.user_id}}",
		"headers": map[string]any{
			"Authorization": "Bearer {{variables.api_key}}",
		},
	})
	require.NoError(t, err)

	result, err := node.Execute(context.Background(), testContext())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, result["status_code"])
	assert.Equal(t, map[string]any{"id": "u-42", "active": true}, result["body"])
}

func TestExecutePostSendsBody(t *testing.T) {
	var received string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		received = string(buf)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	node, err := NewNode(map[string]any{
		"url":    server.URL,
		"method": "post",
		"body":   `{"user": "{{data.user_id}}"}`,
	})
	require.NoError(t, err)

	result, err := node.Execute(context.Background(), testContext())
	require.NoError(t, err)

	assert.Equal(t, `{"user": "u-42"}`, received)
	assert.Equal(t, http.StatusCreated, result["status_code"])
}

func TestExecuteErrorStatusStillReturnsOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	node, err := NewNode(map[string]any{"url": server.URL})
	require.NoError(t, err)

	result, err := node.Execute(context.Background(), testContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHTTPStatus)
	assert.Equal(t, http.StatusInternalServerError, result["status_code"])
}

func TestNewNodeRequiresURL(t *testing.T) {
	_, err := NewNode(map[string]any{"method": "GET"})
	require.Error(t, err)
}
