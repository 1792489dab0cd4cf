package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes/integration"
)

type fakeCredentials struct {
	fields map[string]any
}

func (f *fakeCredentials) Credentials(_ context.Context, _ string) (map[string]any, error) {
	return f.fields, nil
}

func TestExecutePostsToWebhook(t *testing.T) {
	var payload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	node, err := NewNode(
		&fakeCredentials{fields: map[string]any{"webhook_url": server.URL}},
		map[string]any{
			"credential_id": "cred-1",
			"message":       "run {{data.run_id}} finished",
		},
	)
	require.NoError(t, err)

	execCtx := models.NewExecutionContext("e", "w", map[string]any{"run_id": "r-7"}, nil)

	result, err := node.Execute(context.Background(), execCtx)
	require.NoError(t, err)

	assert.Equal(t, "run r-7 finished", payload["text"])
	assert.Equal(t, true, result["delivered"])
}

func TestExecuteWebhookFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	node, err := NewNode(
		&fakeCredentials{fields: map[string]any{"webhook_url": server.URL}},
		map[string]any{"credential_id": "cred-1", "message": "hi"},
	)
	require.NoError(t, err)

	_, err = node.Execute(context.Background(), models.NewExecutionContext("e", "w", nil, nil))
	require.Error(t, err)
}

func TestNewNodeRequiresCredentialAndMessage(t *testing.T) {
	_, err := NewNode(nil, map[string]any{"message": "hi"})
	assert.ErrorIs(t, err, integration.ErrMissingCredential)

	_, err = NewNode(nil, map[string]any{"credential_id": "c"})
	assert.Error(t, err)
}
