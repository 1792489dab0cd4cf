// Package runtest provides the integration node that starts a test run in an
// external test-management service and reports the run it created.
package runtest

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes/integration"
	"github.com/cascadehq/cascade/pkg/protocol"
	"github.com/cascadehq/cascade/pkg/template"
)

type Node struct {
	credentials  protocol.CredentialSource
	client       *http.Client
	credentialID string
	suiteID      string
	environment  string
	runName      string
}

func NewNode(credentials protocol.CredentialSource, config map[string]any) (*Node, error) {
	credentialID, err := integration.CredentialID(config)
	if err != nil {
		return nil, err
	}

	suiteID, ok := config["suite_id"].(string)
	if !ok || suiteID == "" {
		return nil, errors.New("missing required field 'suite_id'")
	}

	environment, _ := config["environment"].(string)
	runName, _ := config["run_name"].(string)

	return &Node{
		credentials:  credentials,
		client:       integration.NewClient(),
		credentialID: credentialID,
		suiteID:      suiteID,
		environment:  environment,
		runName:      runName,
	}, nil
}

func (n *Node) Execute(ctx context.Context, execCtx *models.ExecutionContext) (map[string]any, error) {
	suiteID, err := template.RenderString(n.suiteID, execCtx)
	if err != nil {
		return nil, err
	}

	runName, err := template.RenderString(n.runName, execCtx)
	if err != nil {
		return nil, err
	}

	fields, err := integration.Resolve(ctx, n.credentials, n.credentialID)
	if err != nil {
		return nil, err
	}

	baseURL, err := integration.Field(fields, "base_url")
	if err != nil {
		return nil, err
	}

	apiToken, err := integration.Field(fields, "api_token")
	if err != nil {
		return nil, err
	}

	headers := map[string]string{"Authorization": "Bearer " + apiToken}

	payload := map[string]any{
		"suite_id": suiteID,
		"source":   "workflow",
	}
	if n.environment != "" {
		payload["environment"] = n.environment
	}
	if runName != "" {
		payload["name"] = runName
	}

	url := strings.TrimRight(baseURL, "/") + "/api/v1/test-runs"

	status, body, err := integration.PostJSON(ctx, n.client, url, headers, payload)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK && status != http.StatusCreated {
		return nil, integration.StatusError("test run", status)
	}

	return map[string]any{
		"run_id":   body["id"],
		"status":   body["status"],
		"suite_id": suiteID,
	}, nil
}

// Factory creates test-run node instances.
type Factory struct {
	credentials protocol.CredentialSource
}

func NewFactory(credentials protocol.CredentialSource) *Factory {
	return &Factory{credentials: credentials}
}

func (f *Factory) Type() string {
	return "run_test"
}

func (f *Factory) Category() models.NodeCategory {
	return models.CategoryIntegration
}

func (f *Factory) Description() string {
	return "Starts a test run for a suite in the connected test-management service."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"credential_id": map[string]any{
				"type":        "string",
				"description": "Stored credential with base_url and api_token.",
				"minLength":   1,
			},
			"suite_id": map[string]any{
				"type":        "string",
				"description": "Test suite to run. Supports templating.",
				"minLength":   1,
			},
			"environment": map[string]any{
				"type":        "string",
				"description": "Environment name passed to the run.",
				"examples":    []string{"staging", "production"},
			},
			"run_name": map[string]any{
				"type":        "string",
				"description": "Optional run label. Supports templating.",
			},
		},
		"required":             []string{"credential_id", "suite_id"},
		"additionalProperties": false,
	}
}

func (f *Factory) Create(config map[string]any) (protocol.Node, error) {
	return NewNode(f.credentials, config)
}
