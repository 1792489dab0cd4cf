// Package jira provides the Jira issue-creation integration node.
package jira

import (
	"context"
	"encoding/base64"
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
	projectKey   string
	issueType    string
	summary      string
	description  string
}

func NewNode(credentials protocol.CredentialSource, config map[string]any) (*Node, error) {
	credentialID, err := integration.CredentialID(config)
	if err != nil {
		return nil, err
	}

	projectKey, ok := config["project_key"].(string)
	if !ok || projectKey == "" {
		return nil, errors.New("missing required field 'project_key'")
	}

	summary, ok := config["summary"].(string)
	if !ok || summary == "" {
		return nil, errors.New("missing required field 'summary'")
	}

	issueType, _ := config["issue_type"].(string)
	if issueType == "" {
		issueType = "Task"
	}

	description, _ := config["description"].(string)

	return &Node{
		credentials:  credentials,
		client:       integration.NewClient(),
		credentialID: credentialID,
		projectKey:   projectKey,
		issueType:    issueType,
		summary:      summary,
		description:  description,
	}, nil
}

func (n *Node) Execute(ctx context.Context, execCtx *models.ExecutionContext) (map[string]any, error) {
	summary, err := template.RenderString(n.summary, execCtx)
	if err != nil {
		return nil, err
	}

	description, err := template.RenderString(n.description, execCtx)
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

	email, err := integration.Field(fields, "email")
	if err != nil {
		return nil, err
	}

	apiToken, err := integration.Field(fields, "api_token")
	if err != nil {
		return nil, err
	}

	basic := base64.StdEncoding.EncodeToString([]byte(email + ":" + apiToken))
	headers := map[string]string{"Authorization": "Basic " + basic}

	payload := map[string]any{
		"fields": map[string]any{
			"project":     map[string]any{"key": n.projectKey},
			"issuetype":   map[string]any{"name": n.issueType},
			"summary":     summary,
			"description": description,
		},
	}

	url := strings.TrimRight(baseURL, "/") + "/rest/api/2/issue"

	status, body, err := integration.PostJSON(ctx, n.client, url, headers, payload)
	if err != nil {
		return nil, err
	}

	if status != http.StatusCreated {
		return nil, integration.StatusError("jira", status)
	}

	return map[string]any{
		"issue_key": body["key"],
		"issue_id":  body["id"],
		"url":       body["self"],
	}, nil
}

// Factory creates Jira node instances.
type Factory struct {
	credentials protocol.CredentialSource
}

func NewFactory(credentials protocol.CredentialSource) *Factory {
	return &Factory{credentials: credentials}
}

func (f *Factory) Type() string {
	return "jira"
}

func (f *Factory) Category() models.NodeCategory {
	return models.CategoryIntegration
}

func (f *Factory) Description() string {
	return "Creates a Jira issue using the stored API token credential."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"credential_id": map[string]any{
				"type":        "string",
				"description": "Stored Jira credential with base_url, email and api_token.",
				"minLength":   1,
			},
			"project_key": map[string]any{
				"type":        "string",
				"description": "Project the issue is created in.",
				"minLength":   1,
				"examples":    []string{"OPS", "QA"},
			},
			"issue_type": map[string]any{
				"type":        "string",
				"description": "Issue type name.",
				"default":     "Task",
				"examples":    []string{"Bug", "Task", "Story"},
			},
			"summary": map[string]any{
				"type":        "string",
				"description": "Issue summary. Supports templating.",
				"minLength":   1,
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Issue description. Supports templating.",
			},
		},
		"required":             []string{"credential_id", "project_key", "summary"},
		"additionalProperties": false,
	}
}

func (f *Factory) Create(config map[string]any) (protocol.Node, error) {
	return NewNode(f.credentials, config)
}
