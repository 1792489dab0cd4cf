// Package github provides the GitHub issue-creation integration node.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes/integration"
	"github.com/cascadehq/cascade/pkg/protocol"
	"github.com/cascadehq/cascade/pkg/template"
)

const defaultAPIBase = "https://api.github.com"

type Node struct {
	credentials  protocol.CredentialSource
	client       *http.Client
	credentialID string
	owner        string
	repo         string
	title        string
	body         string
	labels       []string
}

func NewNode(credentials protocol.CredentialSource, config map[string]any) (*Node, error) {
	credentialID, err := integration.CredentialID(config)
	if err != nil {
		return nil, err
	}

	owner, ok := config["owner"].(string)
	if !ok || owner == "" {
		return nil, errors.New("missing required field 'owner'")
	}

	repo, ok := config["repo"].(string)
	if !ok || repo == "" {
		return nil, errors.New("missing required field 'repo'")
	}

	title, ok := config["title"].(string)
	if !ok || title == "" {
		return nil, errors.New("missing required field 'title'")
	}

	body, _ := config["body"].(string)

	var labels []string
	if raw, ok := config["labels"].([]any); ok {
		for _, entry := range raw {
			if label, ok := entry.(string); ok && label != "" {
				labels = append(labels, label)
			}
		}
	}

	return &Node{
		credentials:  credentials,
		client:       integration.NewClient(),
		credentialID: credentialID,
		owner:        owner,
		repo:         repo,
		title:        title,
		body:         body,
		labels:       labels,
	}, nil
}

func (n *Node) Execute(ctx context.Context, execCtx *models.ExecutionContext) (map[string]any, error) {
	title, err := template.RenderString(n.title, execCtx)
	if err != nil {
		return nil, err
	}

	body, err := template.RenderString(n.body, execCtx)
	if err != nil {
		return nil, err
	}

	fields, err := integration.Resolve(ctx, n.credentials, n.credentialID)
	if err != nil {
		return nil, err
	}

	token, err := integration.Field(fields, "token")
	if err != nil {
		return nil, err
	}

	apiBase := defaultAPIBase
	if configured, ok := fields["api_base"].(string); ok && configured != "" {
		apiBase = configured
	}

	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"Accept":        "application/vnd.github+json",
	}

	payload := map[string]any{
		"title": title,
		"body":  body,
	}
	if len(n.labels) > 0 {
		payload["labels"] = n.labels
	}

	url := fmt.Sprintf("%s/repos/%s/%s/issues", apiBase, n.owner, n.repo)

	status, response, err := integration.PostJSON(ctx, n.client, url, headers, payload)
	if err != nil {
		return nil, err
	}

	if status != http.StatusCreated {
		return nil, integration.StatusError("github", status)
	}

	return map[string]any{
		"issue_number": response["number"],
		"url":          response["html_url"],
	}, nil
}

// Factory creates GitHub node instances.
type Factory struct {
	credentials protocol.CredentialSource
}

func NewFactory(credentials protocol.CredentialSource) *Factory {
	return &Factory{credentials: credentials}
}

func (f *Factory) Type() string {
	return "github"
}

func (f *Factory) Category() models.NodeCategory {
	return models.CategoryIntegration
}

func (f *Factory) Description() string {
	return "Creates a GitHub issue using the stored access token credential."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"credential_id": map[string]any{
				"type":        "string",
				"description": "Stored GitHub credential with an access token.",
				"minLength":   1,
			},
			"owner": map[string]any{
				"type":        "string",
				"description": "Repository owner.",
				"minLength":   1,
			},
			"repo": map[string]any{
				"type":        "string",
				"description": "Repository name.",
				"minLength":   1,
			},
			"title": map[string]any{
				"type":        "string",
				"description": "Issue title. Supports templating.",
				"minLength":   1,
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Issue body. Supports templating.",
			},
			"labels": map[string]any{
				"type":        "array",
				"description": "Labels applied to the issue.",
				"items":       map[string]any{"type": "string"},
			},
		},
		"required":             []string{"credential_id", "owner", "repo", "title"},
		"additionalProperties": false,
	}
}

func (f *Factory) Create(config map[string]any) (protocol.Node, error) {
	return NewNode(f.credentials, config)
}
