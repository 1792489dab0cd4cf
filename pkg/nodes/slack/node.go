// Package slack provides the Slack message integration node.
package slack

import (
	"context"
	"errors"
	"net/http"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes/integration"
	"github.com/cascadehq/cascade/pkg/protocol"
	"github.com/cascadehq/cascade/pkg/template"
)

const postMessageURL = "https://slack.com/api/chat.postMessage"

type Node struct {
	credentials  protocol.CredentialSource
	client       *http.Client
	credentialID string
	channel      string
	message      string
}

func NewNode(credentials protocol.CredentialSource, config map[string]any) (*Node, error) {
	credentialID, err := integration.CredentialID(config)
	if err != nil {
		return nil, err
	}

	message, ok := config["message"].(string)
	if !ok || message == "" {
		return nil, errors.New("missing required field 'message'")
	}

	channel, _ := config["channel"].(string)

	return &Node{
		credentials:  credentials,
		client:       integration.NewClient(),
		credentialID: credentialID,
		channel:      channel,
		message:      message,
	}, nil
}

// Execute posts the rendered message. A credential with a webhook_url field
// posts to the incoming webhook; a bot_token credential uses the Web API and
// requires a channel.
func (n *Node) Execute(ctx context.Context, execCtx *models.ExecutionContext) (map[string]any, error) {
	message, err := template.RenderString(n.message, execCtx)
	if err != nil {
		return nil, err
	}

	fields, err := integration.Resolve(ctx, n.credentials, n.credentialID)
	if err != nil {
		return nil, err
	}

	if webhookURL, ok := fields["webhook_url"].(string); ok && webhookURL != "" {
		return n.postWebhook(ctx, webhookURL, message)
	}

	token, err := integration.Field(fields, "bot_token")
	if err != nil {
		return nil, err
	}

	return n.postAPI(ctx, token, message)
}

func (n *Node) postWebhook(ctx context.Context, webhookURL, message string) (map[string]any, error) {
	status, _, err := integration.PostJSON(ctx, n.client, webhookURL, nil, map[string]any{
		"text": message,
	})
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, integration.StatusError("slack webhook", status)
	}

	return map[string]any{"delivered": true, "transport": "webhook"}, nil
}

func (n *Node) postAPI(ctx context.Context, token, message string) (map[string]any, error) {
	if n.channel == "" {
		return nil, errors.New("field 'channel' is required with a bot token credential")
	}

	headers := map[string]string{"Authorization": "Bearer " + token}

	status, body, err := integration.PostJSON(ctx, n.client, postMessageURL, headers, map[string]any{
		"channel": n.channel,
		"text":    message,
	})
	if err != nil {
		return nil, err
	}

	// chat.postMessage reports failures in the body with status 200.
	if ok, _ := body["ok"].(bool); status != http.StatusOK || !ok {
		return nil, integration.StatusError("slack api", status)
	}

	return map[string]any{
		"delivered": true,
		"transport": "api",
		"channel":   n.channel,
		"ts":        body["ts"],
	}, nil
}

// Factory creates Slack node instances.
type Factory struct {
	credentials protocol.CredentialSource
}

func NewFactory(credentials protocol.CredentialSource) *Factory {
	return &Factory{credentials: credentials}
}

func (f *Factory) Type() string {
	return "slack"
}

func (f *Factory) Category() models.NodeCategory {
	return models.CategoryIntegration
}

func (f *Factory) Description() string {
	return "Sends a message to Slack through an incoming webhook or the Web API."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"credential_id": map[string]any{
				"type":        "string",
				"description": "Stored Slack credential with webhook_url or bot_token.",
				"minLength":   1,
			},
			"channel": map[string]any{
				"type":        "string",
				"description": "Destination channel, required for bot token credentials.",
				"examples":    []string{"#alerts", "C0123456789"},
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Message text. Supports templating.",
				"minLength":   1,
			},
		},
		"required":             []string{"credential_id", "message"},
		"additionalProperties": false,
	}
}

func (f *Factory) Create(config map[string]any) (protocol.Node, error) {
	return NewNode(f.credentials, config)
}
