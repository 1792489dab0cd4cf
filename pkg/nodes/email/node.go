// Package email provides the SMTP email integration node.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes/integration"
	"github.com/cascadehq/cascade/pkg/protocol"
	"github.com/cascadehq/cascade/pkg/template"
)

// sendMail is swapped in tests.
var sendMail = smtp.SendMail

type Node struct {
	credentials  protocol.CredentialSource
	credentialID string
	to           []string
	subject      string
	body         string
}

func NewNode(credentials protocol.CredentialSource, config map[string]any) (*Node, error) {
	credentialID, err := integration.CredentialID(config)
	if err != nil {
		return nil, err
	}

	to := recipients(config["to"])
	if len(to) == 0 {
		return nil, errors.New("missing required field 'to'")
	}

	subject, ok := config["subject"].(string)
	if !ok || subject == "" {
		return nil, errors.New("missing required field 'subject'")
	}

	body, _ := config["body"].(string)

	return &Node{
		credentials:  credentials,
		credentialID: credentialID,
		to:           to,
		subject:      subject,
		body:         body,
	}, nil
}

func recipients(value any) []string {
	switch typed := value.(type) {
	case string:
		if typed == "" {
			return nil
		}

		return []string{typed}
	case []any:
		out := make([]string, 0, len(typed))
		for _, entry := range typed {
			if address, ok := entry.(string); ok && address != "" {
				out = append(out, address)
			}
		}

		return out
	default:
		return nil
	}
}

func (n *Node) Execute(ctx context.Context, execCtx *models.ExecutionContext) (map[string]any, error) {
	subject, err := template.RenderString(n.subject, execCtx)
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

	host, err := integration.Field(fields, "smtp_host")
	if err != nil {
		return nil, err
	}

	port := "587"
	if configured, ok := fields["smtp_port"].(string); ok && configured != "" {
		port = configured
	}

	username, err := integration.Field(fields, "username")
	if err != nil {
		return nil, err
	}

	password, err := integration.Field(fields, "password")
	if err != nil {
		return nil, err
	}

	from := username
	if configured, ok := fields["from"].(string); ok && configured != "" {
		from = configured
	}

	message := buildMessage(from, n.to, subject, body)
	auth := smtp.PlainAuth("", username, password, host)

	if err := sendMail(host+":"+port, auth, from, n.to, message); err != nil {
		// SMTP errors never include the credential fields.
		return nil, fmt.Errorf("send email: %w", err)
	}

	return map[string]any{
		"delivered":  true,
		"recipients": len(n.to),
		"subject":    subject,
	}, nil
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var builder strings.Builder

	builder.WriteString("From: " + from + "\r\n")
	builder.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	builder.WriteString("Subject: " + subject + "\r\n")
	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(body)

	return []byte(builder.String())
}

// Factory creates email node instances.
type Factory struct {
	credentials protocol.CredentialSource
}

func NewFactory(credentials protocol.CredentialSource) *Factory {
	return &Factory{credentials: credentials}
}

func (f *Factory) Type() string {
	return "email"
}

func (f *Factory) Category() models.NodeCategory {
	return models.CategoryIntegration
}

func (f *Factory) Description() string {
	return "Sends a plain-text email through the SMTP server stored in the credential."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"credential_id": map[string]any{
				"type":        "string",
				"description": "Stored SMTP credential with smtp_host, username and password.",
				"minLength":   1,
			},
			"to": map[string]any{
				"description": "Recipient address or list of addresses.",
				"oneOf": []map[string]any{
					{"type": "string", "minLength": 1},
					{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 1},
				},
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Subject line. Supports templating.",
				"minLength":   1,
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Plain-text body. Supports templating.",
			},
		},
		"required":             []string{"credential_id", "to", "subject"},
		"additionalProperties": false,
	}
}

func (f *Factory) Create(config map[string]any) (protocol.Node, error) {
	return NewNode(f.credentials, config)
}
