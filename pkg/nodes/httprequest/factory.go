package httprequest

import (
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/protocol"
)

// Factory creates HTTP request node instances.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Type() string {
	return "http_request"
}

func (f *Factory) Category() models.NodeCategory {
	return models.CategoryAction
}

func (f *Factory) Description() string {
	return "Performs an HTTP request with templated URL, headers and body, and outputs the status code and decoded response."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to send the request to. Supports templating.",
				"examples": []string{
					"https://api.example.com/users",
					"{{variables.base_url}}/users/{{results.lookup.user_id}}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use.",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Request headers. Values support templating.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Request body content. Supports templating.",
			},
			"timeout_seconds": map[string]any{
				"type":        "integer",
				"description": "Per-request timeout in seconds.",
				"default":     defaultTimeoutSeconds,
				"minimum":     1,
				"maximum":     300,
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}

func (f *Factory) Create(config map[string]any) (protocol.Node, error) {
	return NewNode(config)
}
