// Package httprequest provides the HTTP request action node.
package httprequest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/template"
)

const defaultTimeoutSeconds = 30

// ErrHTTPStatus is returned when the response status code is 400 or above.
// The response payload is still part of the node output so failure handlers
// and retries can inspect it.
var ErrHTTPStatus = errors.New("http request returned error status")

type Config struct {
	URL            string            `json:"url"`
	Method         string            `json:"method"`
	Headers        map[string]string `json:"headers"`
	Body           string            `json:"body,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds"`
}

type Node struct {
	config Config
	client *http.Client
}

func NewNode(config map[string]any) (*Node, error) {
	cfg := Config{
		Method:         http.MethodGet,
		Headers:        make(map[string]string),
		TimeoutSeconds: defaultTimeoutSeconds,
	}

	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, errors.New("missing required field 'url'")
	}

	cfg.URL = url

	if method, ok := config["method"].(string); ok && method != "" {
		cfg.Method = strings.ToUpper(method)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for key, value := range headers {
			if text, ok := value.(string); ok {
				cfg.Headers[key] = text
			}
		}
	}

	if body, ok := config["body"].(string); ok {
		cfg.Body = body
	}

	if timeout, ok := config["timeout_seconds"].(float64); ok && timeout > 0 {
		cfg.TimeoutSeconds = int(timeout)
	}

	return &Node{
		config: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// Execute renders the configured templates against the execution context and
// performs the request. The output always contains the status code when a
// response was received, even when the node fails.
func (n *Node) Execute(ctx context.Context, execCtx *models.ExecutionContext) (map[string]any, error) {
	url, err := template.RenderString(n.config.URL, execCtx)
	if err != nil {
		return nil, fmt.Errorf("render url: %w", err)
	}

	body, err := template.RenderString(n.config.Body, execCtx)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}

	req, err := http.NewRequestWithContext(ctx, n.config.Method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for key, value := range n.config.Headers {
		rendered, err := template.RenderString(value, execCtx)
		if err != nil {
			return nil, fmt.Errorf("render header %q: %w", key, err)
		}

		req.Header.Set(key, rendered)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     flattenHeaders(resp.Header),
		"body":        decodeBody(raw),
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return result, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}

	return result, nil
}

// decodeBody parses JSON responses into structured data; everything else
// stays a string.
func decodeBody(raw []byte) any {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return ""
	}

	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		return decoded
	}

	return trimmed
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key := range headers {
		flat[key] = headers.Get(key)
	}

	return flat
}
