// Package integration carries the pieces shared by the credential-backed
// integration nodes: credential resolution and JSON request plumbing.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cascadehq/cascade/pkg/protocol"
)

const requestTimeout = 30 * time.Second

// ErrMissingCredential is returned when a node configuration has no
// credential_id.
var ErrMissingCredential = errors.New("missing required field 'credential_id'")

// NewClient returns the HTTP client integration nodes share per instance.
func NewClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// CredentialID extracts the credential reference from a node configuration.
func CredentialID(config map[string]any) (string, error) {
	id, ok := config["credential_id"].(string)
	if !ok || id == "" {
		return "", ErrMissingCredential
	}

	return id, nil
}

// Resolve fetches and decrypts the credential fields for an invocation. The
// returned map must not be retained or logged by callers.
func Resolve(ctx context.Context, source protocol.CredentialSource, credentialID string) (map[string]any, error) {
	if source == nil {
		return nil, errors.New("no credential source configured")
	}

	fields, err := source.Credentials(ctx, credentialID)
	if err != nil {
		return nil, fmt.Errorf("resolve credential: %w", err)
	}

	return fields, nil
}

// Field reads a required string field from decrypted credential data.
func Field(fields map[string]any, name string) (string, error) {
	value, ok := fields[name].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("credential is missing field %q", name)
	}

	return value, nil
}

// PostJSON sends a JSON payload and decodes the JSON response. The response
// body is decoded best-effort; non-JSON bodies come back under "raw".
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) (int, map[string]any, error) {
	return send(ctx, client, http.MethodPost, url, headers, payload)
}

func send(ctx context.Context, client *http.Client, method, url string, headers map[string]string, payload any) (int, map[string]any, error) {
	var reader io.Reader

	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request payload: %w", err)
		}

		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		body = map[string]any{"raw": string(raw)}
	}

	return resp.StatusCode, body, nil
}

// StatusError turns a non-2xx response into a node failure without leaking
// the request payload.
func StatusError(service string, status int) error {
	return fmt.Errorf("%s request failed with status %d", service, status)
}
