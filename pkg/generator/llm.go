// Package generator turns natural-language descriptions into workflow
// definitions via an LLM, then sanitizes the result into a valid graph.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider identifies which chat-completion API shape to speak.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// ErrGeneration wraps LLM transport and response failures.
var ErrGeneration = errors.New("workflow generation failed")

// LLMClient produces a completion for a system/user prompt pair.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// HTTPLLMClient talks to OpenAI-compatible or Anthropic chat APIs.
type HTTPLLMClient struct {
	client   *http.Client
	provider Provider
	apiKey   string
	baseURL  string
	model    string
}

func NewHTTPLLMClient(provider Provider, apiKey, baseURL, model string) *HTTPLLMClient {
	if baseURL == "" {
		switch provider {
		case ProviderAnthropic:
			baseURL = "https://api.anthropic.com/v1"
		default:
			baseURL = "https://api.openai.com/v1"
		}
	}

	return &HTTPLLMClient{
		client:   &http.Client{Timeout: 120 * time.Second},
		provider: provider,
		apiKey:   apiKey,
		baseURL:  baseURL,
		model:    model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *HTTPLLMClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.provider == ProviderAnthropic {
		return c.completeAnthropic(ctx, systemPrompt, userPrompt)
	}

	return c.completeOpenAI(ctx, systemPrompt, userPrompt)
}

func (c *HTTPLLMClient) completeOpenAI(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := map[string]any{
		"model": c.model,
		"messages": []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		"temperature": 0.2,
	}

	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	body, err := c.post(ctx, c.baseURL+"/chat/completions", headers, payload)
	if err != nil {
		return "", err
	}

	var response struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrGeneration, err)
	}

	if response.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrGeneration, response.Error.Message)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrGeneration)
	}

	return response.Choices[0].Message.Content, nil
}

func (c *HTTPLLMClient) completeAnthropic(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := map[string]any{
		"model":      c.model,
		"system":     systemPrompt,
		"max_tokens": 8192,
		"messages": []chatMessage{
			{Role: "user", Content: userPrompt},
		},
	}

	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}

	body, err := c.post(ctx, c.baseURL+"/messages", headers, payload)
	if err != nil {
		return "", err
	}

	var response struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrGeneration, err)
	}

	if response.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrGeneration, response.Error.Message)
	}

	for _, block := range response.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", fmt.Errorf("%w: empty completion", ErrGeneration)
}

func (c *HTTPLLMClient) post(ctx context.Context, url string, headers map[string]string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrGeneration, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrGeneration, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned status %d", ErrGeneration, resp.StatusCode)
	}

	return body, nil
}
