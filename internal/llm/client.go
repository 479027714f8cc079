package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/talesmith-ai/talesmith/internal/ratelimit"
)

// Client talks to a Groq-style OpenAI-compatible API over raw HTTP. The raw
// transport is deliberate: the orchestration layer needs the x-ratelimit-*
// response headers and the verbatim 429 error text, both of which the official
// SDKs hide.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// CompletionResponse is the decoded result of one chat-completion call.
// RateLimit is nil when the provider sent no quota headers.
type CompletionResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Model        string
	RateLimit    *ratelimit.Snapshot
}

// NewClient creates a provider client. baseURL must point at the API root,
// e.g. https://api.groq.com/openai/v1.
func NewClient(apiKey, baseURL string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}

	trimmedBase := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedBase == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: trimmedBase,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Created int64        `json:"created"`
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Index        int          `json:"index"`
	FinishReason string       `json:"finish_reason"`
	Message      *chatMessage `json:"message"`
}

type chatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// ChatCompletion issues POST {base}/chat/completions and decodes the first
// choice. Non-2xx statuses come back as typed errors; 429s carry the parsed
// retry hint and whatever quota headers were present.
func (c *Client) ChatCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("completion request cannot be nil")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	defer resp.Body.Close()

	snapshot, _ := ratelimit.FromHeaders(resp.Header)

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyError(req.Model, resp, snapshot)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("chat completion failed to decode response: %w", err)
	}

	result := &CompletionResponse{
		Model:     chatResp.Model,
		RateLimit: snapshot,
	}
	if result.Model == "" {
		result.Model = req.Model
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message == nil {
		result.FinishReason = "stop"
		return result, nil
	}

	first := chatResp.Choices[0]
	result.Content = first.Message.Content
	result.ToolCalls = first.Message.ToolCalls
	result.FinishReason = first.FinishReason
	if strings.TrimSpace(result.FinishReason) == "" {
		result.FinishReason = "stop"
	}

	return result, nil
}

// ListModels issues GET {base}/models.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("model listing failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("model listing failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var listing struct {
		Data []ModelInfo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("model listing failed to decode response: %w", err)
	}

	return listing.Data, nil
}

func (c *Client) classifyError(model string, resp *http.Response, snapshot *ratelimit.Snapshot) error {
	body, _ := io.ReadAll(resp.Body)
	message := extractErrorMessage(body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter, _ := ratelimit.RetryHint(message)
		return &RateLimitError{
			Model:      model,
			RetryAfter: retryAfter,
			Message:    message,
			Snapshot:   snapshot,
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{StatusCode: resp.StatusCode, Message: message, Snapshot: snapshot}
	case resp.StatusCode >= 500:
		return &ServerError{StatusCode: resp.StatusCode, Message: message, Snapshot: snapshot}
	default:
		return &APIError{StatusCode: resp.StatusCode, Message: message, Snapshot: snapshot}
	}
}

// extractErrorMessage pulls the message out of an {error:{message}} body,
// falling back to the raw body text for non-JSON errors.
func extractErrorMessage(body []byte) string {
	var decoded errorResponse
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error.Message != "" {
		return decoded.Error.Message
	}
	return strings.TrimSpace(string(body))
}
