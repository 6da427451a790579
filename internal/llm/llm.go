// Package llm wraps the external answer-synthesis model: generate(messages,
// tools?) -> {text, tool_calls, raw}. The LLM itself is an out-of-scope
// collaborator; this package only owns the HTTP transport, retry/backoff,
// and response-shape contract, following the teacher's router client's
// retry-on-429/5xx loop trimmed to a single synchronous call (no
// streaming, since synthesis here always needs the full answer before
// safety_post can run).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ipassist/ipassist-core/internal/domain"
)

// ToolDefinition describes one callable tool offered to the model,
// mirroring the shape the teacher's MCP tool definitions expose.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is one invocation the model requested.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Response is the LLM wrapper's output contract.
type Response struct {
	Text      string         `json:"text"`
	ToolCalls []ToolCall     `json:"tool_calls"`
	Raw       map[string]any `json:"raw"`
}

// Client calls a chat-completions-shaped LLM endpoint.
type Client struct {
	baseURL        string
	apiKey         string
	model          string
	maxRetries     int
	httpClient     *http.Client
}

// Config configures an LLM client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// New constructs an LLM client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model           string           `json:"model"`
	Messages        []domain.Message `json:"messages"`
	Tools           []ToolDefinition `json:"tools,omitempty"`
	MaxOutputTokens int              `json:"max_output_tokens,omitempty"`
	ReasoningEffort string           `json:"reasoning_effort,omitempty"`
}

type chatResponse struct {
	Text      string         `json:"text"`
	ToolCalls []ToolCall     `json:"tool_calls"`
	Raw       map[string]any `json:"raw"`
}

// Generate calls the LLM with the given conversation and optional tools.
// It retries on 429 and 5xx responses with linear backoff, mirroring the
// teacher's router retry loop.
func (c *Client) Generate(ctx context.Context, messages []domain.Message, tools []ToolDefinition, maxOutputTokens int, reasoningEffort string) (Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:           c.model,
		Messages:        messages,
		Tools:           tools,
		MaxOutputTokens: maxOutputTokens,
		ReasoningEffort: reasoningEffort,
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			return Response{}, fmt.Errorf("llm: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries {
				time.Sleep(time.Duration(attempt+1) * time.Second)
				continue
			}
			break
		}

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < c.maxRetries {
				lastErr = fmt.Errorf("llm: status %d: %s", resp.StatusCode, respBody)
				time.Sleep(time.Duration(attempt+1) * time.Second)
				continue
			}
			return Response{}, fmt.Errorf("llm: status %d: %s", resp.StatusCode, respBody)
		}

		var parsed chatResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if decodeErr != nil {
			return Response{}, fmt.Errorf("llm: decode response: %w", decodeErr)
		}
		return Response{Text: parsed.Text, ToolCalls: parsed.ToolCalls, Raw: parsed.Raw}, nil
	}
	return Response{}, fmt.Errorf("llm: request failed after retries: %w", lastErr)
}
