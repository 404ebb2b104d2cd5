// Package zhipu implements the Summarizer port against ZhipuAI's
// OpenAI-compatible Chat Completion API.
package zhipu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smckay/releasedigest/internal/adapter/driven/llm/llmhttp"
	"github.com/smckay/releasedigest/internal/domain/port/driven"
)

const (
	defaultBaseURL = "https://open.bigmodel.cn/api/paas"
	defaultTimeout = 120 * time.Second

	// glm-4-flash and glm-4-plus both expose a 128k context window.
	contextTokens = 128000

	providerName = "zhipu"
)

// Compile-time interface satisfaction check.
var _ driven.Summarizer = (*Client)(nil)

// Client is an HTTP client for the ZhipuAI Chat Completion API.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewClient creates a new ZhipuAI client for the given model.
func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// SetBaseURL sets a custom base URL (for testing).
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return providerName
}

// Model returns the model identifier requests are sent with.
func (c *Client) Model() string {
	return c.model
}

// ContextTokens returns the model's usable context window size.
func (c *Client) ContextTokens() int {
	return contextTokens
}

// Summarize sends one chat-completion request with temperature 0 and returns
// the full response text, retrying transient failures.
func (c *Client) Summarize(ctx context.Context, req driven.SummaryRequest) (*driven.SummaryResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("zhipu: %w", driven.ErrNoCredentials)
	}

	temperature := 0.0
	reqBody := ChatCompletionRequest{
		Model:       c.model,
		Temperature: &temperature,
		Messages: []Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
	}
	if req.MaxTokens > 0 {
		reqBody.MaxTokens = req.MaxTokens
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var response *driven.SummaryResponse
	operation := func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v4/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return llmhttp.NewTimeoutError(providerName, err.Error())
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return handleErrorResponse(resp.StatusCode, body)
		}

		var chatResp ChatCompletionResponse
		if err := json.Unmarshal(body, &chatResp); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		if len(chatResp.Choices) == 0 {
			return fmt.Errorf("no choices in response")
		}

		response = &driven.SummaryResponse{
			Text:      chatResp.Choices[0].Message.Content,
			Model:     chatResp.Model,
			TokensIn:  chatResp.Usage.PromptTokens,
			TokensOut: chatResp.Usage.CompletionTokens,
		}
		return nil
	}

	if err := llmhttp.RetryWithBackoff(ctx, operation, llmhttp.DefaultRetryConfig()); err != nil {
		return nil, err
	}

	return response, nil
}

// handleErrorResponse converts HTTP error responses to typed errors.
func handleErrorResponse(statusCode int, body []byte) error {
	message := fmt.Sprintf("HTTP %d", statusCode)

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	} else if len(body) > 0 && len(body) < 200 {
		message = string(body)
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return llmhttp.NewAuthenticationError(providerName, message)
	case http.StatusTooManyRequests:
		return llmhttp.NewRateLimitError(providerName, message)
	case http.StatusBadRequest:
		return llmhttp.NewInvalidRequestError(providerName, message)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return llmhttp.NewServiceUnavailableError(providerName, message)
	default:
		return &llmhttp.Error{
			Type:       llmhttp.ErrTypeUnknown,
			Message:    message,
			StatusCode: statusCode,
			Retryable:  false,
			Provider:   providerName,
		}
	}
}
