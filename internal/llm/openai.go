package llm

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

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/observability"
)

// OpenAIConfig configures the OpenAI-compatible chat completion client. Any
// provider exposing the /chat/completions wire format works.
type OpenAIConfig struct {
	// Provider names the provider in logs, metrics, and errors.
	Provider string

	// APIKey authenticates requests.
	APIKey string

	// Model is the model identifier used for all skills.
	Model string

	// BaseURL is the API root, e.g. https://api.openai.com/v1.
	BaseURL string

	// Timeout bounds each request attempt.
	Timeout time.Duration

	// MaxRetries is how many times transient failures are retried.
	MaxRetries int

	// Temperature is passed through to the provider.
	Temperature float64
}

// OpenAIClient implements Client against an OpenAI-compatible API.
type OpenAIClient struct {
	config     OpenAIConfig
	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// NewOpenAIClient creates a chat completion client. metrics may be nil.
func NewOpenAIClient(cfg OpenAIConfig, logger zerolog.Logger, metrics *observability.Metrics) *OpenAIClient {
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete returns a free-form text completion.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	return c.complete(ctx, systemPrompt, userMessage, nil)
}

// CompleteJSON returns a structured JSON completion using the provider's
// JSON mode. The schema is advisory: it is appended to the system prompt so
// weaker providers still see the expected shape.
func (c *OpenAIClient) CompleteJSON(ctx context.Context, systemPrompt, userMessage string, schema json.RawMessage) (json.RawMessage, error) {
	if len(schema) > 0 {
		systemPrompt = fmt.Sprintf("%s\n\nThe response must be a JSON object matching this schema:\n%s", systemPrompt, schema)
	}
	content, err := c.complete(ctx, systemPrompt, userMessage, &responseFormat{Type: "json_object"})
	if err != nil {
		return nil, err
	}

	content = stripCodeFence(content)
	if !json.Valid([]byte(content)) {
		return nil, &ResponseError{Reason: "completion is not valid JSON"}
	}
	return json.RawMessage(content), nil
}

// complete performs one chat completion with retries on transient failures.
func (c *OpenAIClient) complete(ctx context.Context, systemPrompt, userMessage string, format *responseFormat) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		Temperature:    c.config.Temperature,
		ResponseFormat: format,
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * time.Second
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		started := time.Now()
		content, err := c.doRequest(ctx, payload)
		if err == nil {
			if c.metrics != nil {
				c.metrics.RecordLLMRequest(c.config.Model, time.Since(started).Seconds())
			}
			return content, nil
		}
		lastErr = err
		if c.metrics != nil {
			c.metrics.RecordLLMRequestFailed(c.config.Model, errorType(err))
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsTransient() {
			return "", err
		}
		c.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("transient LLM failure, retrying")
	}
	return "", lastErr
}

// doRequest performs a single chat completion attempt.
func (c *OpenAIClient) doRequest(ctx context.Context, payload []byte) (string, error) {
	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &APIError{Provider: c.config.Provider, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", &APIError{Provider: c.config.Provider, StatusCode: resp.StatusCode, Message: "read response body"}
	}

	var decoded chatResponse
	_ = json.Unmarshal(body, &decoded)

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{
			Provider:   c.config.Provider,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
		if decoded.Error != nil {
			apiErr.Message = decoded.Error.Message
			apiErr.Type = decoded.Error.Type
			apiErr.Code = decoded.Error.Code
		}
		return "", apiErr
	}

	if len(decoded.Choices) == 0 {
		return "", &ResponseError{Reason: "completion has no choices"}
	}
	return decoded.Choices[0].Message.Content, nil
}

// errorType classifies an error for the failure metric label.
func errorType(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsAuth():
			return "auth"
		case apiErr.IsTransient():
			return "transient"
		default:
			return "api"
		}
	}
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return "malformed"
	}
	return "other"
}

// stripCodeFence removes a surrounding markdown code fence, which some
// providers emit even in JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
