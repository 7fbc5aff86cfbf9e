package model

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/flynn-ai/critic/internal/errors"
)

// OpenAIConfig configures an OpenAI-compatible chat completions client.
type OpenAIConfig struct {
	Provider   string // openrouter, glm
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	Headers    map[string]string
}

// DefaultOpenRouterConfig returns default configuration for OpenRouter.
func DefaultOpenRouterConfig(apiKey string) *OpenAIConfig {
	return &OpenAIConfig{
		Provider:   "openrouter",
		APIKey:     apiKey,
		BaseURL:    "https://openrouter.ai/api/v1",
		Model:      "google/gemini-2.0-flash-001",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
		Headers: map[string]string{
			"HTTP-Referer": "https://github.com/flynn-ai/critic",
			"X-Title":      "Critic",
		},
	}
}

// DefaultGLMConfig returns default configuration for GLM (Z.AI).
func DefaultGLMConfig(apiKey string) *OpenAIConfig {
	return &OpenAIConfig{
		Provider:   "glm",
		APIKey:     apiKey,
		BaseURL:    "https://api.z.ai/api/paas/v4",
		Model:      "glm-4.5v",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// OpenAIClient implements Model against an OpenAI-compatible API.
// Images are sent as base64 data URLs in image_url content parts.
type OpenAIClient struct {
	cfg            *OpenAIConfig
	client         *http.Client
	circuitBreaker *errors.CircuitBreaker
	retryPolicy    *errors.Policy
}

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(cfg *OpenAIConfig) *OpenAIClient {
	if cfg == nil {
		return nil
	}

	return &OpenAIClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		circuitBreaker: errors.NewCircuitBreaker(cfg.Provider, errors.DefaultCircuitBreakerConfig()),
		retryPolicy:    errors.ProviderPolicy(cfg.MaxRetries),
	}
}

// Generate sends a prompt and its images and returns the response.
func (c *OpenAIClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if c == nil {
		return nil, errors.New(errors.CodeModelUnavailable, "model client not initialized", errors.CategorySystem)
	}

	if !c.IsAvailable() {
		return nil, errors.NewBuilder(errors.CodeModelUnavailable, c.cfg.Provider+" API key not configured").
			System().
			WithSuggestion("Set the provider API key environment variable or cloud.api_key in config.toml").
			Build()
	}

	start := time.Now()
	resp, err := errors.ExecuteWithResult(c.circuitBreaker, func() (*Response, error) {
		return c.generateWithRetry(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	resp.DurationMs = time.Since(start).Milliseconds()
	return resp, nil
}

func (c *OpenAIClient) buildBody(req *Request) ([]byte, error) {
	messages := []map[string]any{}
	if req.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.System})
	}

	if len(req.Images) == 0 {
		messages = append(messages, map[string]any{"role": "user", "content": req.Prompt})
	} else {
		parts := []map[string]any{{"type": "text", "text": req.Prompt}}
		for _, img := range req.Images {
			parts = append(parts, map[string]any{
				"type": "image_url",
				"image_url": map[string]string{
					"url": "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
				},
			})
		}
		messages = append(messages, map[string]any{"role": "user", "content": parts})
	}

	body := map[string]any{
		"model":    c.cfg.Model,
		"messages": messages,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	} else {
		body["max_tokens"] = 4096
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if req.JSON {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	return json.Marshal(body)
}

// generateWithRetry implements the actual API call with retry logic.
func (c *OpenAIClient) generateWithRetry(ctx context.Context, req *Request) (*Response, error) {
	jsonBody, err := c.buildBody(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeModelInvalidResponse, "failed to marshal request", errors.CategoryPermanent)
	}

	respBody, err := errors.DoWithResult(ctx, c.retryPolicy, func() ([]byte, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeNetworkUnavailable, "failed to create HTTP request", errors.CategoryPermanent)
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		for k, v := range c.cfg.Headers {
			httpReq.Header.Set(k, v)
		}

		r, err := c.client.Do(httpReq)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeNetworkUnavailable, "network request failed", errors.CategoryTemporary)
		}

		b, readErr := io.ReadAll(r.Body)
		r.Body.Close()
		if readErr != nil {
			return nil, errors.Wrap(readErr, errors.CodeNetworkUnavailable, "failed to read response body", errors.CategoryTemporary)
		}

		return b, classifyStatus(c.cfg.Provider, r, b)
	})
	if err != nil {
		return nil, err
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, errors.NewBuilder(errors.CodeModelParseError, "failed to parse API response").
			Permanent().
			Wrap(err).
			WithContext("response_body", snippet(string(respBody))).
			Build()
	}

	if len(chat.Choices) == 0 {
		return nil, errors.New(errors.CodeModelInvalidResponse, "API response contained no choices", errors.CategoryPermanent)
	}

	model := chat.Model
	if model == "" {
		model = c.cfg.Model
	}
	return &Response{
		Text:       chat.Choices[0].Message.Content,
		TokensUsed: chat.Usage.TotalTokens,
		Model:      model,
		Provider:   c.cfg.Provider,
	}, nil
}

// classifyStatus maps an HTTP status to an AppError category.
func classifyStatus(provider string, r *http.Response, body []byte) error {
	switch r.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusTooManyRequests:
		return handleRateLimitError(provider, r)
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.NewBuilder(errors.CodeModelUnavailable, "invalid API key").
			System().
			WithSuggestion("Check your " + provider + " API key").
			Build()
	case http.StatusBadRequest:
		return errors.NewBuilder(errors.CodeModelInvalidResponse, "bad request - check model name and parameters").
			Permanent().
			WithContext("response", snippet(string(body))).
			Build()
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return errors.Temporary(errors.CodeModelUnavailable, fmt.Sprintf("API unavailable: %s", r.Status))
	default:
		return errors.Temporary(errors.CodeModelUnavailable, fmt.Sprintf("API error (status %d): %s", r.StatusCode, snippet(string(body))))
	}
}

func handleRateLimitError(provider string, r *http.Response) error {
	retryAfter := 5 * time.Second
	if v := r.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
	}
	return errors.RateLimit(errors.CodeModelRateLimit, provider+" rate limit exceeded", retryAfter)
}

// IsAvailable checks if the client is configured.
func (c *OpenAIClient) IsAvailable() bool {
	return c != nil && c.cfg != nil && c.cfg.APIKey != ""
}

// Name returns the model name.
func (c *OpenAIClient) Name() string {
	if c != nil && c.cfg != nil {
		return c.cfg.Model
	}
	return "openai-compatible"
}

// Status returns the model status.
func (c *OpenAIClient) Status() *ModelStatus {
	return &ModelStatus{
		Name:      c.Name(),
		Provider:  c.cfg.Provider,
		Available: c.IsAvailable(),
		Breaker:   c.circuitBreaker.State().String(),
	}
}

// ============================================================
// Chat Completions API Types
// ============================================================

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
