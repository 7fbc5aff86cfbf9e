package model

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/flynn-ai/critic/internal/errors"
)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey     string
	Model      string // e.g., "gemini-2.0-flash"
	BaseURL    string // Optional override of the Gemini API endpoint
	Timeout    time.Duration
	MaxRetries int
}

// DefaultGeminiConfig returns default configuration for Gemini.
func DefaultGeminiConfig(apiKey string) *GeminiConfig {
	return &GeminiConfig{
		APIKey:     apiKey,
		Model:      "gemini-2.0-flash",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// GeminiClient implements Model using the Gemini API.
type GeminiClient struct {
	cfg            *GeminiConfig
	client         *genai.Client
	circuitBreaker *errors.CircuitBreaker
	retryPolicy    *errors.Policy
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, cfg *GeminiConfig) (*GeminiClient, error) {
	if cfg == nil {
		return nil, errors.New(errors.CodeConfigInvalid, "gemini config is required", errors.CategorySystem)
	}

	c := &GeminiClient{
		cfg:            cfg,
		circuitBreaker: errors.NewCircuitBreaker("gemini", errors.DefaultCircuitBreakerConfig()),
		retryPolicy:    errors.ProviderPolicy(cfg.MaxRetries),
	}
	if cfg.APIKey == "" {
		// Unconfigured clients report unavailable instead of failing startup
		return c, nil
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeModelUnavailable, "failed to create Gemini client", errors.CategorySystem)
	}
	c.client = client
	return c, nil
}

// Generate sends the prompt and images to Gemini.
func (c *GeminiClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if !c.IsAvailable() {
		return nil, errors.NewBuilder(errors.CodeModelUnavailable, "Gemini API key not configured").
			System().
			WithSuggestion("Set GEMINI_API_KEY or cloud.api_key in config.toml").
			Build()
	}

	parts := make([]*genai.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	genCfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		genCfg.ResponseMIMEType = "application/json"
	}
	if req.Temperature > 0 {
		genCfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	start := time.Now()
	resp, err := errors.ExecuteWithResult(c.circuitBreaker, func() (*genai.GenerateContentResponse, error) {
		return errors.DoWithResult(ctx, c.retryPolicy, func() (*genai.GenerateContentResponse, error) {
			r, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, genCfg)
			if err != nil {
				return nil, classifyGeminiError(err)
			}
			return r, nil
		})
	})
	if err != nil {
		return nil, err
	}

	text := resp.Text()
	if text == "" {
		return nil, errors.New(errors.CodeModelInvalidResponse, "Gemini response contained no text", errors.CategoryPermanent)
	}

	out := &Response{
		Text:       text,
		Model:      c.cfg.Model,
		Provider:   "gemini",
		DurationMs: time.Since(start).Milliseconds(),
	}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if !stderrors.As(err, &apiErr) {
		return errors.Wrap(err, errors.CodeNetworkUnavailable, "Gemini request failed", errors.CategoryTemporary)
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		rl := errors.RateLimit(errors.CodeModelRateLimit, "Gemini rate limit exceeded", 5*time.Second)
		rl.Inner = err
		return rl
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return errors.NewBuilder(errors.CodeModelUnavailable, "invalid Gemini API key").
			System().
			Wrap(err).
			Build()
	case apiErr.Code >= 500:
		return errors.Wrap(err, errors.CodeModelUnavailable, fmt.Sprintf("Gemini unavailable (%d)", apiErr.Code), errors.CategoryTemporary)
	default:
		return errors.Wrap(err, errors.CodeModelInvalidResponse, fmt.Sprintf("Gemini rejected the request (%d)", apiErr.Code), errors.CategoryPermanent)
	}
}

// IsAvailable checks if the client is configured.
func (c *GeminiClient) IsAvailable() bool {
	return c != nil && c.client != nil
}

// Name returns the model name.
func (c *GeminiClient) Name() string {
	if c != nil && c.cfg != nil {
		return c.cfg.Model
	}
	return "gemini"
}

// Status returns the model status.
func (c *GeminiClient) Status() *ModelStatus {
	return &ModelStatus{
		Name:      c.Name(),
		Provider:  "gemini",
		Available: c.IsAvailable(),
		Breaker:   c.circuitBreaker.State().String(),
	}
}
