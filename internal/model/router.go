package model

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/flynn-ai/critic/internal/config"
	"github.com/flynn-ai/critic/internal/errors"
)

// Router sends requests to the first available provider and fails over to
// the next one when a provider errors for reasons other than bad input.
type Router struct {
	models []Model
}

// NewRouter creates a router over providers in priority order.
func NewRouter(models ...Model) *Router {
	r := &Router{}
	for _, m := range models {
		if m != nil {
			r.models = append(r.models, m)
		}
	}
	return r
}

// Generate routes the request through the providers.
func (r *Router) Generate(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	for _, m := range r.models {
		if !m.IsAvailable() {
			continue
		}
		resp, err := m.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// Bad input fails the same way everywhere
		if errors.GetCategory(err) == errors.CategoryUser || ctx.Err() != nil {
			return nil, err
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.NewBuilder(errors.CodeModelUnavailable, "no cloud model available").
		System().
		WithSuggestion("Configure cloud.provider and its API key").
		Build()
}

// IsAvailable reports whether any provider is configured.
func (r *Router) IsAvailable() bool {
	for _, m := range r.models {
		if m.IsAvailable() {
			return true
		}
	}
	return false
}

// Name returns the primary provider's model name.
func (r *Router) Name() string {
	if len(r.models) == 0 {
		return "none"
	}
	return r.models[0].Name()
}

// Status returns the primary provider's status.
func (r *Router) Status() *ModelStatus {
	if len(r.models) == 0 {
		return &ModelStatus{Name: "none", Error: "no providers configured"}
	}
	return r.models[0].Status()
}

// GetStatus returns the status of all providers keyed by priority.
func (r *Router) GetStatus() map[string]*ModelStatus {
	status := make(map[string]*ModelStatus, len(r.models))
	for i, m := range r.models {
		key := "primary"
		if i > 0 {
			key = fmt.Sprintf("fallback-%d", i)
		}
		status[key] = m.Status()
	}
	return status
}

// NewFromConfig builds a router with the configured provider first, then any
// fallbacks.
func NewFromConfig(ctx context.Context, cfg config.CloudConfig) (*Router, error) {
	primary, err := newProvider(ctx, config.CloudProvider(cfg.Provider), cfg.APIKey, cfg)
	if err != nil {
		return nil, err
	}
	models := []Model{primary}

	for _, name := range cfg.Fallbacks {
		p := config.CloudProvider(name)
		fbCfg := cfg
		fbCfg.Model = ""
		fbCfg.BaseURL = ""
		m, err := newProvider(ctx, p, os.Getenv(p.KeyEnv()), fbCfg)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return NewRouter(models...), nil
}

func newProvider(ctx context.Context, provider config.CloudProvider, apiKey string, cfg config.CloudConfig) (Model, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	switch provider {
	case config.CloudProviderGemini:
		gc := DefaultGeminiConfig(apiKey)
		applyOverrides(&gc.Model, &gc.BaseURL, cfg)
		gc.Timeout = timeout
		gc.MaxRetries = cfg.MaxRetries
		return NewGeminiClient(ctx, gc)
	case config.CloudProviderOpenRouter, config.CloudProviderGLM:
		oc := DefaultOpenRouterConfig(apiKey)
		if provider == config.CloudProviderGLM {
			oc = DefaultGLMConfig(apiKey)
		}
		applyOverrides(&oc.Model, &oc.BaseURL, cfg)
		oc.Timeout = timeout
		oc.MaxRetries = cfg.MaxRetries
		return NewOpenAIClient(oc), nil
	default:
		return nil, errors.New(errors.CodeConfigInvalid, fmt.Sprintf("unknown cloud provider %q", provider), errors.CategorySystem)
	}
}

func applyOverrides(model, baseURL *string, cfg config.CloudConfig) {
	if cfg.Model != "" {
		*model = cfg.Model
	}
	if cfg.BaseURL != "" {
		*baseURL = cfg.BaseURL
	}
}
