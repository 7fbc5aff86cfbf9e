package ondevice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "github.com/flynn-ai/critic/internal/errors"
)

const maxResponseBytes = 4 << 20

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	URL          string
	Model        string
	ProbeTimeout time.Duration
}

// Ollama is a Provider backed by a local Ollama server.
type Ollama struct {
	baseURL      string
	model        string
	probeTimeout time.Duration
	httpClient   *http.Client
}

// NewOllama creates an Ollama provider.
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("ollama URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}

	return &Ollama{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		model:        cfg.Model,
		probeTimeout: cfg.ProbeTimeout,
		// Request deadlines come from the caller's context
		httpClient: &http.Client{},
	}, nil
}

// Model returns the configured model name.
func (o *Ollama) Model() string {
	return o.model
}

// Probe lists installed models. An unreachable server is Unsupported; a
// reachable server without the configured model is DownloadPending.
func (o *Ollama) Probe(ctx context.Context) (Availability, error) {
	ctx, cancel := context.WithTimeout(ctx, o.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return Unsupported, fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return Unsupported, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Unsupported, fmt.Errorf("ollama probe returned status %d", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&tags); err != nil {
		return Unsupported, fmt.Errorf("failed to decode model list: %w", err)
	}

	for _, m := range tags.Models {
		if matchesModel(m.Name, o.model) || matchesModel(m.Model, o.model) {
			return Ready, nil
		}
	}
	return DownloadPending, nil
}

// matchesModel compares names, treating a missing tag as ":latest".
func matchesModel(installed, want string) bool {
	if installed == "" {
		return false
	}
	if !strings.Contains(want, ":") {
		want += ":latest"
	}
	if !strings.Contains(installed, ":") {
		installed += ":latest"
	}
	return installed == want
}

// Pull asks Ollama to download the configured model and blocks until done.
func (o *Ollama) Pull(ctx context.Context) error {
	body, err := json.Marshal(map[string]any{"model": o.model, "stream": false})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create pull request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeLocalUnavailable, "ollama pull failed", apperrors.CategoryTemporary)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := readLimitedBody(resp.Body)
		return apperrors.New(apperrors.CodeLocalUnavailable, fmt.Sprintf("ollama pull returned status %d: %s", resp.StatusCode, msg), apperrors.CategoryTemporary)
	}

	var status pullResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode pull response: %w", err)
	}
	if status.Error != "" {
		return apperrors.New(apperrors.CodeLocalUnavailable, "ollama pull failed: "+status.Error, apperrors.CategoryPermanent)
	}
	return nil
}

// Open creates a session on the configured model.
func (o *Ollama) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &ollamaSession{provider: o}, nil
}

type ollamaSession struct {
	provider *Ollama

	mu     sync.Mutex
	closed bool
}

func (s *ollamaSession) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return "", ErrSessionClosed
	}

	body, err := json.Marshal(map[string]any{
		"model":  s.provider.model,
		"prompt": prompt,
		"stream": false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.provider.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.provider.httpClient.Do(req)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeLocalSessionFailed, "local model request failed", apperrors.CategoryTemporary)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := readLimitedBody(resp.Body)
		return "", apperrors.New(apperrors.CodeLocalSessionFailed, fmt.Sprintf("ollama returned status %d: %s", resp.StatusCode, msg), apperrors.CategoryTemporary)
	}

	var out generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeLocalSessionFailed, "failed to decode local model response", apperrors.CategoryPermanent)
	}
	if out.Error != "" {
		return "", apperrors.New(apperrors.CodeLocalSessionFailed, "local model error: "+out.Error, apperrors.CategoryPermanent)
	}
	return out.Response, nil
}

func (s *ollamaSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func readLimitedBody(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, 1024))
	return strings.TrimSpace(string(b)), err
}

// ============================================================
// Ollama API Types
// ============================================================

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

type generateResponse struct {
	Model     string `json:"model"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count"`
	Error     string `json:"error,omitempty"`
}

type pullResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
