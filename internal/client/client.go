// Package client calls a remote critic service over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flynn-ai/critic/internal/errors"
	"github.com/flynn-ai/critic/internal/logging"
	"github.com/flynn-ai/critic/internal/schema"
	"github.com/flynn-ai/critic/pkg/protocol"
)

const maxResponseBytes = 4 << 20

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client implements the three cloud operations against a critic server.
// Each call is a single attempt.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// New creates a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.NewBuilder(errors.CodeConfigInvalid, fmt.Sprintf("invalid remote URL %q", cfg.BaseURL)).
			Permanent().
			WithSuggestion("Set dispatch.remote_url to the critic server, e.g. http://localhost:9002").
			Build()
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL: u.String(),
		http:    hc,
		logger:  logging.OrNop(logger).Named("client"),
	}, nil
}

// CritiqueArtwork requests a critique.
func (c *Client) CritiqueArtwork(ctx context.Context, req protocol.CritiqueRequest) (protocol.CritiqueResponse, error) {
	var out protocol.CritiqueResponse
	if err := c.post(ctx, protocol.PathCritique, req, schema.CritiqueResponse, &out); err != nil {
		return protocol.CritiqueResponse{}, err
	}
	return out, nil
}

// ExtractPalette requests a palette.
func (c *Client) ExtractPalette(ctx context.Context, req protocol.PaletteRequest) (protocol.Palette, error) {
	var out protocol.Palette
	if err := c.post(ctx, protocol.PathPalette, req, schema.Palette, &out); err != nil {
		return protocol.Palette{}, err
	}
	palette, err := out.Normalize()
	if err != nil {
		return protocol.Palette{}, errors.Wrap(err, errors.CodeCloudRequestFailed, "remote palette has invalid colors", errors.CategoryPermanent)
	}
	return palette, nil
}

// GenerateMixingRecipes requests recipes for palette.
func (c *Client) GenerateMixingRecipes(ctx context.Context, palette protocol.Palette) ([]protocol.Recipe, error) {
	var out []protocol.Recipe
	if err := c.post(ctx, protocol.PathRecipes, palette, schema.Recipes, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []protocol.Recipe{}
	}
	return out, nil
}

// Health checks that the remote service is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+protocol.PathHealth, nil)
	if err != nil {
		return errors.Wrap(err, errors.CodeNetworkUnavailable, "failed to create HTTP request", errors.CategoryPermanent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CodeNetworkUnavailable, "remote service unreachable", errors.CategoryTemporary)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode != http.StatusOK {
		return errors.Temporary(errors.CodeNetworkUnavailable, fmt.Sprintf("remote health check returned %s", resp.Status))
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any, respSchema schema.Name, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "failed to encode request", errors.CategoryUser)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, errors.CodeCloudRequestFailed, "failed to create HTTP request", errors.CategoryPermanent)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CodeCloudRequestFailed, "remote request failed", errors.CategoryTemporary)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.Wrap(err, errors.CodeCloudRequestFailed, "failed to read remote response", errors.CategoryTemporary)
	}

	c.logger.Debug("remote call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", resp.Header.Get("X-Request-ID")),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return statusError(resp, raw)
	}

	if err := schema.Decode(respSchema, raw, target); err != nil {
		return errors.NewBuilder(errors.CodeCloudRequestFailed, "remote response failed validation").
			Permanent().
			Wrap(err).
			WithDetails(errors.GetDetails(schema.InvalidInput(err))...).
			Build()
	}
	return nil
}

// statusError maps a non-200 response to an AppError. Input problems stay
// user errors so their details reach the caller.
func statusError(resp *http.Response, raw []byte) error {
	var body protocol.ErrorResponse
	_ = json.Unmarshal(raw, &body)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		msg := body.Error
		if msg == "" {
			msg = "Invalid input"
		}
		return errors.NewBuilder(errors.CodeValidationFailed, msg).
			User().
			WithDetails(body.Details...).
			WithContext("request_id", body.RequestID).
			Build()
	case http.StatusRequestEntityTooLarge:
		return errors.NewBuilder(errors.CodeImageTooLarge, "image is too large for the remote service").
			User().
			WithSuggestion("Use a smaller image").
			Build()
	default:
		return errors.NewBuilder(errors.CodeCloudRequestFailed, fmt.Sprintf("remote service returned %s", resp.Status)).
			Temporary().
			WithContext("error", body.Error).
			WithContext("request_id", body.RequestID).
			Build()
	}
}
