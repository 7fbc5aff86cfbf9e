// Package dispatch runs critique, palette and recipe requests on the
// on-device model when it is ready and falls back to the cloud otherwise.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/flynn-ai/critic/internal/errors"
	"github.com/flynn-ai/critic/internal/logging"
	"github.com/flynn-ai/critic/internal/model"
	"github.com/flynn-ai/critic/internal/ondevice"
	"github.com/flynn-ai/critic/internal/prompt"
	"github.com/flynn-ai/critic/internal/schema"
	"github.com/flynn-ai/critic/internal/stats"
	"github.com/flynn-ai/critic/pkg/protocol"
)

// CloudFailureMessage is shown when the cloud call fails for reasons other
// than invalid input.
const CloudFailureMessage = "The request to the cloud AI failed. Please try again."

// Remote is the cloud service boundary.
type Remote interface {
	CritiqueArtwork(ctx context.Context, req protocol.CritiqueRequest) (protocol.CritiqueResponse, error)
	ExtractPalette(ctx context.Context, req protocol.PaletteRequest) (protocol.Palette, error)
	GenerateMixingRecipes(ctx context.Context, palette protocol.Palette) ([]protocol.Recipe, error)
}

// Options configures a Dispatcher.
type Options struct {
	Logger *zap.Logger
	Stats  *stats.Collector

	// LocalTimeout bounds probe, session open and completion together.
	LocalTimeout time.Duration
	// RemoteTimeout bounds the cloud call.
	RemoteTimeout time.Duration
	// SkipLocalForImages routes image-bearing requests straight to the cloud.
	SkipLocalForImages bool
}

// DefaultOptions returns the default timeouts and image policy.
func DefaultOptions() Options {
	return Options{
		LocalTimeout:       30 * time.Second,
		RemoteTimeout:      120 * time.Second,
		SkipLocalForImages: true,
	}
}

// Dispatcher implements local-first execution with a single cloud fallback.
type Dispatcher struct {
	local  ondevice.Provider
	remote Remote
	opts   Options
	logger *zap.Logger
}

// New creates a Dispatcher. A nil local provider behaves as ondevice.Disabled.
func New(local ondevice.Provider, remote Remote, opts Options) *Dispatcher {
	if local == nil {
		local = ondevice.Disabled{}
	}
	defaults := DefaultOptions()
	if opts.LocalTimeout <= 0 {
		opts.LocalTimeout = defaults.LocalTimeout
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = defaults.RemoteTimeout
	}
	return &Dispatcher{
		local:  local,
		remote: remote,
		opts:   opts,
		logger: logging.OrNop(opts.Logger).Named("dispatch"),
	}
}

var errMissingPayload = apperrors.User(apperrors.CodeInvalidInput, "request payload is required")

// errNotAttempted marks a local path that was skipped rather than failed.
var errNotAttempted = errors.New("local attempt skipped")

// Dispatch runs req and reports where the result came from. Invalid
// critique requests are rejected before either model sees them.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Outcome, error) {
	if req == nil {
		return Outcome{}, errMissingPayload
	}
	if job, ok := req.(CritiqueJob); ok {
		if err := schema.ValidateValue(schema.CritiqueRequest, job.Payload); err != nil {
			return Outcome{}, schema.InvalidInput(err)
		}
	}

	requestID := uuid.NewString()
	log := d.logger.With(zap.String("request_id", requestID), zap.String("kind", string(req.Kind())))
	start := time.Now()
	fellBack := false

	out, err := apperrors.FallbackWithResult(
		func() (Outcome, error) {
			return d.runLocal(ctx, req, log)
		},
		func(localErr error) (Outcome, error) {
			if !errors.Is(localErr, errNotAttempted) {
				fellBack = true
				log.Warn("on-device inference failed, falling back to cloud", zap.Error(localErr))
			}
			return d.runRemote(ctx, req, log)
		},
	)

	elapsed := time.Since(start)
	if d.opts.Stats != nil {
		d.opts.Stats.Record(stats.Outcome{
			Kind:     string(req.Kind()),
			Source:   string(out.Source),
			FellBack: fellBack,
			Duration: elapsed,
			Err:      err,
		})
	}
	if err != nil {
		return Outcome{}, err
	}

	out.RequestID = requestID
	out.Kind = req.Kind()
	log.Info("dispatch complete",
		zap.String("source", string(out.Source)),
		zap.Bool("fell_back", fellBack),
		zap.Duration("elapsed", elapsed))
	return out, nil
}

// Probe reports local model availability. Probe errors count as unsupported.
func (d *Dispatcher) Probe(ctx context.Context) ondevice.Availability {
	ctx, cancel := context.WithTimeout(ctx, d.opts.LocalTimeout)
	defer cancel()

	avail, err := d.local.Probe(ctx)
	if err != nil {
		d.logger.Debug("capability probe failed", zap.Error(err))
		return ondevice.Unsupported
	}
	return avail
}

// ============================================================
// Typed entry points
// ============================================================

// Critique runs a critique request.
func (d *Dispatcher) Critique(ctx context.Context, req *protocol.CritiqueRequest) (protocol.HybridResult[protocol.CritiqueResponse], error) {
	if req == nil {
		return protocol.HybridResult[protocol.CritiqueResponse]{}, errMissingPayload
	}
	out, err := d.Dispatch(ctx, CritiqueJob{Payload: *req})
	if err != nil {
		return protocol.HybridResult[protocol.CritiqueResponse]{}, err
	}
	return protocol.HybridResult[protocol.CritiqueResponse]{Result: *out.Critique, Source: out.Source}, nil
}

// Palette runs a palette extraction request.
func (d *Dispatcher) Palette(ctx context.Context, req *protocol.PaletteRequest) (protocol.HybridResult[protocol.Palette], error) {
	if req == nil {
		return protocol.HybridResult[protocol.Palette]{}, errMissingPayload
	}
	out, err := d.Dispatch(ctx, PaletteJob{Payload: *req})
	if err != nil {
		return protocol.HybridResult[protocol.Palette]{}, err
	}
	return protocol.HybridResult[protocol.Palette]{Result: *out.Palette, Source: out.Source}, nil
}

// Recipes runs a mixing recipe request.
func (d *Dispatcher) Recipes(ctx context.Context, palette *protocol.Palette) (protocol.HybridResult[[]protocol.Recipe], error) {
	if palette == nil {
		return protocol.HybridResult[[]protocol.Recipe]{}, errMissingPayload
	}
	out, err := d.Dispatch(ctx, RecipesJob{Palette: *palette})
	if err != nil {
		return protocol.HybridResult[[]protocol.Recipe]{}, err
	}
	return protocol.HybridResult[[]protocol.Recipe]{Result: out.Recipes, Source: out.Source}, nil
}

// ============================================================
// Local path
// ============================================================

func (d *Dispatcher) runLocal(ctx context.Context, req Request, log *zap.Logger) (Outcome, error) {
	if d.opts.SkipLocalForImages && req.ImageBearing() {
		log.Debug("skipping on-device model for image-bearing request")
		return Outcome{}, errNotAttempted
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.LocalTimeout)
	defer cancel()

	avail, err := d.local.Probe(ctx)
	if err != nil {
		log.Debug("capability probe failed", zap.Error(err))
		avail = ondevice.Unsupported
	}
	if avail != ondevice.Ready {
		log.Debug("on-device model not ready, using cloud", zap.String("availability", string(avail)))
		return Outcome{}, errNotAttempted
	}

	session, err := d.local.Open(ctx)
	if err != nil {
		return Outcome{}, apperrors.Wrap(err, apperrors.CodeLocalSessionFailed, "failed to open on-device session", apperrors.CategoryTemporary)
	}
	// Closed before the fallback starts
	defer session.Close()

	raw, err := session.Complete(ctx, localPrompt(req))
	if err != nil {
		return Outcome{}, apperrors.Wrap(err, apperrors.CodeLocalSessionFailed, "on-device completion failed", apperrors.CategoryTemporary)
	}

	out, err := parseLocal(req, raw)
	if err != nil {
		return Outcome{}, apperrors.Wrap(err, apperrors.CodeLocalParseFailed, "on-device output unusable", apperrors.CategoryPermanent)
	}
	out.Source = protocol.SourceOnDevice
	return out, nil
}

func localPrompt(req Request) string {
	switch r := req.(type) {
	case CritiqueJob:
		return prompt.LocalCritique(r.Payload.Topics)
	case PaletteJob:
		return prompt.LocalPalette()
	case RecipesJob:
		return prompt.LocalRecipes(r.Palette)
	}
	return ""
}

func parseLocal(req Request, raw string) (Outcome, error) {
	switch r := req.(type) {
	case CritiqueJob:
		if strings.TrimSpace(raw) == "" {
			return Outcome{}, errors.New("empty critique")
		}
		return Outcome{Critique: &protocol.CritiqueResponse{Critique: raw}}, nil

	case PaletteJob:
		var palette protocol.Palette
		if err := model.DecodeJSON(raw, &palette); err != nil {
			return Outcome{}, err
		}
		palette, err := palette.Normalize()
		if err != nil {
			return Outcome{}, err
		}
		if palette.Count() == 0 {
			return Outcome{}, errors.New("palette has no colors")
		}
		return Outcome{Palette: &palette}, nil

	case RecipesJob:
		var recipes []protocol.Recipe
		if err := model.DecodeJSON(raw, &recipes); err != nil {
			return Outcome{}, err
		}
		if err := protocol.ValidateRecipes(r.Palette, recipes); err != nil {
			return Outcome{}, err
		}
		return Outcome{Recipes: recipes}, nil
	}
	return Outcome{}, fmt.Errorf("unknown request kind %q", req.Kind())
}

// ============================================================
// Cloud path
// ============================================================

func (d *Dispatcher) runRemote(ctx context.Context, req Request, log *zap.Logger) (Outcome, error) {
	if d.remote == nil {
		return Outcome{}, cloudFailure(apperrors.New(apperrors.CodeModelUnavailable, "no cloud service configured", apperrors.CategorySystem))
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.RemoteTimeout)
	defer cancel()

	var (
		out Outcome
		err error
	)
	switch r := req.(type) {
	case CritiqueJob:
		var res protocol.CritiqueResponse
		if res, err = d.remote.CritiqueArtwork(ctx, r.Payload); err == nil {
			out.Critique = &res
		}
	case PaletteJob:
		var res protocol.Palette
		if res, err = d.remote.ExtractPalette(ctx, r.Payload); err == nil {
			out.Palette = &res
		}
	case RecipesJob:
		out.Recipes, err = d.remote.GenerateMixingRecipes(ctx, r.Palette)
	default:
		err = fmt.Errorf("unknown request kind %q", req.Kind())
	}

	if err != nil {
		log.Error("cloud request failed", zap.Error(err))
		return Outcome{}, cloudFailure(err)
	}
	out.Source = protocol.SourceCloud
	return out, nil
}

// cloudFailure keeps input errors (with their details) and replaces
// everything else with the generic cloud failure message.
func cloudFailure(err error) error {
	if apperrors.GetCategory(err) == apperrors.CategoryUser {
		return err
	}
	return apperrors.NewBuilder(apperrors.CodeCloudRequestFailed, CloudFailureMessage).
		Temporary().
		Wrap(err).
		WithSuggestion("Check your network connection and cloud provider settings").
		Build()
}
