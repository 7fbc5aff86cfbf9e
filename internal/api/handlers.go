package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/flynn-ai/critic/internal/errors"
	"github.com/flynn-ai/critic/internal/ondevice"
	"github.com/flynn-ai/critic/internal/schema"
	"github.com/flynn-ai/critic/internal/stats"
	"github.com/flynn-ai/critic/pkg/protocol"
)

const (
	msgInvalidInput = "Invalid input"
	msgUnexpected   = "An unexpected error occurred."
)

func (app *Application) generateArtCritique(w http.ResponseWriter, r *http.Request) {
	var req protocol.CritiqueRequest
	if !app.decodeBody(w, r, schema.CritiqueRequest, &req) {
		return
	}
	app.run(w, r, "critique", func(ctx context.Context) (any, error) {
		return app.Operations.CritiqueArtwork(ctx, req)
	})
}

func (app *Application) extractColorPalette(w http.ResponseWriter, r *http.Request) {
	var req protocol.PaletteRequest
	if !app.decodeBody(w, r, schema.PaletteRequest, &req) {
		return
	}
	app.run(w, r, "palette", func(ctx context.Context) (any, error) {
		return app.Operations.ExtractPalette(ctx, req)
	})
}

func (app *Application) generateMixingRecipes(w http.ResponseWriter, r *http.Request) {
	var palette protocol.Palette
	if !app.decodeBody(w, r, schema.Palette, &palette) {
		return
	}
	app.run(w, r, "recipes", func(ctx context.Context) (any, error) {
		return app.Operations.GenerateMixingRecipes(ctx, palette)
	})
}

// run executes one operation, records it and writes the result or error.
func (app *Application) run(w http.ResponseWriter, r *http.Request, kind string, op func(context.Context) (any, error)) {
	start := time.Now()
	result, err := op(r.Context())

	if app.Stats != nil {
		o := stats.Outcome{Kind: kind, Duration: time.Since(start), Err: err}
		if err == nil {
			o.Source = string(protocol.SourceCloud)
		}
		app.Stats.Record(o)
	}

	if err != nil {
		app.operationError(w, r, err)
		return
	}
	app.writeJSON(w, http.StatusOK, result)
}

// decodeBody enforces method, size and schema before anything is decoded.
func (app *Application) decodeBody(w http.ResponseWriter, r *http.Request, name schema.Name, target any) bool {
	if r.Method != http.MethodPost {
		app.methodNotAllowed(w, r, http.MethodPost)
		return false
	}

	if limit := app.maxBodyBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			app.writeError(w, r, http.StatusRequestEntityTooLarge, "Request body too large", nil)
			return false
		}
		app.writeError(w, r, http.StatusBadRequest, msgInvalidInput, []string{"failed to read body"})
		return false
	}

	if err := schema.Decode(name, raw, target); err != nil {
		var verr *schema.ValidationError
		if stderrors.As(err, &verr) {
			app.writeError(w, r, http.StatusBadRequest, msgInvalidInput, verr.Details)
			return false
		}
		app.writeError(w, r, http.StatusBadRequest, msgInvalidInput, []string{err.Error()})
		return false
	}
	return true
}

func (app *Application) operationError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.GetCategory(err) == errors.CategoryUser {
		details := errors.GetDetails(err)
		if len(details) == 0 {
			var appErr *errors.AppError
			if stderrors.As(err, &appErr) {
				details = []string{appErr.Message}
			}
		}
		app.writeError(w, r, http.StatusBadRequest, msgInvalidInput, details)
		return
	}

	app.log().Error("operation failed",
		zap.String("request_id", RequestIDFrom(r.Context())),
		zap.String("path", r.URL.Path),
		zap.String("code", errors.GetCode(err)),
		zap.Error(err))
	app.writeError(w, r, http.StatusInternalServerError, msgUnexpected, nil)
}

// ============================================================
// Status endpoints
// ============================================================

type healthResponse struct {
	Status     string `json:"status"`
	CloudModel string `json:"cloud_model,omitempty"`
	Uptime     string `json:"uptime,omitempty"`
}

func (app *Application) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		app.methodNotAllowed(w, r, http.MethodGet)
		return
	}

	resp := healthResponse{Status: "ok"}
	if app.Models != nil {
		resp.CloudModel = app.Models.Name()
		if !app.Models.IsAvailable() {
			resp.Status = "degraded"
		}
	}
	if app.Stats != nil {
		resp.Uptime = time.Since(app.Stats.StartTime()).Round(time.Second).String()
	}
	app.writeJSON(w, http.StatusOK, resp)
}

type capabilityResponse struct {
	Availability ondevice.Availability `json:"availability"`
	Model        string                `json:"model,omitempty"`
}

func (app *Application) capability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		app.methodNotAllowed(w, r, http.MethodGet)
		return
	}

	resp := capabilityResponse{Availability: ondevice.Unsupported, Model: app.LocalModel}
	if app.Local != nil {
		avail, err := app.Local.Probe(r.Context())
		if err != nil {
			app.log().Debug("capability probe failed", zap.Error(err))
		} else {
			resp.Availability = avail
		}
	}
	app.writeJSON(w, http.StatusOK, resp)
}

type statsResponse struct {
	Dispatch *stats.Stats `json:"dispatch,omitempty"`
	Cost     any          `json:"cost,omitempty"`
	Models   any          `json:"models,omitempty"`
}

func (app *Application) getStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		app.methodNotAllowed(w, r, http.MethodGet)
		return
	}

	var resp statsResponse
	if app.Stats != nil {
		resp.Dispatch = app.Stats.Collect()
	}
	if app.Costs != nil {
		resp.Cost = map[string]any{
			"daily":   app.Costs.GetDailyStats(),
			"monthly": app.Costs.GetMonthlyStats(),
		}
	}
	if app.Models != nil {
		resp.Models = app.Models.GetStatus()
	}
	app.writeJSON(w, http.StatusOK, resp)
}

// ============================================================
// Responses
// ============================================================

func (app *Application) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.log().Warn("failed to write response", zap.Error(err))
	}
}

func (app *Application) writeError(w http.ResponseWriter, r *http.Request, status int, msg string, details []string) {
	app.writeJSON(w, status, protocol.ErrorResponse{
		Error:     msg,
		Details:   details,
		RequestID: RequestIDFrom(r.Context()),
	})
}

func (app *Application) methodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	app.writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
}

func (app *Application) maxBodyBytes() int64 {
	return int64(app.Config.MaxBodyMB) << 20
}
