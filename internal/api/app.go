// Package api serves the critique, palette and recipe operations over HTTP.
package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/flynn-ai/critic/internal/config"
	"github.com/flynn-ai/critic/internal/cost"
	"github.com/flynn-ai/critic/internal/dispatch"
	"github.com/flynn-ai/critic/internal/logging"
	"github.com/flynn-ai/critic/internal/model"
	"github.com/flynn-ai/critic/internal/ondevice"
	"github.com/flynn-ai/critic/internal/stats"
	"github.com/flynn-ai/critic/pkg/protocol"
)

// ModelReporter exposes cloud model health. model.Router implements it.
type ModelReporter interface {
	IsAvailable() bool
	Name() string
	GetStatus() map[string]*model.ModelStatus
}

// Application holds the server's dependencies.
type Application struct {
	Config config.ServerConfig

	// Operations runs the three cloud operations, normally a *service.Service.
	Operations dispatch.Remote

	// Optional collaborators
	Local      ondevice.Provider
	LocalModel string
	Models     ModelReporter
	Stats      *stats.Collector
	Costs      *cost.Tracker
	Logger     *zap.Logger
}

func (app *Application) log() *zap.Logger {
	return logging.OrNop(app.Logger).Named("api")
}

// BuildRoutes registers the endpoints on mux and wraps it with middleware.
func (app *Application) BuildRoutes(mux *http.ServeMux) http.Handler {
	mux.HandleFunc(protocol.PathCritique, app.generateArtCritique)
	mux.HandleFunc(protocol.PathPalette, app.extractColorPalette)
	mux.HandleFunc(protocol.PathRecipes, app.generateMixingRecipes)
	mux.HandleFunc(protocol.PathHealth, app.health)
	mux.HandleFunc(protocol.PathCapability, app.capability)
	mux.HandleFunc(protocol.PathStats, app.getStats)

	var h http.Handler = mux
	h = app.cors(h)
	h = app.accessLog(h)
	h = app.recoverPanic(h)
	h = app.requestID(h)
	return h
}

// Handler returns the fully wired handler on a fresh mux.
func (app *Application) Handler() http.Handler {
	return app.BuildRoutes(http.NewServeMux())
}
