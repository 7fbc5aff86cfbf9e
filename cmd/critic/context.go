package main

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/flynn-ai/critic/internal/client"
	"github.com/flynn-ai/critic/internal/config"
	"github.com/flynn-ai/critic/internal/cost"
	"github.com/flynn-ai/critic/internal/dispatch"
	"github.com/flynn-ai/critic/internal/logging"
	"github.com/flynn-ai/critic/internal/model"
	"github.com/flynn-ai/critic/internal/ondevice"
	"github.com/flynn-ai/critic/internal/service"
	"github.com/flynn-ai/critic/internal/stats"
)

type commandContext struct {
	configFlag  *string
	verboseFlag *bool
	jsonFlag    *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	logger *zap.Logger
}

func newCommandContext(configFlag *string, verboseFlag, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		verboseFlag: verboseFlag,
		jsonFlag:    jsonFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag != nil {
		if p := strings.TrimSpace(*c.configFlag); p != "" {
			return p
		}
	}
	return config.DefaultPath()
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		logger, err := logging.NewFromConfig(cfg, c.verbose())
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

func (c *commandContext) verbose() bool {
	return c.verboseFlag != nil && *c.verboseFlag
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) log() *zap.Logger {
	return logging.OrNop(c.logger)
}

func (c *commandContext) close() {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

// localProvider returns the configured on-device provider.
func (c *commandContext) localProvider(cfg *config.Config) (ondevice.Provider, error) {
	if config.LocalProvider(cfg.Local.Provider) == config.LocalProviderNone {
		return ondevice.Disabled{}, nil
	}
	return ondevice.NewOllama(ondevice.OllamaConfig{
		URL:          cfg.Local.Endpoint,
		Model:        cfg.Local.Model,
		ProbeTimeout: cfg.ProbeTimeout(),
	})
}

// cloudService is the in-process cloud side: model router, cost tracker and
// the service running the three operations.
type cloudService struct {
	router  *model.Router
	costs   *cost.Tracker
	service *service.Service
}

func (c *commandContext) cloudService(ctx context.Context, cfg *config.Config) (*cloudService, error) {
	router, err := model.NewFromConfig(ctx, cfg.Cloud)
	if err != nil {
		return nil, err
	}
	costs := cost.NewTracker(cfg.Cloud.MonthlyBudget)
	return &cloudService{
		router:  router,
		costs:   costs,
		service: service.New(router, costs, c.log()),
	}, nil
}

// remote returns the cloud boundary: an HTTP client when a remote URL is
// configured, the in-process service otherwise.
func (c *commandContext) remote(ctx context.Context, cfg *config.Config) (dispatch.Remote, error) {
	if cfg.IsRemote() {
		return client.New(client.Config{
			BaseURL: cfg.Dispatch.RemoteURL,
			Timeout: cfg.RemoteTimeout(),
		}, c.log())
	}
	cs, err := c.cloudService(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return cs.service, nil
}

func (c *commandContext) dispatcher(ctx context.Context) (*dispatch.Dispatcher, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	local, err := c.localProvider(cfg)
	if err != nil {
		return nil, err
	}
	remote, err := c.remote(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return dispatch.New(local, remote, dispatch.Options{
		Logger:             c.log(),
		Stats:              stats.NewCollector(),
		LocalTimeout:       cfg.LocalTimeout(),
		RemoteTimeout:      cfg.RemoteTimeout(),
		SkipLocalForImages: cfg.Dispatch.SkipLocalForImages,
	}), nil
}
