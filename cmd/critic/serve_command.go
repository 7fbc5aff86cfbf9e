package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/flynn-ai/critic/internal/api"
	"github.com/flynn-ai/critic/internal/stats"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service for critique, palette and recipe generation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			serverCfg := cfg.Server
			if a := strings.TrimSpace(addr); a != "" {
				serverCfg.Addr = a
			}

			cs, err := ctx.cloudService(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			local, err := ctx.localProvider(cfg)
			if err != nil {
				return err
			}

			if !cs.router.IsAvailable() {
				ctx.log().Warn("no cloud model configured; generation endpoints will fail until an API key is set")
			}

			app := &api.Application{
				Config:     serverCfg,
				Operations: cs.service,
				Local:      local,
				LocalModel: cfg.Local.Model,
				Models:     cs.router,
				Stats:      stats.NewCollector(),
				Costs:      cs.costs,
				Logger:     ctx.log(),
			}
			return app.Serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
