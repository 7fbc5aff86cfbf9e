package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/flynn-ai/critic/internal/client"
	"github.com/flynn-ai/critic/internal/config"
	"github.com/flynn-ai/critic/internal/errors"
	"github.com/flynn-ai/critic/internal/model"
	"github.com/flynn-ai/critic/internal/ondevice"
)

type probeReport struct {
	Local struct {
		Provider     string                `json:"provider"`
		Model        string                `json:"model,omitempty"`
		Availability ondevice.Availability `json:"availability"`
		Error        string                `json:"error,omitempty"`
	} `json:"local"`
	Remote *remoteReport                 `json:"remote,omitempty"`
	Cloud  map[string]*model.ModelStatus `json:"cloud,omitempty"`
}

type remoteReport struct {
	URL     string `json:"url"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var pull bool

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Report whether the local model and the cloud are usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			local, err := ctx.localProvider(cfg)
			if err != nil {
				return err
			}

			var report probeReport
			report.Local.Provider = cfg.Local.Provider
			if config.LocalProvider(cfg.Local.Provider) != config.LocalProviderNone {
				report.Local.Model = cfg.Local.Model
			}
			report.Local.Availability, err = probeLocal(cmd.Context(), cfg, local)
			if err != nil {
				report.Local.Error = err.Error()
			}

			if pull && report.Local.Availability == ondevice.DownloadPending {
				ollama, ok := local.(*ondevice.Ollama)
				if !ok {
					return errors.User(errors.CodeLocalUnavailable, "the configured local provider cannot download models")
				}
				ctx.log().Info("pulling local model; this can take a while")
				if err := ollama.Pull(cmd.Context()); err != nil {
					return err
				}
				report.Local.Availability, err = probeLocal(cmd.Context(), cfg, local)
				if err != nil {
					report.Local.Error = err.Error()
				}
			}

			if cfg.IsRemote() {
				report.Remote = probeRemote(cmd.Context(), cfg)
			} else {
				cs, err := ctx.cloudService(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				report.Cloud = cs.router.GetStatus()
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, report)
			}
			printProbe(cmd, report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&pull, "pull", false, "Download the local model when it is not installed")
	return cmd
}

func probeLocal(ctx context.Context, cfg *config.Config, local ondevice.Provider) (ondevice.Availability, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.LocalTimeout())
	defer cancel()
	avail, err := local.Probe(ctx)
	if err != nil {
		return ondevice.Unsupported, err
	}
	return avail, nil
}

func probeRemote(ctx context.Context, cfg *config.Config) *remoteReport {
	report := &remoteReport{URL: cfg.Dispatch.RemoteURL}
	c, err := client.New(client.Config{BaseURL: cfg.Dispatch.RemoteURL, Timeout: cfg.ProbeTimeout()}, nil)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	if err := c.Health(ctx); err != nil {
		report.Error = err.Error()
		return report
	}
	report.Healthy = true
	return report
}

func printProbe(cmd *cobra.Command, r probeReport) {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, headingStyle.Render("Local model"))
	rows := [][]string{{r.Local.Provider, r.Local.Model, string(r.Local.Availability), r.Local.Error}}
	fmt.Fprintln(out, renderTable([]string{"Provider", "Model", "Availability", "Error"}, rows))

	if r.Remote != nil {
		fmt.Fprintln(out, headingStyle.Render("Remote service"))
		healthy := "no"
		if r.Remote.Healthy {
			healthy = "yes"
		}
		fmt.Fprintln(out, renderTable([]string{"URL", "Healthy", "Error"}, [][]string{{r.Remote.URL, healthy, r.Remote.Error}}))
	}

	if len(r.Cloud) > 0 {
		fmt.Fprintln(out, headingStyle.Render("Cloud models"))
		keys := make([]string, 0, len(r.Cloud))
		for k := range r.Cloud {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rows := make([][]string, 0, len(keys))
		for _, k := range keys {
			s := r.Cloud[k]
			available := "no"
			if s.Available {
				available = "yes"
			}
			rows = append(rows, []string{k, s.Provider, s.Name, available, s.Breaker})
		}
		fmt.Fprintln(out, renderTable([]string{"Role", "Provider", "Model", "Available", "Breaker"}, rows))
	}
}
