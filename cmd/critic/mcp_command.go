package main

import (
	"github.com/spf13/cobra"

	"github.com/flynn-ai/critic/internal/mcpserver"
)

func newMCPCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the critique tools over MCP on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := ctx.dispatcher(cmd.Context())
			if err != nil {
				return err
			}
			return mcpserver.New(d, version, ctx.log()).Run(cmd.Context())
		},
	}
}
