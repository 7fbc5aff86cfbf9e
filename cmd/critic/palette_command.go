package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flynn-ai/critic/pkg/protocol"
)

func newPaletteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "palette IMAGE",
		Short: "Extract the color palette of an artwork",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := loadImage(args[0])
			if err != nil {
				return err
			}
			d, err := ctx.dispatcher(cmd.Context())
			if err != nil {
				return err
			}

			res, err := d.Palette(cmd.Context(), &protocol.PaletteRequest{Image: image})
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, res)
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderPalette(res.Result))
			fmt.Fprintf(out, "%s %s\n", mutedStyle.Render("source:"), sourceLabel(res.Source))
			return nil
		},
	}
}
