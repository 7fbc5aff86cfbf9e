package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flynn-ai/critic/pkg/protocol"
)

func newRecipesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recipes (IMAGE | PALETTE.json)",
		Short: "Suggest paint mixing recipes for a palette",
		Long:  "Suggest paint mixing recipes. Given an image, its palette is extracted first.\nA .json argument is read as a palette, including the output of 'critic palette --json'.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := ctx.dispatcher(cmd.Context())
			if err != nil {
				return err
			}

			var palette protocol.Palette
			if strings.EqualFold(filepath.Ext(args[0]), ".json") {
				if palette, err = loadPalette(args[0]); err != nil {
					return err
				}
			} else {
				image, err := loadImage(args[0])
				if err != nil {
					return err
				}
				extracted, err := d.Palette(cmd.Context(), &protocol.PaletteRequest{Image: image})
				if err != nil {
					return err
				}
				palette = extracted.Result
			}

			res, err := d.Recipes(cmd.Context(), &palette)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, res)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderRecipes(res.Result))
			fmt.Fprintf(out, "%s %s\n", mutedStyle.Render("source:"), sourceLabel(res.Source))
			return nil
		},
	}
}
