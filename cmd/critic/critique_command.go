package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flynn-ai/critic/pkg/protocol"
)

func newCritiqueCommand(ctx *commandContext) *cobra.Command {
	var topics []string

	cmd := &cobra.Command{
		Use:   "critique IMAGE",
		Short: "Critique an artwork",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := parseTopics(topics)
			if err != nil {
				return err
			}
			image, err := loadImage(args[0])
			if err != nil {
				return err
			}
			d, err := ctx.dispatcher(cmd.Context())
			if err != nil {
				return err
			}

			res, err := d.Critique(cmd.Context(), &protocol.CritiqueRequest{Image: image, Topics: selected})
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, res)
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderCritique(res.Result.Critique))
			fmt.Fprintf(out, "%s %s\n", mutedStyle.Render("source:"), sourceLabel(res.Source))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&topics, "topic", "t", nil, "Topic to critique (repeatable): color-theory, composition, originality, execution; default all")
	return cmd
}
