package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/flynn-ai/critic/internal/dispatch"
	"github.com/flynn-ai/critic/internal/errors"
	"github.com/flynn-ai/critic/internal/workspace"
	"github.com/flynn-ai/critic/pkg/protocol"
)

// analysisResult is the JSON form of a finished analysis.
type analysisResult struct {
	Critique *protocol.HybridResult[protocol.CritiqueResponse] `json:"critique,omitempty"`
	Palette  *protocol.HybridResult[protocol.Palette]          `json:"palette,omitempty"`
	Recipes  *protocol.HybridResult[[]protocol.Recipe]         `json:"recipes,omitempty"`
	Errors   map[string]string                                 `json:"errors,omitempty"`
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var topics []string

	cmd := &cobra.Command{
		Use:   "analyze IMAGE",
		Short: "Critique an artwork, extract its palette and suggest mixing recipes",
		Long:  "Runs the critique and palette extraction concurrently, then generates recipes for the extracted palette.",
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

			store := workspace.NewStore(ctx.log())
			store.UploadImage(image)
			store.SelectTopics(selected...)

			// A plain Group: one failed kind must not cancel the other.
			// Wait reports the first failure, each slot keeps its own.
			var g errgroup.Group
			g.Go(func() error { return store.Run(cmd.Context(), d, dispatch.KindCritique) })
			g.Go(func() error { return store.Run(cmd.Context(), d, dispatch.KindPalette) })
			runErr := g.Wait()

			if workspace.CanGenerate(store.Snapshot(), dispatch.KindRecipes) {
				_ = store.Run(cmd.Context(), d, dispatch.KindRecipes)
			}

			snap := store.Snapshot()
			if err := cmd.Context().Err(); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				if err := writeJSON(cmd, buildAnalysis(snap)); err != nil {
					return err
				}
			} else {
				printAnalysis(cmd.OutOrStdout(), snap)
			}

			if snap.Critique.Err != nil && snap.Palette.Err != nil {
				return runErr
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&topics, "topic", "t", nil, "Topic to critique (repeatable); default all")
	return cmd
}

func buildAnalysis(s workspace.State) analysisResult {
	var res analysisResult
	errs := map[string]string{}

	if s.Critique.Result != nil {
		res.Critique = &protocol.HybridResult[protocol.CritiqueResponse]{Result: *s.Critique.Result, Source: s.Critique.Source}
	}
	if s.Palette.Result != nil {
		res.Palette = &protocol.HybridResult[protocol.Palette]{Result: *s.Palette.Result, Source: s.Palette.Source}
	}
	if s.Recipes.Result != nil {
		res.Recipes = &protocol.HybridResult[[]protocol.Recipe]{Result: *s.Recipes.Result, Source: s.Recipes.Source}
	}
	for kind, err := range map[dispatch.Kind]error{
		dispatch.KindCritique: s.Critique.Err,
		dispatch.KindPalette:  s.Palette.Err,
		dispatch.KindRecipes:  s.Recipes.Err,
	} {
		if err != nil {
			errs[string(kind)] = errors.FormatUserMessage(err)
		}
	}
	if len(errs) > 0 {
		res.Errors = errs
	}
	return res
}

func printAnalysis(out io.Writer, s workspace.State) {
	fmt.Fprintln(out, headingStyle.Render("Critique"))
	switch {
	case s.Critique.Result != nil:
		fmt.Fprint(out, renderCritique(s.Critique.Result.Critique))
		fmt.Fprintf(out, "%s %s\n\n", mutedStyle.Render("source:"), sourceLabel(s.Critique.Source))
	case s.Critique.Err != nil:
		fmt.Fprintln(out, errorStyle.Render(errors.FormatUserMessage(s.Critique.Err)))
	}

	fmt.Fprintln(out, headingStyle.Render("Palette"))
	switch {
	case s.Palette.Result != nil:
		fmt.Fprint(out, renderPalette(*s.Palette.Result))
		fmt.Fprintf(out, "%s %s\n\n", mutedStyle.Render("source:"), sourceLabel(s.Palette.Source))
	case s.Palette.Err != nil:
		fmt.Fprintln(out, errorStyle.Render(errors.FormatUserMessage(s.Palette.Err)))
	}

	if s.Recipes.Result == nil && s.Recipes.Err == nil {
		return
	}
	fmt.Fprintln(out, headingStyle.Render("Mixing recipes"))
	if s.Recipes.Result != nil {
		fmt.Fprintln(out, renderRecipes(*s.Recipes.Result))
		fmt.Fprintf(out, "%s %s\n", mutedStyle.Render("source:"), sourceLabel(s.Recipes.Source))
	} else {
		fmt.Fprintln(out, errorStyle.Render(errors.FormatUserMessage(s.Recipes.Err)))
	}
}
