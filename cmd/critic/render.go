package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/flynn-ai/critic/pkg/protocol"
)

const wrapWidth = 80

var (
	headingStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	onDeviceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	cloudStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func sourceLabel(src protocol.Source) string {
	if src == protocol.SourceOnDevice {
		return onDeviceStyle.Render("on-device")
	}
	return cloudStyle.Render(string(src))
}

// renderCritique renders the Markdown critique for the terminal. The raw
// text is returned when the renderer cannot be built.
func renderCritique(markdown string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return markdown
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}

func swatch(hex string) string {
	return lipgloss.NewStyle().Background(lipgloss.Color(hex)).Render("    ")
}

func renderPalette(p protocol.Palette) string {
	var b strings.Builder
	groups := []struct {
		title  string
		colors []protocol.Color
	}{
		{"Primary", p.Primary},
		{"Secondary", p.Secondary},
		{"Tertiary", p.Tertiary},
	}
	for _, g := range groups {
		if len(g.colors) == 0 {
			continue
		}
		b.WriteString(headingStyle.Render(g.title))
		b.WriteString("\n")
		for _, c := range g.colors {
			fmt.Fprintf(&b, "  %s  %-24s %s\n", swatch(c.Hex), c.Name, mutedStyle.Render(c.Hex))
		}
	}
	return b.String()
}

func formatIngredients(r protocol.Recipe) string {
	parts := make([]string, 0, len(r.Recipe))
	for _, ing := range r.Recipe {
		parts = append(parts, fmt.Sprintf("%g%% %s", ing.Percent, ing.Name))
	}
	return strings.Join(parts, " + ")
}

func renderRecipes(recipes []protocol.Recipe) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"", "Color", "Hex", "Mix"})
	for _, r := range recipes {
		tw.AppendRow(table.Row{swatch(r.ExtractedColor.Hex), r.ExtractedColor.Name, r.ExtractedColor.Hex, formatIngredients(r)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignLeft},
		{Number: 4, WidthMax: 50},
	})
	return tw.Render()
}
