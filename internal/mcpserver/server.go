// Package mcpserver exposes critique, palette and recipe generation as MCP
// tools so agents can call them over stdio.
package mcpserver

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/flynn-ai/critic/internal/dataurl"
	"github.com/flynn-ai/critic/internal/errors"
	"github.com/flynn-ai/critic/internal/logging"
	"github.com/flynn-ai/critic/pkg/protocol"
)

// Dispatcher runs the hybrid operations. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Critique(ctx context.Context, req *protocol.CritiqueRequest) (protocol.HybridResult[protocol.CritiqueResponse], error)
	Palette(ctx context.Context, req *protocol.PaletteRequest) (protocol.HybridResult[protocol.Palette], error)
	Recipes(ctx context.Context, palette *protocol.Palette) (protocol.HybridResult[[]protocol.Recipe], error)
}

// Tool names.
const (
	ToolCritique = "critique_artwork"
	ToolPalette  = "extract_color_palette"
	ToolRecipes  = "generate_mixing_recipes"
)

// Server wraps an MCP server bound to a Dispatcher.
type Server struct {
	dispatcher    Dispatcher
	maxImageBytes int64
	logger        *zap.Logger
	mcp           *mcp.Server
}

// New creates the server and registers its tools.
func New(d Dispatcher, version string, logger *zap.Logger) *Server {
	s := &Server{
		dispatcher:    d,
		maxImageBytes: dataurl.DefaultMaxBytes,
		logger:        logging.OrNop(logger).Named("mcp"),
		mcp:           mcp.NewServer(&mcp.Implementation{Name: "critic", Version: version}, nil),
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolCritique,
		Description: "Critique an artwork along the chosen topics (Color Theory, Composition, Originality, Execution). Returns Markdown with a score per topic.",
	}, s.critique)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolPalette,
		Description: "Extract the primary, secondary and tertiary colors of an artwork with artist-friendly names and hex codes.",
	}, s.palette)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolRecipes,
		Description: "Suggest paint mixing recipes (base paints and percentages) for every color in a palette.",
	}, s.recipes)

	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Run serves over stdin/stdout until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// ============================================================
// Tools
// ============================================================

// ImageInput names an artwork by data URI or local path.
type ImageInput struct {
	Image string `json:"image,omitempty" jsonschema:"artwork as a data URI (data:<mimetype>;base64,<data>)"`
	Path  string `json:"path,omitempty" jsonschema:"path to a local image file, used when image is empty"`
}

// CritiqueInput is the critique_artwork argument.
type CritiqueInput struct {
	Image  string   `json:"image,omitempty" jsonschema:"artwork as a data URI (data:<mimetype>;base64,<data>)"`
	Path   string   `json:"path,omitempty" jsonschema:"path to a local image file, used when image is empty"`
	Topics []string `json:"topics" jsonschema:"one or more of Color Theory, Composition, Originality, Execution"`
}

func resolveImage(image, path string, maxBytes int64) (string, error) {
	if image != "" {
		return image, nil
	}
	if path == "" {
		return "", errors.User(errors.CodeInvalidInput, "either image or path is required")
	}
	return dataurl.FromFile(path, maxBytes)
}

// CritiqueOutput is the critique_artwork result.
type CritiqueOutput struct {
	Critique string          `json:"critique"`
	Source   protocol.Source `json:"source"`
}

// PaletteOutput is the extract_color_palette result.
type PaletteOutput struct {
	Palette protocol.Palette `json:"palette"`
	Source  protocol.Source  `json:"source"`
}

// RecipesInput is the generate_mixing_recipes argument.
type RecipesInput struct {
	Palette protocol.Palette `json:"palette" jsonschema:"palette as returned by extract_color_palette"`
}

// RecipesOutput is the generate_mixing_recipes result.
type RecipesOutput struct {
	Recipes []protocol.Recipe `json:"recipes"`
	Source  protocol.Source   `json:"source"`
}

func (s *Server) critique(ctx context.Context, _ *mcp.CallToolRequest, in CritiqueInput) (*mcp.CallToolResult, CritiqueOutput, error) {
	image, err := resolveImage(in.Image, in.Path, s.maxImageBytes)
	if err != nil {
		return nil, CritiqueOutput{}, s.toolError(ToolCritique, err)
	}
	topics := make([]protocol.CritiqueTopic, 0, len(in.Topics))
	for _, name := range in.Topics {
		t, err := protocol.ParseTopic(name)
		if err != nil {
			return nil, CritiqueOutput{}, s.toolError(ToolCritique, errors.User(errors.CodeInvalidInput, err.Error()))
		}
		topics = append(topics, t)
	}

	res, err := s.dispatcher.Critique(ctx, &protocol.CritiqueRequest{Image: image, Topics: topics})
	if err != nil {
		return nil, CritiqueOutput{}, s.toolError(ToolCritique, err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: res.Result.Critique}},
	}, CritiqueOutput{Critique: res.Result.Critique, Source: res.Source}, nil
}

func (s *Server) palette(ctx context.Context, _ *mcp.CallToolRequest, in ImageInput) (*mcp.CallToolResult, PaletteOutput, error) {
	image, err := resolveImage(in.Image, in.Path, s.maxImageBytes)
	if err != nil {
		return nil, PaletteOutput{}, s.toolError(ToolPalette, err)
	}
	res, err := s.dispatcher.Palette(ctx, &protocol.PaletteRequest{Image: image})
	if err != nil {
		return nil, PaletteOutput{}, s.toolError(ToolPalette, err)
	}
	return nil, PaletteOutput{Palette: res.Result, Source: res.Source}, nil
}

func (s *Server) recipes(ctx context.Context, _ *mcp.CallToolRequest, in RecipesInput) (*mcp.CallToolResult, RecipesOutput, error) {
	res, err := s.dispatcher.Recipes(ctx, &in.Palette)
	if err != nil {
		return nil, RecipesOutput{}, s.toolError(ToolRecipes, err)
	}
	recipes := res.Result
	if recipes == nil {
		recipes = []protocol.Recipe{}
	}
	return nil, RecipesOutput{Recipes: recipes, Source: res.Source}, nil
}

// toolError logs err and returns its user-facing rendering, which the SDK
// reports to the client as a tool error.
func (s *Server) toolError(tool string, err error) error {
	s.logger.Warn("tool call failed", zap.String("tool", tool), zap.Error(err))
	return stderrors.New(strings.TrimSpace(errors.FormatUserMessage(err)))
}
