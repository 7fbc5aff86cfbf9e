// Package service implements the three cloud operations against a vision
// model: art critique, palette extraction and mixing recipes.
package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/flynn-ai/critic/internal/cost"
	"github.com/flynn-ai/critic/internal/dataurl"
	"github.com/flynn-ai/critic/internal/errors"
	"github.com/flynn-ai/critic/internal/logging"
	"github.com/flynn-ai/critic/internal/model"
	"github.com/flynn-ai/critic/internal/prompt"
	"github.com/flynn-ai/critic/internal/schema"
	"github.com/flynn-ai/critic/pkg/protocol"
)

// Service runs critique, palette and recipe generation on a cloud model.
type Service struct {
	model  model.Model
	costs  *cost.Tracker
	logger *zap.Logger
}

// New creates a Service. costs may be nil.
func New(m model.Model, costs *cost.Tracker, logger *zap.Logger) *Service {
	return &Service{
		model:  m,
		costs:  costs,
		logger: logging.OrNop(logger).Named("service"),
	}
}

// Model returns the underlying cloud model.
func (s *Service) Model() model.Model {
	return s.model
}

// CritiqueArtwork produces a Markdown critique of the image along the topics.
func (s *Service) CritiqueArtwork(ctx context.Context, req protocol.CritiqueRequest) (protocol.CritiqueResponse, error) {
	if err := schema.ValidateValue(schema.CritiqueRequest, req); err != nil {
		return protocol.CritiqueResponse{}, schema.InvalidInput(err)
	}
	img, err := dataurl.Parse(req.Image)
	if err != nil {
		return protocol.CritiqueResponse{}, err
	}

	resp, err := s.generate(ctx, "critique", &model.Request{
		System: prompt.CritiqueSystem,
		Prompt: prompt.CloudCritique(req.Topics),
		Images: []model.Attachment{{MIMEType: img.MIMEType, Data: img.Data}},
	})
	if err != nil {
		return protocol.CritiqueResponse{}, err
	}

	critique := strings.TrimSpace(resp.Text)
	if critique == "" {
		return protocol.CritiqueResponse{}, errors.New(errors.CodeModelInvalidResponse, "model returned an empty critique", errors.CategoryPermanent)
	}
	return protocol.CritiqueResponse{Critique: critique}, nil
}

// ExtractPalette identifies the image's prominent colors grouped by role.
func (s *Service) ExtractPalette(ctx context.Context, req protocol.PaletteRequest) (protocol.Palette, error) {
	if err := schema.ValidateValue(schema.PaletteRequest, req); err != nil {
		return protocol.Palette{}, schema.InvalidInput(err)
	}
	img, err := dataurl.Parse(req.Image)
	if err != nil {
		return protocol.Palette{}, err
	}

	resp, err := s.generate(ctx, "palette", &model.Request{
		System: prompt.PaletteSystem,
		Prompt: prompt.CloudPalette(),
		Images: []model.Attachment{{MIMEType: img.MIMEType, Data: img.Data}},
		JSON:   true,
	})
	if err != nil {
		return protocol.Palette{}, err
	}

	var palette protocol.Palette
	if err := model.DecodeJSON(resp.Text, &palette); err != nil {
		return protocol.Palette{}, errors.Wrap(err, errors.CodeModelParseError, "model returned an unreadable palette", errors.CategoryPermanent)
	}
	palette, err = palette.Normalize()
	if err != nil {
		return protocol.Palette{}, errors.Wrap(err, errors.CodeModelInvalidResponse, "model returned an invalid color", errors.CategoryPermanent)
	}
	if palette.Count() == 0 {
		return protocol.Palette{}, errors.New(errors.CodeModelInvalidResponse, "model returned no colors", errors.CategoryPermanent)
	}
	return palette, nil
}

// GenerateMixingRecipes creates one recipe per palette color, in palette
// order, with whole percentages summing to 100.
func (s *Service) GenerateMixingRecipes(ctx context.Context, palette protocol.Palette) ([]protocol.Recipe, error) {
	palette, err := palette.Normalize()
	if err != nil {
		return nil, errors.NewBuilder(errors.CodeValidationFailed, "Invalid input").
			User().
			Wrap(err).
			WithDetails(err.Error()).
			Build()
	}
	if err := schema.ValidateValue(schema.Palette, palette); err != nil {
		return nil, schema.InvalidInput(err)
	}
	if palette.Count() == 0 {
		return []protocol.Recipe{}, nil
	}

	resp, err := s.generate(ctx, "recipes", &model.Request{
		System: prompt.RecipesSystem,
		Prompt: prompt.CloudRecipes(palette),
		JSON:   true,
	})
	if err != nil {
		return nil, err
	}

	var raw []protocol.Recipe
	if err := model.DecodeJSON(resp.Text, &raw); err != nil {
		// Some models wrap arrays in an object under json mode
		var wrapped struct {
			Recipes []protocol.Recipe `json:"recipes"`
		}
		if werr := model.DecodeJSON(resp.Text, &wrapped); werr != nil || wrapped.Recipes == nil {
			return nil, errors.Wrap(err, errors.CodeModelParseError, "model returned unreadable recipes", errors.CategoryPermanent)
		}
		raw = wrapped.Recipes
	}

	recipes, err := MatchRecipes(palette, raw)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeModelInvalidResponse, "model returned invalid recipes", errors.CategoryPermanent)
	}
	return recipes, nil
}

// MatchRecipes pairs each palette color with a recipe from the model, by hex
// first and then by name. The result follows palette order, carries the
// palette's own colors and has normalized percentages.
func MatchRecipes(palette protocol.Palette, raw []protocol.Recipe) ([]protocol.Recipe, error) {
	used := make([]bool, len(raw))
	hexes := make([]string, len(raw))
	for i, r := range raw {
		if c, err := r.ExtractedColor.Normalize(); err == nil {
			hexes[i] = c.Hex
		}
	}

	colors := palette.Colors()
	out := make([]protocol.Recipe, 0, len(colors))
	for _, c := range colors {
		idx := -1
		for i := range raw {
			if !used[i] && hexes[i] == c.Hex {
				idx = i
				break
			}
		}
		if idx < 0 {
			for i, r := range raw {
				if !used[i] && strings.EqualFold(strings.TrimSpace(r.ExtractedColor.Name), c.Name) {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("no recipe for %s (%s)", c.Name, c.Hex)
		}
		used[idx] = true

		recipe, err := protocol.NormalizeRecipe(protocol.Recipe{ExtractedColor: c, Recipe: raw[idx].Recipe})
		if err != nil {
			return nil, err
		}
		out = append(out, recipe)
	}
	return out, nil
}

func (s *Service) generate(ctx context.Context, kind string, req *model.Request) (*model.Response, error) {
	if s.costs != nil && s.costs.OverBudget() {
		return nil, errors.NewBuilder(errors.CodeModelUnavailable, "monthly cloud budget exhausted").
			System().
			WithSuggestion("Raise cloud.monthly_budget or wait for the next month").
			Build()
	}

	resp, err := s.model.Generate(ctx, req)
	if err != nil {
		s.logger.Warn("cloud generation failed",
			zap.String("kind", kind),
			zap.String("model", s.model.Name()),
			zap.Error(err))
		return nil, err
	}

	if s.costs != nil {
		spent := s.costs.Record(resp.Provider, resp.TokensUsed)
		s.logger.Debug("cloud generation complete",
			zap.String("kind", kind),
			zap.String("provider", resp.Provider),
			zap.String("model", resp.Model),
			zap.Int("tokens", resp.TokensUsed),
			zap.Float64("cost", spent),
			zap.Int64("duration_ms", resp.DurationMs))
	}
	return resp, nil
}
