package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/critic/internal/api"
	"github.com/flynn-ai/critic/internal/config"
	"github.com/flynn-ai/critic/internal/dispatch"
	"github.com/flynn-ai/critic/internal/errors"
	"github.com/flynn-ai/critic/pkg/protocol"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CRITIC_CONFIG", "")
	t.Setenv("CRITIC_REMOTE_URL", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("GLM_API_KEY", "")
	return home
}

type stubOps struct{}

func (stubOps) CritiqueArtwork(_ context.Context, req protocol.CritiqueRequest) (protocol.CritiqueResponse, error) {
	var b strings.Builder
	for _, t := range req.Topics {
		fmt.Fprintf(&b, "### %s: 7/10\n**Key Insight:** Solid.\n\n", t)
	}
	return protocol.CritiqueResponse{Critique: b.String()}, nil
}

func (stubOps) ExtractPalette(context.Context, protocol.PaletteRequest) (protocol.Palette, error) {
	return protocol.Palette{
		Primary:   []protocol.Color{{Name: "Cadmium Red", Hex: "#e30022"}},
		Secondary: []protocol.Color{{Name: "Sky", Hex: "#87ceeb"}},
		Tertiary:  []protocol.Color{},
	}, nil
}

func (stubOps) GenerateMixingRecipes(_ context.Context, p protocol.Palette) ([]protocol.Recipe, error) {
	out := make([]protocol.Recipe, 0, p.Count())
	for _, c := range p.Colors() {
		out = append(out, protocol.Recipe{
			ExtractedColor: c,
			Recipe: []protocol.MixingIngredient{
				{Name: "Titanium White", Percent: 30},
				{Name: "Ultramarine Blue", Percent: 70},
			},
		})
	}
	return out, nil
}

// remoteSetup starts a critic server backed by stubOps and writes a config
// that routes everything to it.
// failingOps fails every operation the way a broken cloud model does.
type failingOps struct{}

func (failingOps) CritiqueArtwork(context.Context, protocol.CritiqueRequest) (protocol.CritiqueResponse, error) {
	return protocol.CritiqueResponse{}, errors.Temporary(errors.CodeModelUnavailable, "model down")
}

func (failingOps) ExtractPalette(context.Context, protocol.PaletteRequest) (protocol.Palette, error) {
	return protocol.Palette{}, errors.Temporary(errors.CodeModelUnavailable, "model down")
}

func (failingOps) GenerateMixingRecipes(context.Context, protocol.Palette) ([]protocol.Recipe, error) {
	return nil, errors.Temporary(errors.CodeModelUnavailable, "model down")
}

func remoteSetup(t *testing.T) (configPath, imagePath string) {
	t.Helper()
	return remoteSetupWith(t, stubOps{})
}

func remoteSetupWith(t *testing.T, ops dispatch.Remote) (configPath, imagePath string) {
	t.Helper()
	dir := isolate(t)

	app := &api.Application{Config: config.Default().Server, Operations: ops}
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	configPath = filepath.Join(dir, "config.toml")
	cfg := fmt.Sprintf(`
[local]
provider = "none"

[dispatch]
remote_url = %q
local_timeout_seconds = 5
remote_timeout_seconds = 5
skip_local_for_images = true

[logging]
level = "error"
`, srv.URL)
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o644))

	imagePath = filepath.Join(dir, "art.png")
	require.NoError(t, os.WriteFile(imagePath, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o644))
	return configPath, imagePath
}

func TestConfigInitAndShow(t *testing.T) {
	dir := isolate(t)
	target := filepath.Join(dir, "nested", "config.toml")

	out, err := runCLI(t, "--config", target, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote default configuration")
	assert.FileExists(t, target)

	_, err = runCLI(t, "--config", target, "config", "init")
	assert.Error(t, err)

	_, err = runCLI(t, "--config", target, "config", "init", "--overwrite")
	require.NoError(t, err)

	t.Setenv("GEMINI_API_KEY", "AIzaSecretKeyValue")
	out, err = runCLI(t, "--config", target, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "[server]")
	assert.Contains(t, out, "AIza")
	assert.NotContains(t, out, "SecretKeyValue")
}

func TestInvalidConfigRejected(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[local]\nprovider = \"tpu\"\n"), 0o644))

	_, err := runCLI(t, "--config", path, "probe")
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestCritiqueViaRemote(t *testing.T) {
	configPath, image := remoteSetup(t)

	out, err := runCLI(t, "--config", configPath, "--json", "critique", image, "--topic", "composition", "-t", "execution")
	require.NoError(t, err)

	var res protocol.HybridResult[protocol.CritiqueResponse]
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, protocol.SourceCloud, res.Source)
	assert.Contains(t, res.Result.Critique, "### Composition: 7/10")
	assert.Contains(t, res.Result.Critique, "### Execution: 7/10")
	assert.NotContains(t, res.Result.Critique, "Originality")
}

func TestCritiqueRejectsUnknownTopic(t *testing.T) {
	configPath, image := remoteSetup(t)

	_, err := runCLI(t, "--config", configPath, "critique", image, "--topic", "vibes")
	require.Error(t, err)
	assert.Equal(t, errors.CategoryUser, errors.GetCategory(err))
}

func TestPaletteThenRecipesFromFile(t *testing.T) {
	configPath, image := remoteSetup(t)

	out, err := runCLI(t, "--config", configPath, "--json", "palette", image)
	require.NoError(t, err)

	palettePath := filepath.Join(t.TempDir(), "palette.json")
	require.NoError(t, os.WriteFile(palettePath, []byte(out), 0o644))

	out, err = runCLI(t, "--config", configPath, "--json", "recipes", palettePath)
	require.NoError(t, err)

	var res protocol.HybridResult[[]protocol.Recipe]
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Result, 2)
	assert.Equal(t, "Cadmium Red", res.Result[0].ExtractedColor.Name)
	for _, r := range res.Result {
		assert.InDelta(t, 100, r.Total(), protocol.RecipeTolerance)
	}
}

func TestRecipesFromImage(t *testing.T) {
	configPath, image := remoteSetup(t)

	out, err := runCLI(t, "--config", configPath, "recipes", image)
	require.NoError(t, err)
	assert.Contains(t, out, "Cadmium Red")
	assert.Contains(t, out, "70% Ultramarine Blue")
}

func TestAnalyze(t *testing.T) {
	configPath, image := remoteSetup(t)

	out, err := runCLI(t, "--config", configPath, "--json", "analyze", image, "-t", "color-theory")
	require.NoError(t, err)

	var res analysisResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotNil(t, res.Critique)
	require.NotNil(t, res.Palette)
	require.NotNil(t, res.Recipes)
	assert.Empty(t, res.Errors)
	assert.Len(t, res.Recipes.Result, res.Palette.Result.Count())
	assert.Contains(t, res.Critique.Result.Critique, "Color Theory")
}

func TestAnalyzeReportsFailureWhenEveryKindFails(t *testing.T) {
	configPath, image := remoteSetupWith(t, failingOps{})

	out, err := runCLI(t, "--config", configPath, "--json", "analyze", image)
	require.Error(t, err)
	assert.Equal(t, errors.CodeCloudRequestFailed, errors.GetCode(err))
	assert.Equal(t, dispatch.CloudFailureMessage, err.(*errors.AppError).Message)

	var res analysisResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Nil(t, res.Critique)
	assert.Nil(t, res.Palette)
	assert.Nil(t, res.Recipes)
	assert.Contains(t, res.Errors, "critique")
	assert.Contains(t, res.Errors, "palette")
}

func TestProbeRemote(t *testing.T) {
	configPath, _ := remoteSetup(t)

	out, err := runCLI(t, "--config", configPath, "--json", "probe")
	require.NoError(t, err)

	var report probeReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "none", report.Local.Provider)
	assert.Equal(t, "unsupported", string(report.Local.Availability))
	require.NotNil(t, report.Remote)
	assert.True(t, report.Remote.Healthy)
}

func TestParseTopicsDefaultsAndDedupes(t *testing.T) {
	all, err := parseTopics(nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.AllTopics(), all)

	got, err := parseTopics([]string{"Composition", "composition", "color_theory"})
	require.NoError(t, err)
	assert.Equal(t, []protocol.CritiqueTopic{protocol.TopicComposition, protocol.TopicColorTheory}, got)
}

func TestLoadPaletteRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"primary":[{"name":"Red"}]}`), 0o644))

	_, err := loadPalette(path)
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationFailed, errors.GetCode(err))
	assert.NotEmpty(t, errors.GetDetails(err))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "", redact(""))
	assert.Equal(t, "*****", redact("short"))
	assert.Equal(t, "sk-o********", redact("sk-or-v1-abc"))
}

func TestRenderRecipes(t *testing.T) {
	out := renderRecipes([]protocol.Recipe{{
		ExtractedColor: protocol.Color{Name: "Teal", Hex: "#008080"},
		Recipe: []protocol.MixingIngredient{
			{Name: "Phthalo Blue", Percent: 40},
			{Name: "Phthalo Green", Percent: 60},
		},
	}})
	assert.Contains(t, out, "Teal")
	assert.Contains(t, out, "40% Phthalo Blue + 60% Phthalo Green")
}
