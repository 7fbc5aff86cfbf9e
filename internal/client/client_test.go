package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/critic/internal/errors"
	"github.com/flynn-ai/critic/pkg/protocol"
)

const testImage = "data:image/png;base64,iVBORw0KGgo="

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/"}, nil)
	require.NoError(t, err)
	return c, &calls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestCritiqueArtwork(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, protocol.PathCritique, r.URL.Path)

		var req protocol.CritiqueRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []protocol.CritiqueTopic{protocol.TopicExecution}, req.Topics)

		writeJSON(w, http.StatusOK, protocol.CritiqueResponse{Critique: "### Execution: 9/10"})
	})

	got, err := c.CritiqueArtwork(context.Background(), protocol.CritiqueRequest{
		Image:  testImage,
		Topics: []protocol.CritiqueTopic{protocol.TopicExecution},
	})
	require.NoError(t, err)
	assert.Equal(t, "### Execution: 9/10", got.Critique)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestExtractPaletteNormalizes(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, protocol.PathPalette, r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"primary":   []map[string]string{{"name": "Ochre", "hex": "CC7722"}},
			"secondary": []any{},
			"tertiary":  []any{},
		})
	})

	got, err := c.ExtractPalette(context.Background(), protocol.PaletteRequest{Image: testImage})
	require.NoError(t, err)
	require.Len(t, got.Primary, 1)
	assert.Equal(t, "#cc7722", got.Primary[0].Hex)
}

func TestGenerateMixingRecipes(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, protocol.PathRecipes, r.URL.Path)
		writeJSON(w, http.StatusOK, []protocol.Recipe{{
			ExtractedColor: protocol.Color{Name: "Red", Hex: "#ff0000"},
			Recipe:         []protocol.MixingIngredient{{Name: "Cadmium Red", Percent: 100}},
		}})
	})

	got, err := c.GenerateMixingRecipes(context.Background(), protocol.Palette{
		Primary: []protocol.Color{{Name: "Red", Hex: "#ff0000"}},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Cadmium Red", got[0].Recipe[0].Name)
}

func TestBadRequestKeepsDetails(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{
			Error:   "Invalid input",
			Details: []string{"topics: array must have at least 1 items"},
		})
	})

	_, err := c.CritiqueArtwork(context.Background(), protocol.CritiqueRequest{Image: testImage})
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationFailed, errors.GetCode(err))
	assert.Equal(t, errors.CategoryUser, errors.GetCategory(err))
	assert.Equal(t, []string{"topics: array must have at least 1 items"}, errors.GetDetails(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestServerErrorIsSingleAttempt(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, protocol.ErrorResponse{Error: "An unexpected error occurred."})
	})

	_, err := c.ExtractPalette(context.Background(), protocol.PaletteRequest{Image: testImage})
	require.Error(t, err)
	assert.Equal(t, errors.CodeCloudRequestFailed, errors.GetCode(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestTooLarge(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	})

	_, err := c.ExtractPalette(context.Background(), protocol.PaletteRequest{Image: testImage})
	assert.Equal(t, errors.CodeImageTooLarge, errors.GetCode(err))
	assert.Equal(t, errors.CategoryUser, errors.GetCategory(err))
}

func TestResponseFailsSchema(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"review": "no critique field"})
	})

	_, err := c.CritiqueArtwork(context.Background(), protocol.CritiqueRequest{
		Image:  testImage,
		Topics: []protocol.CritiqueTopic{protocol.TopicComposition},
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeCloudRequestFailed, errors.GetCode(err))
	assert.NotEqual(t, errors.CategoryUser, errors.GetCategory(err))
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url}, nil)
	require.NoError(t, err)

	_, err = c.GenerateMixingRecipes(context.Background(), protocol.Palette{})
	assert.Equal(t, errors.CodeCloudRequestFailed, errors.GetCode(err))
	assert.Error(t, c.Health(context.Background()))
}

func TestHealth(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, protocol.PathHealth, r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	assert.NoError(t, c.Health(context.Background()))
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(Config{BaseURL: "not a url"}, nil)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}
