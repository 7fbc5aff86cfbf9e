package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/critic/internal/config"
	"github.com/flynn-ai/critic/internal/errors"
)

type fakeModel struct {
	name      string
	available bool
	err       error
	calls     int
}

func (f *fakeModel) Generate(ctx context.Context, req *Request) (*Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Response{Text: f.name, Model: f.name}, nil
}

func (f *fakeModel) IsAvailable() bool { return f.available }
func (f *fakeModel) Name() string      { return f.name }
func (f *fakeModel) Status() *ModelStatus {
	return &ModelStatus{Name: f.name, Available: f.available}
}

func TestRouterFailsOverOnProviderError(t *testing.T) {
	primary := &fakeModel{name: "a", available: true, err: errors.Temporary(errors.CodeModelUnavailable, "down")}
	backup := &fakeModel{name: "b", available: true}
	r := NewRouter(primary, backup)

	resp, err := r.Generate(context.Background(), &Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "b", resp.Text)
	assert.Equal(t, 1, primary.calls)
}

func TestRouterStopsOnUserError(t *testing.T) {
	primary := &fakeModel{name: "a", available: true, err: errors.User(errors.CodeImageInvalid, "bad image")}
	backup := &fakeModel{name: "b", available: true}
	r := NewRouter(primary, backup)

	_, err := r.Generate(context.Background(), &Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, 0, backup.calls)
}

func TestRouterSkipsUnavailable(t *testing.T) {
	r := NewRouter(&fakeModel{name: "a"}, &fakeModel{name: "b", available: true}, nil)
	assert.True(t, r.IsAvailable())
	assert.Equal(t, "a", r.Name())
	assert.Len(t, r.GetStatus(), 2)

	resp, err := r.Generate(context.Background(), &Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "b", resp.Text)
}

func TestRouterNothingAvailable(t *testing.T) {
	r := NewRouter(&fakeModel{name: "a"})
	_, err := r.Generate(context.Background(), &Request{Prompt: "x"})
	assert.Equal(t, errors.CodeModelUnavailable, errors.GetCode(err))
}

func TestNewFromConfig(t *testing.T) {
	t.Setenv("GLM_API_KEY", "glm-key")
	cfg := config.Default().Cloud
	cfg.Provider = "openrouter"
	cfg.APIKey = "or-key"
	cfg.Fallbacks = []string{"glm"}

	r, err := NewFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	status := r.GetStatus()
	assert.Equal(t, "openrouter", status["primary"].Provider)
	assert.Equal(t, "glm", status["fallback-1"].Provider)
	assert.True(t, status["fallback-1"].Available)

	cfg.Provider = "mystery"
	_, err = NewFromConfig(context.Background(), cfg)
	assert.Error(t, err)
}
