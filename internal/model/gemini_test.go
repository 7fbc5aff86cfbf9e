package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiGenerate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-test:generateContent"), r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"primary\":[]}"}]}}],"usageMetadata":{"totalTokenCount":42}}`))
	}))
	defer srv.Close()

	cfg := DefaultGeminiConfig("test-key")
	cfg.Model = "gemini-test"
	cfg.BaseURL = srv.URL + "/"
	c, err := NewGeminiClient(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, c.IsAvailable())

	resp, err := c.Generate(context.Background(), &Request{
		Prompt: "Extract the palette.",
		Images: []Attachment{{MIMEType: "image/jpeg", Data: []byte("jpeg")}},
		JSON:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"primary":[]}`, resp.Text)
	assert.Equal(t, 42, resp.TokensUsed)
	assert.Equal(t, "gemini", resp.Provider)
	assert.Contains(t, body, "contents")
}

func TestGeminiWithoutKeyIsUnavailable(t *testing.T) {
	c, err := NewGeminiClient(context.Background(), DefaultGeminiConfig(""))
	require.NoError(t, err)
	assert.False(t, c.IsAvailable())
	assert.False(t, c.Status().Available)

	_, err = c.Generate(context.Background(), &Request{Prompt: "hi"})
	assert.Error(t, err)
}
