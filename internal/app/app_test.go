package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/brandpulse/internal/ai"
	"github.com/suPer8Hu/brandpulse/internal/config"
)

func TestNewRegistry(t *testing.T) {
	cfg := config.Config{OllamaBaseURL: "http://ollama.test", OllamaModel: "llama3:latest"}
	reg := NewRegistry(cfg, nil)
	require.Equal(t, []string{"gemini", "ollama", "openrouter"}, reg.Names())

	p, err := reg.Get(context.Background(), "Ollama", "")
	require.NoError(t, err)
	_, isJSON := p.(ai.JSONProvider)
	require.True(t, isJSON)

	_, err = reg.Get(context.Background(), "openrouter", "")
	require.Error(t, err)
	_, err = reg.Get(context.Background(), "gemini", "")
	require.Error(t, err)
	_, err = reg.Get(context.Background(), "claude", "")
	require.Error(t, err)
}
