package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// OllamaProvider talks to a local Ollama server. Planning uses it when PLANNER_PROVIDER=ollama.
type OllamaProvider struct {
	BaseURL string
	Model   string
	// Temperature is sent when non-nil; plans are steadier with a low value.
	Temperature *float64
	Client      *http.Client
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3:latest"
	}
	return &OllamaProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  &http.Client{Timeout: httpChatTimeout},
	}
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []chatTurn     `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message chatTurn `json:"message"`
	Error   string   `json:"error,omitempty"`
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	return p.chat(ctx, messages, "")
}

// ChatJSON uses Ollama's "format": "json" constrained decoding.
func (p *OllamaProvider) ChatJSON(ctx context.Context, messages []Message) (string, error) {
	return p.chat(ctx, messages, "json")
}

func (p *OllamaProvider) chat(ctx context.Context, messages []Message, format string) (string, error) {
	in := ollamaRequest{Model: p.Model, Messages: toChatTurns(messages), Format: format}
	if p.Temperature != nil {
		in.Options = &ollamaOptions{Temperature: p.Temperature}
	}
	var out ollamaResponse
	if err := postJSON(ctx, p.Client, "ollama", p.BaseURL+"/api/chat", nil, in, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama: %s", out.Error)
	}
	return out.Message.Content, nil
}
