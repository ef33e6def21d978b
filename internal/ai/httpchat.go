package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const httpChatTimeout = 120 * time.Second

// chatTurn is the role/content pair both HTTP chat backends accept. Files are dropped: only the
// ContextProvider can reference uploaded documents.
type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toChatTurns(messages []Message) []chatTurn {
	out := make([]chatTurn, 0, len(messages))
	for _, m := range messages {
		out = append(out, chatTurn{Role: m.Role, Content: m.Content})
	}
	return out
}

// StatusError is a non-2xx answer from an HTTP chat backend.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Body)
}

// postJSON sends in as JSON and decodes a 2xx body into out.
func postJSON(ctx context.Context, client *http.Client, provider, url string, header http.Header, in, out any) error {
	if client == nil {
		return fmt.Errorf("%s: http client is nil", provider)
	}
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return &StatusError{Provider: provider, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", provider, err)
	}
	return nil
}
