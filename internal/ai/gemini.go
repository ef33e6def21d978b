package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Gemini implements both ContextProvider and Provider on top of the genai SDK.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if model == "" {
		model = "gemini-1.5-flash-002"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Close() error { return g.client.Close() }

// WithModel shares the client with a different generation model. Close only the original.
func (g *Gemini) WithModel(model string) *Gemini {
	if model == "" {
		return g
	}
	return &Gemini{client: g.client, model: model}
}

func (g *Gemini) UploadFile(ctx context.Context, displayName, mimeType string, r io.Reader) (*FileHandle, error) {
	f, err := g.client.UploadFile(ctx, "", r, &genai.UploadFileOptions{
		DisplayName: displayName,
		MIMEType:    mimeType,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: upload %s: %w", displayName, err)
	}
	return fromGenaiFile(f), nil
}

func (g *Gemini) GetFile(ctx context.Context, name string) (*FileHandle, error) {
	f, err := g.client.GetFile(ctx, name)
	if err != nil {
		return nil, classify("get file", name, err)
	}
	return fromGenaiFile(f), nil
}

func (g *Gemini) CreateCache(ctx context.Context, files []FileHandle, systemInstruction string, ttl time.Duration) (*CacheHandle, error) {
	if len(files) == 0 {
		return nil, errors.New("gemini: cannot cache an empty file set")
	}
	cc, err := g.client.CreateCachedContent(ctx, &genai.CachedContent{
		Model:             g.model,
		SystemInstruction: genai.NewUserContent(genai.Text(systemInstruction)),
		Contents:          []*genai.Content{genai.NewUserContent(fileParts(files)...)},
		Expiration:        genai.ExpireTimeOrTTL{TTL: ttl},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create cache: %w", err)
	}
	return fromGenaiCache(cc), nil
}

func (g *Gemini) GetCache(ctx context.Context, name string) (*CacheHandle, error) {
	cc, err := g.client.GetCachedContent(ctx, name)
	if err != nil {
		return nil, classify("get cache", name, err)
	}
	return fromGenaiCache(cc), nil
}

func (g *Gemini) DeleteCache(ctx context.Context, name string) error {
	if err := g.client.DeleteCachedContent(ctx, name); err != nil {
		return classify("delete cache", name, err)
	}
	return nil
}

func (g *Gemini) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	var model *genai.GenerativeModel
	if req.CacheName != "" {
		cc, err := g.client.GetCachedContent(ctx, req.CacheName)
		if err != nil {
			return "", classify("get cache", req.CacheName, err)
		}
		model = g.client.GenerativeModelFromCachedContent(cc)
	} else {
		model = g.client.GenerativeModel(g.model)
		if req.SystemInstruction != "" {
			model.SystemInstruction = genai.NewUserContent(genai.Text(req.SystemInstruction))
		}
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	cs := model.StartChat()
	cs.History = toGenaiHistory(req.History)
	resp, err := cs.SendMessage(ctx, messageParts(req.Message)...)
	if err != nil {
		return "", classify("generate", storedResource(req), err)
	}
	return responseText(resp)
}

// Chat implements Provider. System turns become the system instruction.
func (g *Gemini) Chat(ctx context.Context, messages []Message) (string, error) {
	return g.chat(ctx, messages, false)
}

func (g *Gemini) ChatJSON(ctx context.Context, messages []Message) (string, error) {
	return g.chat(ctx, messages, true)
}

func (g *Gemini) chat(ctx context.Context, messages []Message, asJSON bool) (string, error) {
	var system []string
	var turns []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	if len(turns) == 0 {
		return "", errors.New("gemini: no user message")
	}
	return g.Generate(ctx, GenerateRequest{
		SystemInstruction: strings.Join(system, "\n\n"),
		History:           turns[:len(turns)-1],
		Message:           turns[len(turns)-1],
		JSON:              asJSON,
	})
}

func fileParts(files []FileHandle) []genai.Part {
	parts := make([]genai.Part, 0, len(files))
	for _, f := range files {
		parts = append(parts, genai.FileData{MIMEType: f.MIMEType, URI: f.URI})
	}
	return parts
}

func messageParts(m Message) []genai.Part {
	parts := fileParts(m.Files)
	if m.Content != "" {
		parts = append(parts, genai.Text(m.Content))
	}
	return parts
}

func toGenaiHistory(history []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: messageParts(m)})
	}
	return out
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: empty response")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

func fromGenaiFile(f *genai.File) *FileHandle {
	state := FileStateUnknown
	switch f.State {
	case genai.FileStateProcessing:
		state = FileStateProcessing
	case genai.FileStateActive:
		state = FileStateActive
	case genai.FileStateFailed:
		state = FileStateFailed
	}
	return &FileHandle{
		Name:        f.Name,
		DisplayName: f.DisplayName,
		URI:         f.URI,
		MIMEType:    f.MIMEType,
		State:       state,
	}
}

func fromGenaiCache(cc *genai.CachedContent) *CacheHandle {
	return &CacheHandle{Name: cc.Name, ExpireTime: cc.Expiration.ExpireTime}
}

// classify wraps not-found class errors with ErrNotFound so callers need no SDK knowledge.
// Files and caches that were purged may also come back as permission denied.
func classify(op, name string, err error) error {
	if name != "" {
		op += " " + name
	}
	if isNotFound(err) || (isStoredContent(name) && isPermissionDenied(err)) {
		return fmt.Errorf("gemini: %s: %w: %v", op, ErrNotFound, err)
	}
	return fmt.Errorf("gemini: %s: %w", op, err)
}

// storedResource names the uploaded content a request depends on, if any.
func storedResource(req GenerateRequest) string {
	if req.CacheName != "" {
		return req.CacheName
	}
	if len(req.Message.Files) > 0 {
		return req.Message.Files[0].Name
	}
	for _, m := range req.History {
		if len(m.Files) > 0 {
			return m.Files[0].Name
		}
	}
	return ""
}

func isStoredContent(name string) bool {
	return strings.HasPrefix(name, "files/") || strings.HasPrefix(name, "cachedContents/")
}

func isNotFound(err error) bool {
	return hasCode(err, http.StatusNotFound, codes.NotFound)
}

func isPermissionDenied(err error) bool {
	return hasCode(err, http.StatusForbidden, codes.PermissionDenied)
}

func hasCode(err error, httpCode int, code codes.Code) bool {
	var ae *apierror.APIError
	if errors.As(err, &ae) {
		if ae.HTTPCode() == httpCode {
			return true
		}
		if s := ae.GRPCStatus(); s != nil && s.Code() == code {
			return true
		}
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) && ge.Code == httpCode {
		return true
	}
	return status.Code(err) == code
}
