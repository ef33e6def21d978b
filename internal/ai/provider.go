package ai

import (
	"context"
	"errors"
	"io"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotFound marks a provider-side resource (file or cache) that no longer exists. Expired and
// deleted resources are reported the same way.
var ErrNotFound = errors.New("ai: resource not found")

// Message is one conversation turn. Files are only honoured by a ContextProvider.
type Message struct {
	Role    string
	Content string
	Files   []FileHandle
}

// Provider is a plain chat completion backend.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// JSONProvider is an optional interface for providers that can force a JSON object answer.
type JSONProvider interface {
	ChatJSON(ctx context.Context, messages []Message) (string, error)
}

type FileState string

const (
	FileStateProcessing FileState = "PROCESSING"
	FileStateActive     FileState = "ACTIVE"
	FileStateFailed     FileState = "FAILED"
	FileStateUnknown    FileState = "UNSPECIFIED"
)

// FileHandle references a document uploaded to the provider.
type FileHandle struct {
	Name        string
	DisplayName string
	URI         string
	MIMEType    string
	State       FileState
}

// CacheHandle references a provider-side context cache.
type CacheHandle struct {
	Name       string
	ExpireTime time.Time
}

// Target is what a generation call is anchored on: a cache, or the raw files.
type Target struct {
	CacheName string
	Files     []FileHandle
}

func (t Target) UsesCache() bool { return t.CacheName != "" }

type GenerateRequest struct {
	// CacheName empty means no cache; file context must then be carried by the messages.
	CacheName string
	// Ignored when CacheName is set, the cache carries its own instruction.
	SystemInstruction string
	History           []Message
	Message           Message
	JSON              bool
}

// ContextProvider is the document-aware backend: file upload, context caches, and generation
// against either.
type ContextProvider interface {
	UploadFile(ctx context.Context, displayName, mimeType string, r io.Reader) (*FileHandle, error)
	GetFile(ctx context.Context, name string) (*FileHandle, error)
	CreateCache(ctx context.Context, files []FileHandle, systemInstruction string, ttl time.Duration) (*CacheHandle, error)
	GetCache(ctx context.Context, name string) (*CacheHandle, error)
	DeleteCache(ctx context.Context, name string) error
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
