// Package aitest provides an in-memory ContextProvider for tests.
package aitest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/suPer8Hu/brandpulse/internal/ai"
)

// CacheRequest records one CreateCache call.
type CacheRequest struct {
	Files             []ai.FileHandle
	SystemInstruction string
	TTL               time.Duration
}

// Provider is a scriptable ai.ContextProvider. Zero value is ready to use: uploads become ACTIVE
// immediately and every cache request succeeds.
type Provider struct {
	mu sync.Mutex

	// ProcessingPolls is how many GetFile calls report PROCESSING before a fresh upload turns ACTIVE.
	ProcessingPolls int
	// FailProcessing makes uploads end in the FAILED state.
	FailProcessing bool
	CacheErr       error
	UploadErr      error
	// GenerateFunc answers Generate; the default echoes the message.
	GenerateFunc func(req ai.GenerateRequest) (string, error)

	files   map[string]*ai.FileHandle
	polls   map[string]int
	caches  map[string]*ai.CacheHandle
	seq     int
	Uploads []Upload

	CacheRequests []CacheRequest
	GetFileCalls  []string
	GetCacheCalls []string
	DeletedCaches []string
	GenerateCalls []ai.GenerateRequest
	OnGetFile     func(name string)
}

type Upload struct {
	DisplayName string
	MIMEType    string
	Data        []byte
}

func (p *Provider) init() {
	if p.files == nil {
		p.files = map[string]*ai.FileHandle{}
		p.polls = map[string]int{}
		p.caches = map[string]*ai.CacheHandle{}
	}
}

func (p *Provider) UploadFile(ctx context.Context, displayName, mimeType string, r io.Reader) (*ai.FileHandle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.init()
	if p.UploadErr != nil {
		return nil, p.UploadErr
	}
	p.seq++
	name := fmt.Sprintf("files/f%d", p.seq)
	h := &ai.FileHandle{
		Name:        name,
		DisplayName: displayName,
		URI:         "https://files.test/" + name,
		MIMEType:    mimeType,
		State:       ai.FileStateActive,
	}
	switch {
	case p.FailProcessing:
		h.State = ai.FileStateFailed
	case p.ProcessingPolls > 0:
		h.State = ai.FileStateProcessing
		p.polls[name] = p.ProcessingPolls
	}
	p.files[name] = h
	p.Uploads = append(p.Uploads, Upload{DisplayName: displayName, MIMEType: mimeType, Data: data})
	cp := *h
	return &cp, nil
}

func (p *Provider) GetFile(ctx context.Context, name string) (*ai.FileHandle, error) {
	p.mu.Lock()
	p.init()
	p.GetFileCalls = append(p.GetFileCalls, name)
	hook := p.OnGetFile
	h, ok := p.files[name]
	var cp ai.FileHandle
	if ok {
		if h.State == ai.FileStateProcessing {
			p.polls[name]--
			if p.polls[name] <= 0 {
				h.State = ai.FileStateActive
			}
		}
		cp = *h
	}
	p.mu.Unlock()

	if hook != nil {
		hook(name)
	}
	if !ok {
		return nil, fmt.Errorf("get file %s: %w", name, ai.ErrNotFound)
	}
	return &cp, nil
}

func (p *Provider) CreateCache(ctx context.Context, files []ai.FileHandle, systemInstruction string, ttl time.Duration) (*ai.CacheHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.init()
	p.CacheRequests = append(p.CacheRequests, CacheRequest{
		Files:             append([]ai.FileHandle(nil), files...),
		SystemInstruction: systemInstruction,
		TTL:               ttl,
	})
	if p.CacheErr != nil {
		return nil, p.CacheErr
	}
	p.seq++
	c := &ai.CacheHandle{Name: fmt.Sprintf("cachedContents/c%d", p.seq), ExpireTime: time.Now().Add(ttl)}
	p.caches[c.Name] = c
	cp := *c
	return &cp, nil
}

func (p *Provider) GetCache(ctx context.Context, name string) (*ai.CacheHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.init()
	p.GetCacheCalls = append(p.GetCacheCalls, name)
	c, ok := p.caches[name]
	if !ok {
		return nil, fmt.Errorf("get cache %s: %w", name, ai.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (p *Provider) DeleteCache(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.init()
	p.DeletedCaches = append(p.DeletedCaches, name)
	if _, ok := p.caches[name]; !ok {
		return fmt.Errorf("delete cache %s: %w", name, ai.ErrNotFound)
	}
	delete(p.caches, name)
	return nil
}

func (p *Provider) Generate(ctx context.Context, req ai.GenerateRequest) (string, error) {
	p.mu.Lock()
	p.GenerateCalls = append(p.GenerateCalls, req)
	fn := p.GenerateFunc
	_, cacheOK := p.caches[req.CacheName]
	p.mu.Unlock()

	if req.CacheName != "" && !cacheOK {
		return "", fmt.Errorf("generate: %w", ai.ErrNotFound)
	}
	if fn != nil {
		return fn(req)
	}
	return "echo: " + req.Message.Content, nil
}

// ExpireCache drops a cache as if its TTL had run out.
func (p *Provider) ExpireCache(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.init()
	delete(p.caches, name)
}

// ForgetFile drops an uploaded file as if the provider had purged it.
func (p *Provider) ForgetFile(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.init()
	delete(p.files, name)
}

// CacheCount is the number of caches currently alive.
func (p *Provider) CacheCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.caches)
}

var ErrBoom = errors.New("aitest: provider failure")

var _ ai.ContextProvider = (*Provider)(nil)
