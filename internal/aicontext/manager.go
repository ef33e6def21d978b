package aicontext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/brandpulse/internal/ai"
	"github.com/suPer8Hu/brandpulse/internal/logger"
	"gorm.io/gorm"
)

var (
	// ErrNoContext means the client has neither a cache nor any uploaded file.
	ErrNoContext            = errors.New("no context available")
	ErrFileProcessingFailed = errors.New("provider failed to process file")
)

const (
	minPollInterval    = 50 * time.Millisecond
	defaultPollTimeout = 5 * time.Minute
)

type Options struct {
	CacheTTL          time.Duration
	PollInterval      time.Duration
	PollTimeout       time.Duration
	SystemInstruction string
	Augmenter         Augmenter
}

// Manager keeps a client's provider-side cache consistent with the documents it uploaded.
type Manager struct {
	repo     *Repo
	provider ai.ContextProvider
	opts     Options
	log      *logger.Logger
	now      func() time.Time
}

func NewManager(repo *Repo, provider ai.ContextProvider, opts Options, log *logger.Logger) *Manager {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	if opts.PollInterval < minPollInterval {
		opts.PollInterval = minPollInterval
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	return &Manager{repo: repo, provider: provider, opts: opts, log: log, now: time.Now}
}

type IngestInput struct {
	ClientID uint64
	Filename string
	Category string
	Data     []byte
}

type IngestResult struct {
	Context     *ContextRecord `json:"context"`
	File        *ContextFile   `json:"file"`
	CacheActive bool           `json:"cache_active"`
	Augmented   bool           `json:"augmented"`
	RowsBefore  int            `json:"rows_before,omitempty"`
	RowsAfter   int            `json:"rows_after,omitempty"`
}

// Ingest validates and uploads one file, registers it, and rebuilds the client's cache from the
// complete file list. A cache failure leaves the context in file-injection mode and is not an
// ingest error.
func (m *Manager) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	cls, err := Classify(in.Filename, in.Data)
	if err != nil {
		return nil, err
	}
	prep, err := m.opts.Augmenter.Prepare(in.Filename, cls, in.Data)
	if err != nil {
		return nil, err
	}
	if prep.Augmented {
		m.log.Info("tabular upload augmented", "client_id", in.ClientID, "file", in.Filename,
			"rows_before", prep.RowsBefore, "rows_after", prep.RowsAfter)
	}

	display := fmt.Sprintf("client-%d-%s-%s", in.ClientID, uuid.NewString()[:8], prep.Filename)
	handle, err := m.provider.UploadFile(ctx, display, prep.MIMEType, bytes.NewReader(prep.Data))
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", in.Filename, err)
	}
	handle, err = m.waitActive(ctx, handle)
	if err != nil {
		return nil, err
	}

	rec, err := m.repo.GetOrCreate(ctx, in.ClientID)
	if err != nil {
		return nil, err
	}
	file := &ContextFile{
		ContextID:    rec.ID,
		Filename:     prep.Filename,
		Category:     in.Category,
		MIMEType:     prep.MIMEType,
		ProviderName: handle.Name,
		ProviderURI:  handle.URI,
		SizeBytes:    int64(len(prep.Data)),
		UploadedAt:   m.now(),
	}
	if err := m.repo.AddFile(ctx, file); err != nil {
		return nil, err
	}

	active, err := m.regenerateCache(ctx, rec)
	if err != nil {
		return nil, err
	}
	rec, err = m.repo.GetByClient(ctx, in.ClientID)
	if err != nil {
		return nil, err
	}
	return &IngestResult{
		Context:     rec,
		File:        file,
		CacheActive: active,
		Augmented:   prep.Augmented,
		RowsBefore:  prep.RowsBefore,
		RowsAfter:   prep.RowsAfter,
	}, nil
}

func (m *Manager) waitActive(ctx context.Context, h *ai.FileHandle) (*ai.FileHandle, error) {
	deadline := m.now().Add(m.opts.PollTimeout)
	for {
		switch h.State {
		case ai.FileStateActive:
			return h, nil
		case ai.FileStateFailed:
			return nil, fmt.Errorf("%w: %s", ErrFileProcessingFailed, h.Name)
		}
		if m.now().After(deadline) {
			return nil, fmt.Errorf("file %s not active after %s", h.Name, m.opts.PollTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.opts.PollInterval):
		}
		next, err := m.provider.GetFile(ctx, h.Name)
		if err != nil {
			return nil, err
		}
		h = next
	}
}

// regenerateCache builds a new cache from every file of the context. The returned error is only
// set when storage fails; provider failures clear the cache and return false.
func (m *Manager) regenerateCache(ctx context.Context, rec *ContextRecord) (bool, error) {
	var previous string
	if rec.HasCache() {
		previous = *rec.CacheName
	}

	files, err := m.repo.ListFiles(ctx, rec.ID)
	if err != nil {
		return false, err
	}
	handles, err := m.fetchHandles(ctx, files, true)
	if err == nil {
		var cache *ai.CacheHandle
		cache, err = m.provider.CreateCache(ctx, handles, m.opts.SystemInstruction, m.opts.CacheTTL)
		if err == nil {
			expires := cache.ExpireTime
			if expires.IsZero() {
				expires = m.now().Add(m.opts.CacheTTL)
			}
			if err := m.repo.SetCache(ctx, rec.ID, cache.Name, expires); err != nil {
				return false, err
			}
			m.dropCache(ctx, previous, cache.Name)
			m.log.Info("context cache regenerated", "client_id", rec.ClientID, "cache", cache.Name, "files", len(handles))
			return true, nil
		}
	}

	m.log.Warn("context cache creation failed, falling back to file injection",
		"client_id", rec.ClientID, "files", len(files), "err", err)
	if err := m.repo.ClearCache(ctx, rec.ID); err != nil {
		return false, err
	}
	m.dropCache(ctx, previous, "")
	return false, nil
}

func (m *Manager) dropCache(ctx context.Context, name, keep string) {
	if name == "" || name == keep {
		return
	}
	if err := m.provider.DeleteCache(ctx, name); err != nil && !errors.Is(err, ai.ErrNotFound) {
		m.log.Warn("delete stale cache failed", "cache", name, "err", err)
	}
}

// fetchHandles looks every file up on the provider. In strict mode any failure aborts; otherwise
// files the provider no longer knows are skipped.
func (m *Manager) fetchHandles(ctx context.Context, files []ContextFile, strict bool) ([]ai.FileHandle, error) {
	out := make([]ai.FileHandle, 0, len(files))
	for _, f := range files {
		h, err := m.provider.GetFile(ctx, f.ProviderName)
		if err != nil {
			if !strict && errors.Is(err, ai.ErrNotFound) {
				m.log.Warn("context file missing on provider", "file", f.Filename, "provider_name", f.ProviderName)
				continue
			}
			return nil, err
		}
		if h.State != ai.FileStateActive {
			if !strict {
				continue
			}
			return nil, fmt.Errorf("file %s is %s", f.ProviderName, h.State)
		}
		out = append(out, *h)
	}
	return out, nil
}

// RecordForClient returns ErrNoContext when nothing was ever uploaded for the client.
func (m *Manager) RecordForClient(ctx context.Context, clientID uint64) (*ContextRecord, error) {
	rec, err := m.repo.GetByClient(ctx, clientID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoContext
	}
	return rec, err
}

// ResolveCache checks the stored cache against the provider without writing anything.
// invalidated is true when a stored handle turned out to be unusable; persisting that is the
// caller's job (see ResolveTarget).
func (m *Manager) ResolveCache(ctx context.Context, rec *ContextRecord) (target ai.Target, invalidated bool) {
	if !rec.HasCache() {
		return ai.Target{}, false
	}
	cache, err := m.provider.GetCache(ctx, *rec.CacheName)
	if err != nil {
		m.log.Warn("context cache unusable", "client_id", rec.ClientID, "cache", *rec.CacheName, "err", err)
		return ai.Target{}, true
	}
	if !cache.ExpireTime.IsZero() && !cache.ExpireTime.After(m.now()) {
		return ai.Target{}, true
	}
	return ai.Target{CacheName: cache.Name}, false
}

// ResolveTarget picks what a generation call runs against: the cache when the provider still has
// it, otherwise every uploaded file. An invalid cache is cleared before the fallback starts.
func (m *Manager) ResolveTarget(ctx context.Context, rec *ContextRecord) (ai.Target, error) {
	t, invalidated := m.ResolveCache(ctx, rec)
	if t.UsesCache() {
		return t, nil
	}
	if invalidated {
		if err := m.InvalidateCache(ctx, rec); err != nil {
			return ai.Target{}, err
		}
	}
	return m.FileTarget(ctx, rec)
}

func (m *Manager) InvalidateCache(ctx context.Context, rec *ContextRecord) error {
	if err := m.repo.ClearCache(ctx, rec.ID); err != nil {
		return err
	}
	rec.CacheName = nil
	rec.ExpiresAt = nil
	rec.Status = StatusFilesOnly
	return nil
}

// FileTarget injects every uploaded file directly.
func (m *Manager) FileTarget(ctx context.Context, rec *ContextRecord) (ai.Target, error) {
	files, err := m.repo.ListFiles(ctx, rec.ID)
	if err != nil {
		return ai.Target{}, err
	}
	if len(files) == 0 {
		return ai.Target{}, ErrNoContext
	}
	handles, err := m.fetchHandles(ctx, files, false)
	if err != nil {
		return ai.Target{}, err
	}
	if len(handles) == 0 {
		return ai.Target{}, ErrNoContext
	}
	return ai.Target{Files: handles}, nil
}

type Summary struct {
	Context *ContextRecord `json:"context"`
	Files   []ContextFile  `json:"files"`
}

func (m *Manager) Summary(ctx context.Context, clientID uint64) (*Summary, error) {
	rec, err := m.RecordForClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	files, err := m.repo.ListFiles(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	return &Summary{Context: rec, Files: files}, nil
}
