package aicontext

import (
	"context"
	"errors"

	"github.com/suPer8Hu/brandpulse/internal/ai"
)

// Generation pins one resolved target for a series of provider calls. When the cache disappears
// mid-way it switches to file injection once and stays there.
type Generation struct {
	m        *Manager
	rec      *ContextRecord
	target   ai.Target
	fallback bool
}

// Begin resolves the generation target for rec. ErrNoContext is returned when there is nothing
// to generate against.
func (m *Manager) Begin(ctx context.Context, rec *ContextRecord) (*Generation, error) {
	t, err := m.ResolveTarget(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &Generation{m: m, rec: rec, target: t}, nil
}

func (g *Generation) Target() ai.Target { return g.target }

// Fallback reports whether a not-found cache forced the switch to file injection.
func (g *Generation) Fallback() bool { return g.fallback }

// Run calls fn with the current target. A not-found error while a cache is in use clears the
// cache and retries fn exactly once against the raw files.
func (g *Generation) Run(ctx context.Context, fn func(ai.Target) (string, error)) (string, error) {
	out, err := fn(g.target)
	if err == nil || !errors.Is(err, ai.ErrNotFound) || !g.target.UsesCache() {
		return out, err
	}

	g.m.log.Warn("context cache not found during generation, retrying with files",
		"client_id", g.rec.ClientID, "cache", g.target.CacheName)
	if err := g.m.InvalidateCache(ctx, g.rec); err != nil {
		return "", err
	}
	ft, err := g.m.FileTarget(ctx, g.rec)
	if err != nil {
		return "", err
	}
	g.target = ft
	g.fallback = true
	return fn(g.target)
}
