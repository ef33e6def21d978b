// Package app wires config into the services shared by cmd/api and cmd/worker.
package app

import (
	"context"
	"errors"
	"strings"

	"github.com/suPer8Hu/brandpulse/internal/ai"
	"github.com/suPer8Hu/brandpulse/internal/aicontext"
	"github.com/suPer8Hu/brandpulse/internal/analysis"
	"github.com/suPer8Hu/brandpulse/internal/chat"
	"github.com/suPer8Hu/brandpulse/internal/config"
	"github.com/suPer8Hu/brandpulse/internal/db"
	"github.com/suPer8Hu/brandpulse/internal/logger"
	"github.com/suPer8Hu/brandpulse/internal/planning"
	"github.com/suPer8Hu/brandpulse/internal/prompts"
	"github.com/suPer8Hu/brandpulse/internal/store/redisstore"
	"gorm.io/gorm"
)

type App struct {
	DB       *gorm.DB
	Gemini   *ai.Gemini
	Registry *ai.Registry
	Redis    *redisstore.Store

	Contexts *aicontext.Manager
	Chat     *chat.Service
	Analysis *analysis.Generator
	Planning *planning.Service
	Repo     *analysis.Repo
}

// New opens the database and the providers. Redis is optional: without it reports are always
// read from the database.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, err
	}

	gem, err := ai.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, err
	}

	a := &App{DB: gdb, Gemini: gem, Registry: NewRegistry(cfg, gem)}

	var reports analysis.ReportCache
	if cfg.RedisAddr != "" {
		rds, err := redisstore.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ReportCacheTTL)
		if err != nil {
			log.Warn("redis unavailable, report cache disabled", "addr", cfg.RedisAddr, "err", err)
		} else {
			a.Redis = rds
			reports = rds
		}
	}

	set := prompts.Default()
	a.Contexts = aicontext.NewManager(aicontext.NewRepo(gdb), gem, aicontext.Options{
		CacheTTL:          cfg.ContextCacheTTL,
		PollInterval:      cfg.FilePollInterval,
		PollTimeout:       cfg.FilePollTimeout,
		SystemInstruction: set.SystemInstruction,
		Augmenter:         aicontext.Augmenter{Enabled: cfg.AugmentEnabled, MinRows: cfg.AugmentMinRows},
	}, log.With("component", "aicontext"))
	a.Chat = chat.NewService(chat.NewRepo(gdb), a.Contexts, gem, set, cfg.ChatHistoryLimit, log.With("component", "chat"))
	a.Repo = analysis.NewRepo(gdb)
	a.Analysis = analysis.NewGenerator(a.Contexts, gem, set, a.Repo, reports, log.With("component", "analysis"))
	a.Planning = planning.NewService(planning.NewRepo(gdb), a.Registry, cfg.PlannerProvider, cfg.PlannerModel, set, log.With("component", "planning"))
	return a, nil
}

// NewRegistry registers the plain chat backends used for content planning.
func NewRegistry(cfg config.Config, gem *ai.Gemini) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("gemini", func(_ context.Context, model string) (ai.Provider, error) {
		if gem == nil {
			return nil, errors.New("gemini is not configured")
		}
		return gem.WithModel(strings.TrimSpace(model)), nil
	})
	reg.Register("ollama", func(_ context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})
	reg.Register("openrouter", func(_ context.Context, model string) (ai.Provider, error) {
		if cfg.OpenRouterAPIKey == "" {
			return nil, errors.New("OPENROUTER_API_KEY is not set")
		}
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, m, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	return reg
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Gemini != nil {
		_ = a.Gemini.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
