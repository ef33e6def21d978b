package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/brandpulse/internal/ai"
	"github.com/suPer8Hu/brandpulse/internal/aicontext"
	"github.com/suPer8Hu/brandpulse/internal/logger"
	"github.com/suPer8Hu/brandpulse/internal/prompts"
	"gorm.io/datatypes"
)

var ErrUnknownModule = errors.New("unknown analysis module")

// ReportCache keeps the latest full report of a client. A miss is (nil, false, nil).
type ReportCache interface {
	GetReport(ctx context.Context, clientID uint64) ([]byte, bool, error)
	SetReport(ctx context.Context, clientID uint64, report []byte) error
	DeleteReport(ctx context.Context, clientID uint64) error
}

const (
	ModuleOK    = "ok"
	ModuleError = "error"
)

// ModuleResult is the tagged outcome of one module: Data when Status is ok, Raw and Error otherwise.
type ModuleResult struct {
	ID     string          `json:"id"`
	Title  string          `json:"title"`
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Raw    string          `json:"raw,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type Report struct {
	RunID       uint64         `json:"run_id"`
	ClientID    uint64         `json:"client_id"`
	Status      RunStatus      `json:"status"`
	Fallback    bool           `json:"fallback"`
	Modules     []ModuleResult `json:"modules"`
	GeneratedAt time.Time      `json:"generated_at"`
}

type ChartResult struct {
	RunID    uint64          `json:"run_id"`
	Chart    json.RawMessage `json:"chart"`
	Fallback bool            `json:"fallback"`
}

type Generator struct {
	contexts *aicontext.Manager
	provider ai.ContextProvider
	prompts  *prompts.Set
	repo     *Repo
	cache    ReportCache
	log      *logger.Logger
}

// NewGenerator builds the structured-output generator. cache may be nil.
func NewGenerator(contexts *aicontext.Manager, provider ai.ContextProvider, p *prompts.Set, repo *Repo, cache ReportCache, log *logger.Logger) *Generator {
	return &Generator{contexts: contexts, provider: provider, prompts: p, repo: repo, cache: cache, log: log}
}

func (g *Generator) begin(ctx context.Context, clientID uint64) (*aicontext.Generation, error) {
	rec, err := g.contexts.RecordForClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return g.contexts.Begin(ctx, rec)
}

// ask sends one JSON-mode prompt against the generation's current target.
func (g *Generator) ask(ctx context.Context, gen *aicontext.Generation, prompt string) (string, error) {
	return gen.Run(ctx, func(t ai.Target) (string, error) {
		req := ai.GenerateRequest{
			CacheName: t.CacheName,
			Message:   ai.Message{Role: ai.RoleUser, Content: prompt, Files: t.Files},
			JSON:      true,
		}
		if !t.UsesCache() {
			req.SystemInstruction = g.prompts.SystemInstruction
		}
		return g.provider.Generate(ctx, req)
	})
}

// GenerateChart returns a chart specification for free-text requirements. An unusable answer is
// a *ParseError carrying the raw text.
func (g *Generator) GenerateChart(ctx context.Context, clientID uint64, requirements string) (*ChartResult, error) {
	gen, err := g.begin(ctx, clientID)
	if err != nil {
		return nil, err
	}
	prompt := strings.TrimRight(g.prompts.Chart.Prompt, "\n") + "\n" + strings.TrimSpace(requirements)
	raw, err := g.ask(ctx, gen, prompt)
	if err != nil {
		return nil, err
	}
	chart, err := Parse(raw, g.prompts.Chart.RequiredKeys)
	if err != nil {
		g.log.Warn("chart output rejected", "client_id", clientID, "err", err, "raw", raw)
		g.storeRun(ctx, &Run{ClientID: clientID, Kind: RunChart, Status: RunFailed, Result: rawResult(raw, err)})
		return nil, err
	}

	run := &Run{ClientID: clientID, Kind: RunChart, Status: RunCompleted, Result: datatypes.JSON(chart)}
	if err := g.repo.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return &ChartResult{RunID: run.ID, Chart: chart, Fallback: gen.Fallback()}, nil
}

// GenerateModule runs a single Q-module. A parse failure is returned as *ParseError.
func (g *Generator) GenerateModule(ctx context.Context, clientID uint64, moduleID string) (*ModuleResult, error) {
	mod, ok := g.prompts.Module(strings.ToLower(moduleID))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, moduleID)
	}
	gen, err := g.begin(ctx, clientID)
	if err != nil {
		return nil, err
	}
	raw, err := g.ask(ctx, gen, mod.Prompt)
	if err != nil {
		return nil, err
	}
	data, err := Parse(raw, mod.RequiredKeys)
	if err != nil {
		g.log.Warn("module output rejected", "client_id", clientID, "module", mod.ID, "err", err, "raw", raw)
		g.storeRun(ctx, &Run{ClientID: clientID, Kind: RunModule, Module: mod.ID, Status: RunFailed, Result: rawResult(raw, err)})
		return nil, err
	}
	res := ModuleResult{ID: mod.ID, Title: mod.Title, Status: ModuleOK, Data: data}
	b, _ := json.Marshal(res)
	g.storeRun(ctx, &Run{ClientID: clientID, Kind: RunModule, Module: mod.ID, Status: RunCompleted, Result: b})
	return &res, nil
}

// GenerateFullAnalysis runs every module in order against one resolved target. A module that
// fails to generate or parse is reported in place; only context resolution and storage fail the
// whole report.
func (g *Generator) GenerateFullAnalysis(ctx context.Context, clientID uint64) (*Report, error) {
	gen, err := g.begin(ctx, clientID)
	if err != nil {
		return nil, err
	}

	report := &Report{ClientID: clientID, Modules: make([]ModuleResult, 0, len(g.prompts.Modules))}
	okCount := 0
	for _, mod := range g.prompts.Modules {
		raw, err := g.ask(ctx, gen, mod.Prompt)
		var res ModuleResult
		if err != nil {
			g.log.Error("module generation failed", "client_id", clientID, "module", mod.ID, "err", err)
			res = ModuleResult{ID: mod.ID, Title: mod.Title, Status: ModuleError, Error: err.Error()}
		} else {
			res = moduleResult(mod, raw)
		}
		if res.Status == ModuleOK {
			okCount++
		}
		report.Modules = append(report.Modules, res)
	}

	switch {
	case okCount == len(report.Modules):
		report.Status = RunCompleted
	case okCount == 0:
		report.Status = RunFailed
	default:
		report.Status = RunPartial
	}
	report.Fallback = gen.Fallback()
	report.GeneratedAt = time.Now()

	run := &Run{ClientID: clientID, Kind: RunFull, Status: report.Status}
	err = g.repo.CreateRunWithResult(ctx, run, func(id uint64) ([]byte, error) {
		report.RunID = id
		return json.Marshal(report)
	})
	if err != nil {
		return nil, err
	}
	g.cacheReport(ctx, clientID, run.Result)
	return report, nil
}

// LatestReport returns the newest full report, from the cache when possible. gorm.ErrRecordNotFound
// means no analysis ran yet.
func (g *Generator) LatestReport(ctx context.Context, clientID uint64) (*Report, error) {
	if g.cache != nil {
		b, ok, err := g.cache.GetReport(ctx, clientID)
		if err != nil {
			g.log.Warn("report cache read failed", "client_id", clientID, "err", err)
		}
		if ok {
			var r Report
			if err := json.Unmarshal(b, &r); err == nil {
				return &r, nil
			}
		}
	}

	run, err := g.repo.LatestRun(ctx, clientID, RunFull)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(run.Result, &r); err != nil {
		return nil, fmt.Errorf("decode report %d: %w", run.ID, err)
	}
	g.cacheReport(ctx, clientID, run.Result)
	return &r, nil
}

// InvalidateReport drops the cached report, e.g. after new documents arrived.
func (g *Generator) InvalidateReport(ctx context.Context, clientID uint64) {
	if g.cache == nil {
		return
	}
	if err := g.cache.DeleteReport(ctx, clientID); err != nil {
		g.log.Warn("report cache invalidation failed", "client_id", clientID, "err", err)
	}
}

func (g *Generator) cacheReport(ctx context.Context, clientID uint64, body []byte) {
	if g.cache == nil {
		return
	}
	if err := g.cache.SetReport(ctx, clientID, body); err != nil {
		g.log.Warn("report cache write failed", "client_id", clientID, "err", err)
	}
}

func (g *Generator) storeRun(ctx context.Context, run *Run) {
	if err := g.repo.CreateRun(ctx, run); err != nil {
		g.log.Error("store analysis run failed", "client_id", run.ClientID, "kind", run.Kind, "err", err)
	}
}

func moduleResult(mod prompts.Module, raw string) ModuleResult {
	res := ModuleResult{ID: mod.ID, Title: mod.Title}
	data, err := Parse(raw, mod.RequiredKeys)
	if err != nil {
		res.Status = ModuleError
		res.Raw = raw
		res.Error = err.Error()
		return res
	}
	res.Status = ModuleOK
	res.Data = data
	return res
}

func rawResult(raw string, err error) datatypes.JSON {
	b, _ := json.Marshal(map[string]string{"raw": raw, "error": err.Error()})
	return datatypes.JSON(b)
}
