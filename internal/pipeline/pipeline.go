package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/thinkscotty/autoresearch/internal/config"
	"github.com/thinkscotty/autoresearch/internal/models"
)

// Stage is one step of a research run. Run must not modify st; it returns the
// fields it changed as a Patch.
type Stage interface {
	Name() string
	Run(ctx context.Context, st State) (Patch, error)
}

// Deps are the external collaborators a pipeline calls. Dedupe may be nil.
type Deps struct {
	Searcher  Searcher
	Scraper   Scraper
	Generator Generator
	Dedupe    Deduplicator
}

// Options tunes the stages.
type Options struct {
	Perspectives        []string
	MaxResults          int
	QuerySuffix         string
	RetrieveConcurrency int
	MaxChunksPerSource  int
	DigestFactsPerView  int
	MaxFactsPerSection  int
	MinRefineLength     int
	ResearchConcurrency int
	DraftConcurrency    int
}

// DefaultOptions mirrors the defaults of config.DefaultConfig.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig())
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Perspectives:        append([]string(nil), cfg.Pipeline.Perspectives...),
		MaxResults:          cfg.Search.MaxResults,
		QuerySuffix:         cfg.Search.QuerySuffix,
		RetrieveConcurrency: cfg.Scraper.ParallelLimit,
		MaxChunksPerSource:  cfg.Pipeline.MaxChunksPerSource,
		DigestFactsPerView:  cfg.Pipeline.DigestFactsPerView,
		MaxFactsPerSection:  cfg.Pipeline.MaxFactsPerSection,
		MinRefineLength:     cfg.Pipeline.MinRefineLength,
		ResearchConcurrency: cfg.Pipeline.ResearchConcurrency,
		DraftConcurrency:    cfg.Pipeline.DraftConcurrency,
	}
}

// Pipeline runs the seven stages in order against one state per run. It holds
// no per-run state and is safe for concurrent use.
type Pipeline struct {
	stages []Stage
}

func New(deps Deps, opts Options) *Pipeline {
	return &Pipeline{stages: []Stage{
		&SearchStage{
			searcher:    deps.Searcher,
			maxResults:  opts.MaxResults,
			querySuffix: opts.QuerySuffix,
			now:         time.Now,
		},
		&RetrieveStage{scraper: deps.Scraper, concurrency: atLeastOne(opts.RetrieveConcurrency)},
		&ResearchStage{
			gen:          deps.Generator,
			perspectives: opts.Perspectives,
			maxChunks:    opts.MaxChunksPerSource,
			concurrency:  atLeastOne(opts.ResearchConcurrency),
			dedupe:       deps.Dedupe,
		},
		&OutlineStage{
			gen:              deps.Generator,
			perspectives:     opts.Perspectives,
			factsPerDigested: opts.DigestFactsPerView,
		},
		&DraftStage{
			gen:          deps.Generator,
			perspectives: opts.Perspectives,
			maxFacts:     opts.MaxFactsPerSection,
			concurrency:  atLeastOne(opts.DraftConcurrency),
		},
		&SynthesisStage{gen: deps.Generator},
		&RefineStage{gen: deps.Generator, minLength: opts.MinRefineLength},
	}}
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Execute folds the stages over a fresh state. The first stage error, panic
// or context cancellation ends the run; later stages are not invoked.
func (p *Pipeline) Execute(ctx context.Context, topic, customTitle string) (State, error) {
	st := NewState(topic, customTitle)
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return st, fmt.Errorf("%s: %w", stage.Name(), err)
		}

		start := time.Now()
		patch, err := runStage(ctx, stage, st)
		if err != nil {
			return st, err
		}
		st = st.Apply(patch)
		slog.Debug("Stage complete", "stage", stage.Name(), "duration", time.Since(start))
	}
	return st, nil
}

func runStage(ctx context.Context, stage Stage, st State) (patch Patch, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", stage.Name(), r)
		}
	}()
	return stage.Run(ctx, st)
}

// Run researches topic and writes an article. It never panics; every hard
// failure is reported in the returned Result.
func (p *Pipeline) Run(ctx context.Context, topic, customTitle string) models.Result {
	start := time.Now()
	slog.Info("Starting research run", "topic", topic, "title", customTitle)

	st, err := p.Execute(ctx, topic, customTitle)
	if err != nil {
		slog.Error("Research run failed", "topic", topic, "error", err)
		return models.Result{Success: false, Topic: topic, Error: err.Error()}
	}

	res := models.Result{
		Success:       true,
		Topic:         topic,
		FinalArticle:  st.FinalArticle,
		SourcesUsed:   st.SourcesUsed(),
		ResearchFacts: st.ResearchMemory.TotalFacts(),
		DurationMS:    time.Since(start).Milliseconds(),
	}
	if st.Outline != nil {
		res.Title = st.Outline.Title
	}

	slog.Info("Research run complete",
		"topic", topic,
		"sources", res.SourcesUsed,
		"facts", res.ResearchFacts,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return res
}
