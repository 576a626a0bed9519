package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkscotty/autoresearch/internal/models"
)

func TestRunEmptySearchStillProducesArticle(t *testing.T) {
	gen := newFakeGenerator()
	p := New(Deps{
		Searcher:  &fakeSearcher{},
		Scraper:   &fakeScraper{},
		Generator: gen,
	}, DefaultOptions())

	res := p.Run(context.Background(), "Quantum Knitting", "")

	require.True(t, res.Success, res.Error)
	assert.NotEmpty(t, res.FinalArticle)
	assert.Equal(t, "Comprehensive Analysis of Quantum Knitting", res.Title)
	assert.Contains(t, res.FinalArticle, "## Background and Context")
	assert.True(t, strings.HasSuffix(res.FinalArticle, "## References\n\nNo sources cited."))
	assert.Zero(t, res.SourcesUsed)
	assert.Zero(t, res.ResearchFacts)

	assert.Zero(t, gen.count(researchSystem))
	assert.Zero(t, gen.count(outlineSystem))
	assert.Equal(t, 5, gen.count(draftSystem))
}

func TestRunSearchErrorDegradesToEmpty(t *testing.T) {
	p := New(Deps{
		Searcher:  &fakeSearcher{err: errUnavailable},
		Scraper:   &fakeScraper{},
		Generator: newFakeGenerator(),
	}, DefaultOptions())

	res := p.Run(context.Background(), "Tidal Power", "")
	require.True(t, res.Success, res.Error)
	assert.NotEmpty(t, res.FinalArticle)
}

func TestRunHardFailures(t *testing.T) {
	sources := &fakeSearcher{results: []models.SearchResult{
		{URL: "https://a.example/1", Title: "A", RelevanceScore: 0.9},
	}}
	pages := &fakeScraper{pages: map[string]*models.SourceContent{
		"https://a.example/1": source("https://a.example/1", "A", "Some text about the topic."),
	}}

	t.Run("generator panics on every call", func(t *testing.T) {
		p := New(Deps{Searcher: sources, Scraper: pages, Generator: panicGenerator{}}, DefaultOptions())

		res := p.Run(context.Background(), "Fusion", "")
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "connection pool exhausted")
		assert.Equal(t, "Fusion", res.Topic)
		assert.Empty(t, res.FinalArticle)
		assert.Empty(t, res.Title)
		assert.Zero(t, res.SourcesUsed)
	})

	t.Run("generator panics with no sources", func(t *testing.T) {
		p := New(Deps{Searcher: &fakeSearcher{}, Scraper: pages, Generator: panicGenerator{}}, DefaultOptions())

		res := p.Run(context.Background(), "Fusion", "")
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "draft")
		assert.Empty(t, res.FinalArticle)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		scraper := &fakeScraper{pages: pages.pages}
		p := New(Deps{Searcher: sources, Scraper: scraper, Generator: newFakeGenerator()}, DefaultOptions())

		res := p.Run(ctx, "Fusion", "")
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "context canceled")
		assert.Empty(t, res.FinalArticle)
		assert.Empty(t, scraper.calls)
	})
}

type panicStage struct{}

func (panicStage) Name() string { return "boom" }

func (panicStage) Run(context.Context, State) (Patch, error) {
	panic("nil map write")
}

type recordStage struct{ ran bool }

func (r *recordStage) Name() string { return "record" }

func (r *recordStage) Run(context.Context, State) (Patch, error) {
	r.ran = true
	return Patch{}, nil
}

func TestExecuteStopsAtFailingStage(t *testing.T) {
	after := &recordStage{}
	p := &Pipeline{stages: []Stage{panicStage{}, after}}

	_, err := p.Execute(context.Background(), "topic", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom: panic: nil map write")
	assert.False(t, after.ran)
}

func TestRunEndToEnd(t *testing.T) {
	const (
		kept    = "https://solar.example/desal"
		dropped = "https://broken.example/page"
	)

	searcher := &fakeSearcher{results: []models.SearchResult{
		{URL: dropped, Title: "Broken", RelevanceScore: 0.4},
		{URL: kept, Title: "Solar stills", RelevanceScore: 0.9},
	}}
	scraper := &fakeScraper{pages: map[string]*models.SourceContent{
		kept: source(kept, "Solar stills", "Solar stills evaporate seawater using sunlight.", "Membrane distillation is another approach."),
	}}

	sections := []string{"Introduction", "Technical Fundamentals", "Economic Impact"}

	gen := newFakeGenerator().
		on(researchSystem, func(prompt string) (string, error) {
			switch {
			case strings.Contains(prompt, "perspective of: technical_fundamentals"):
				return fmt.Sprintf("```json\n[{\"fact\":\"Solar stills evaporate seawater.\",\"source_url\":%q,\"confidence\":0.9,\"tags\":[\"stills\"]},"+
					"{\"fact\":\"Invented URL fact.\",\"source_url\":%q}]\n```", kept, dropped), nil
			case strings.Contains(prompt, "perspective of: economic_impact"):
				return fmt.Sprintf(`{"facts":[{"fact":"Costs fell sharply.","source_url":%q,"confidence":3}]}`, kept), nil
			case strings.Contains(prompt, "perspective of: security_concerns"):
				return "", errUnavailable
			default:
				return "[]", nil
			}
		}).
		on(outlineSystem, func(string) (string, error) {
			return `Here is the outline:
{"title":"Solar Desalination Explained","summary":"How sunlight makes fresh water.",
 "sections":[{"title":"Introduction","subsections":[]},
             {"title":"Technical Fundamentals","subsections":["Stills","Membranes"]},
             {"title":"Economic Impact","subsections":"Costs"}]}`, nil
		}).
		on(draftSystem, func(prompt string) (string, error) {
			title := between(prompt, "Write the '", "' section")
			return fmt.Sprintf(`{"content":"Body of %s. It draws on the research gathered so far.","sources":[%q]}`, title, kept), nil
		}).
		on(synthesisSystem, func(prompt string) (string, error) {
			title := between(prompt, "TITLE: ", "\n")
			body := between(prompt, "SECTIONS:\n", "\n\nRequirements:")
			return "# " + title + "\n\n" + body, nil
		}).
		on(refineSystem, func(prompt string) (string, error) {
			return "```markdown\n" + between(prompt, "Review and improve this article:\n\n", "\n\nFocus on:") + "\n```", nil
		})

	p := New(Deps{Searcher: searcher, Scraper: scraper, Generator: gen}, DefaultOptions())
	res := p.Run(context.Background(), "Solar Desalination", "")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Solar Desalination", res.Topic)
	assert.Equal(t, "Solar Desalination Explained", res.Title)
	assert.Equal(t, 1, res.SourcesUsed)
	assert.Equal(t, 2, res.ResearchFacts)

	article := res.FinalArticle
	assert.True(t, strings.HasPrefix(article, "# Solar Desalination Explained"))
	last := -1
	for _, s := range sections {
		idx := strings.Index(article, "## "+s)
		require.GreaterOrEqual(t, idx, 0, "missing heading %q", s)
		assert.Greater(t, idx, last, "heading %q out of order", s)
		last = idx
	}

	refs := between(article+"\x00", "## References\n\n", "\x00")
	assert.Equal(t, "1. "+kept, refs)
	assert.Equal(t, 7, gen.count(researchSystem))
	assert.Equal(t, 3, gen.count(draftSystem))
	assert.Len(t, scraper.calls, 2)
}
