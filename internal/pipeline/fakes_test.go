package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/thinkscotty/autoresearch/internal/models"
)

var errUnavailable = errors.New("service unavailable")

type fakeSearcher struct {
	results []models.SearchResult
	err     error
	query   string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) ([]models.SearchResult, error) {
	f.query = query
	return f.results, f.err
}

// fakeScraper serves pages from a map; unknown URLs fail.
type fakeScraper struct {
	mu    sync.Mutex
	pages map[string]*models.SourceContent
	calls []string
}

func (f *fakeScraper) Scrape(_ context.Context, url string) (*models.SourceContent, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if page, ok := f.pages[url]; ok {
		return page, nil
	}
	return nil, errors.New("404 not found")
}

// fakeGenerator dispatches on the system instruction, which identifies the
// calling stage.
type fakeGenerator struct {
	mu       sync.Mutex
	handlers map[string]func(prompt string) (string, error)
	calls    map[string]int
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		handlers: make(map[string]func(string) (string, error)),
		calls:    make(map[string]int),
	}
}

func (f *fakeGenerator) on(system string, h func(prompt string) (string, error)) *fakeGenerator {
	f.handlers[system] = h
	return f
}

func (f *fakeGenerator) count(system string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[system]
}

func (f *fakeGenerator) Complete(_ context.Context, prompt, system string) (string, error) {
	f.mu.Lock()
	f.calls[system]++
	h := f.handlers[system]
	f.mu.Unlock()
	if h == nil {
		return "", errUnavailable
	}
	return h(prompt)
}

type panicGenerator struct{}

func (panicGenerator) Complete(context.Context, string, string) (string, error) {
	panic("connection pool exhausted")
}

// between returns the text of s between the first start marker and the
// following end marker.
func between(s, start, end string) string {
	_, rest, ok := strings.Cut(s, start)
	if !ok {
		return ""
	}
	before, _, _ := strings.Cut(rest, end)
	return before
}

func source(url, title string, chunks ...string) *models.SourceContent {
	return &models.SourceContent{
		URL:     url,
		Title:   title,
		Content: strings.Join(chunks, " "),
		Chunks:  chunks,
	}
}
