package pipeline

import (
	"context"

	"github.com/thinkscotty/autoresearch/internal/models"
)

// Searcher finds candidate sources for a query, best match first.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error)
}

// Scraper fetches a page and returns its cleaned text and chunks.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*models.SourceContent, error)
}

// Generator turns a prompt and a system instruction into text.
type Generator interface {
	Complete(ctx context.Context, prompt, system string) (string, error)
}

// JSONGenerator is implemented by generators that can constrain the reply to
// a JSON object.
type JSONGenerator interface {
	CompleteJSON(ctx context.Context, prompt, system string) (string, error)
}

// completeStructured asks for a JSON reply, using the generator's JSON mode
// when it has one.
func completeStructured(ctx context.Context, gen Generator, prompt, system string) (string, error) {
	if jg, ok := gen.(JSONGenerator); ok {
		return jg.CompleteJSON(ctx, prompt, system)
	}
	return gen.Complete(ctx, prompt, system)
}

// Deduplicator reports which texts to keep, dropping near-duplicates of
// earlier entries. Indices are returned in input order.
type Deduplicator interface {
	Keep(texts []string) []int
}
