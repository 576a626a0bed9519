package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/thinkscotty/autoresearch/internal/models"
)

// RetrieveStage scrapes each search result. Failed pages are dropped.
type RetrieveStage struct {
	scraper     Scraper
	concurrency int
}

func (s *RetrieveStage) Name() string { return "retrieve" }

func (s *RetrieveStage) Run(ctx context.Context, st State) (Patch, error) {
	if len(st.SearchResults) == 0 {
		return Patch{SourceContents: []models.SourceContent{}}, nil
	}

	var urls []string
	seen := make(map[string]bool, len(st.SearchResults))
	for _, r := range st.SearchResults {
		if !seen[r.URL] {
			seen[r.URL] = true
			urls = append(urls, r.URL)
		}
	}

	slog.Info("Retrieving content", "urls", len(urls))

	fetched := make([]*models.SourceContent, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, u := range urls {
		goSafe(g, "retrieve "+u, func() error {
			content, err := s.scraper.Scrape(gctx, u)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("Failed to retrieve source", "url", u, "error", err)
				return nil
			}
			if content == nil {
				slog.Warn("Failed to retrieve source", "url", u)
				return nil
			}
			fetched[i] = content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Patch{}, fmt.Errorf("retrieve: %w", err)
	}

	contents := make([]models.SourceContent, 0, len(urls))
	for _, c := range fetched {
		if c != nil {
			contents = append(contents, *c)
		}
	}

	slog.Info("Retrieved sources", "ok", len(contents), "attempted", len(urls))
	return Patch{SourceContents: contents}, nil
}

// goSafe runs fn in g and converts a panic into an error so that one bad
// branch fails the stage instead of the process.
func goSafe(g *errgroup.Group, name string, fn func() error) {
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s panicked: %v", name, r)
			}
		}()
		return fn()
	})
}
