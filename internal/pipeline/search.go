package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/thinkscotty/autoresearch/internal/models"
)

// NoSearchResults is recorded in State.Error when a search comes back empty.
const NoSearchResults = "No search results found"

// SearchStage turns the topic into a query and collects ranked candidates.
type SearchStage struct {
	searcher    Searcher
	maxResults  int
	querySuffix string
	now         func() time.Time
}

func (s *SearchStage) Name() string { return "search" }

// BuildQuery appends the recency qualifier and the current year to the topic.
func (s *SearchStage) BuildQuery(topic string) string {
	parts := []string{strings.TrimSpace(topic)}
	if s.querySuffix != "" {
		parts = append(parts, s.querySuffix)
	}
	parts = append(parts, fmt.Sprintf("%d", s.now().Year()))
	return strings.Join(parts, " ")
}

func (s *SearchStage) Run(ctx context.Context, st State) (Patch, error) {
	query := s.BuildQuery(st.Topic)
	slog.Info("Searching", "topic", st.Topic, "query", query)

	results, err := s.searcher.Search(ctx, query, s.maxResults)
	if err != nil {
		if ctx.Err() != nil {
			return Patch{}, fmt.Errorf("search: %w", ctx.Err())
		}
		slog.Warn("Search failed, continuing without sources", "query", query, "error", err)
		results = nil
	}

	ranked := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		r.RelevanceScore = clamp01(r.RelevanceScore)
		if err := r.Validate(); err != nil {
			slog.Debug("Dropping search result", "error", err)
			continue
		}
		ranked = append(ranked, r)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RelevanceScore > ranked[j].RelevanceScore
	})
	if s.maxResults > 0 && len(ranked) > s.maxResults {
		ranked = ranked[:s.maxResults]
	}

	if len(ranked) == 0 {
		return Patch{
			SearchQuery:   ptr(query),
			SearchResults: []models.SearchResult{},
			Error:         ptr(NoSearchResults),
		}, nil
	}

	slog.Info("Found search results", "count", len(ranked))
	return Patch{
		SearchQuery:   ptr(query),
		SearchResults: ranked,
		Error:         ptr(""),
	}, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
