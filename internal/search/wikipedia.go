package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/thinkscotty/autoresearch/internal/models"
)

const wikipediaAPI = "https://en.wikipedia.org/w/api.php"

// Wikipedia searches English Wikipedia articles. It needs no API key.
type Wikipedia struct {
	httpClient *http.Client
	userAgent  string
	apiURL     string
	pageBase   string
}

func NewWikipedia(httpClient *http.Client, userAgent string) *Wikipedia {
	return &Wikipedia{
		httpClient: httpClient,
		userAgent:  userAgent,
		apiURL:     wikipediaAPI,
		pageBase:   "https://en.wikipedia.org/wiki/",
	}
}

func (w *Wikipedia) Name() string { return "wikipedia" }

// Search finds Wikipedia articles matching a query. Relevance falls off
// linearly with the rank of the hit.
func (w *Wikipedia) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"format":   {"json"},
		"utf8":     {"1"},
		"srlimit":  {fmt.Sprintf("%d", maxResults)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", w.userAgent)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wikipedia search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wikipedia search returned %d", resp.StatusCode)
	}

	var parsed struct {
		Query struct {
			Search []struct {
				Title   string `json:"title"`
				Snippet string `json:"snippet"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := parsed.Query.Search
	results := make([]models.SearchResult, 0, len(hits))
	for i, hit := range hits {
		results = append(results, models.SearchResult{
			URL:            w.pageBase + url.PathEscape(strings.ReplaceAll(hit.Title, " ", "_")),
			Title:          hit.Title,
			Content:        cleanSnippet(hit.Snippet),
			RelevanceScore: clamp01(1 - float64(i)/float64(len(hits))),
		})
	}
	return results, nil
}

// cleanSnippet strips the search-match markup from a snippet.
func cleanSnippet(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
