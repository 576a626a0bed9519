package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/thinkscotty/autoresearch/internal/models"
)

const (
	tavilyURL          = "https://api.tavily.com/search"
	tavilyDefaultScore = 0.5
)

// Tavily searches the web through the Tavily API.
type Tavily struct {
	httpClient *http.Client
	settings   SettingsGetter
	endpoint   string
}

func NewTavily(sg SettingsGetter, httpClient *http.Client) *Tavily {
	return &Tavily{httpClient: httpClient, settings: sg, endpoint: tavilyURL}
}

func (t *Tavily) Name() string { return "tavily" }

type tavilyRequest struct {
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type tavilyResponse struct {
	Results []struct {
		URL     string   `json:"url"`
		Title   string   `json:"title"`
		Content string   `json:"content"`
		Score   *float64 `json:"score"`
	} `json:"results"`
}

func (t *Tavily) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	var apiKey string
	if t.settings != nil {
		apiKey, _ = t.settings.GetSetting("tavily_api_key")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("tavily API key not configured")
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	body, err := json.Marshal(tavilyRequest{Query: query, MaxResults: maxResults})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily search returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]models.SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.URL == "" {
			continue
		}
		score := tavilyDefaultScore
		if r.Score != nil {
			score = clamp01(*r.Score)
		}
		results = append(results, models.SearchResult{
			URL:            r.URL,
			Title:          r.Title,
			Content:        r.Content,
			RelevanceScore: score,
		})
	}
	return results, nil
}
