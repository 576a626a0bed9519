// Package search finds candidate source pages for a research query.
package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/thinkscotty/autoresearch/internal/models"
)

// SettingsGetter is a minimal interface so the search package does not import database.
type SettingsGetter interface {
	GetSetting(key string) (string, error)
}

// Provider is implemented by every search backend.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error)
	Name() string // "tavily" or "wikipedia"
}

const defaultUserAgent = "AutoResearch/1.0 (+https://github.com/thinkscotty/autoresearch)"

// Client routes searches to the backend named by the search_provider
// setting, re-read on every call so the backend can be switched at runtime.
type Client struct {
	providers map[string]Provider
	settings  SettingsGetter
}

func NewClient(sg SettingsGetter, userAgent string) *Client {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	httpClient := &http.Client{Timeout: 20 * time.Second}
	c := &Client{providers: make(map[string]Provider), settings: sg}
	c.Register(NewTavily(sg, httpClient))
	c.Register(NewWikipedia(httpClient, userAgent))
	return c
}

// Register adds or replaces a backend.
func (c *Client) Register(p Provider) {
	c.providers[p.Name()] = p
}

func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	name := "tavily"
	if c.settings != nil {
		if v, err := c.settings.GetSetting("search_provider"); err == nil && v != "" {
			name = strings.ToLower(v)
		}
	}
	p, ok := c.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown search provider %q", name)
	}
	return p.Search(ctx, query, maxResults)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
