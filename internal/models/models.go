package models

import (
	"fmt"
	"time"
)

// SearchResult is one ranked candidate source returned by a search backend.
type SearchResult struct {
	URL            string  `json:"url"`
	Title          string  `json:"title"`
	Content        string  `json:"content"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Validate checks the result has a URL and a score in [0,1].
func (r SearchResult) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("search result has no url")
	}
	if r.RelevanceScore < 0 || r.RelevanceScore > 1 {
		return fmt.Errorf("relevance score %.2f out of range for %s", r.RelevanceScore, r.URL)
	}
	return nil
}

// SourceContent is the cleaned text of one retrieved page.
type SourceContent struct {
	URL      string         `json:"url"`
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Chunks   []string       `json:"chunks"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ResearchFact is a single perspective-tagged statement attributed to a source.
type ResearchFact struct {
	Fact        string   `json:"fact"`
	Perspective string   `json:"perspective"`
	SourceURL   string   `json:"source_url"`
	Confidence  float64  `json:"confidence"`
	Tags        []string `json:"tags"`
}

// Validate checks the required fields and the confidence bounds.
func (f ResearchFact) Validate() error {
	if f.Fact == "" {
		return fmt.Errorf("fact text is empty")
	}
	if f.SourceURL == "" {
		return fmt.Errorf("fact has no source url")
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("confidence %.2f out of range", f.Confidence)
	}
	return nil
}

// OutlineSection is one top-level section of an article outline.
type OutlineSection struct {
	Title       string   `json:"title"`
	Subsections []string `json:"subsections"`
}

// ArticleOutline is the hierarchical plan of the article.
type ArticleOutline struct {
	Title    string           `json:"title"`
	Sections []OutlineSection `json:"sections"`
	Summary  string           `json:"summary"`
}

// SectionTitles returns the section titles in outline order.
func (o *ArticleOutline) SectionTitles() []string {
	if o == nil {
		return nil
	}
	titles := make([]string, len(o.Sections))
	for i, s := range o.Sections {
		titles[i] = s.Title
	}
	return titles
}

// SectionDraft is the prose written for one outline section.
type SectionDraft struct {
	SectionTitle string   `json:"section_title"`
	Content      string   `json:"content"`
	Sources      []string `json:"sources"`
	KeyPoints    []string `json:"key_points"`
}

// Result is the envelope returned to whoever invoked a research run.
// On failure only Success, Error and Topic are set.
type Result struct {
	Success       bool   `json:"success"`
	Topic         string `json:"topic"`
	Title         string `json:"title,omitempty"`
	FinalArticle  string `json:"final_article,omitempty"`
	SourcesUsed   int    `json:"sources_used,omitempty"`
	ResearchFacts int    `json:"research_facts,omitempty"`
	DurationMS    int64  `json:"duration_ms,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Article status values stored with each queued run.
const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Article is a persisted research run and its outcome.
type Article struct {
	ID            string     `json:"id"`
	Topic         string     `json:"topic"`
	CustomTitle   string     `json:"custom_title,omitempty"`
	Title         string     `json:"title,omitempty"`
	Status        string     `json:"status"`
	FinalArticle  string     `json:"final_article,omitempty"`
	SourcesUsed   int        `json:"sources_used"`
	ResearchFacts int        `json:"research_facts"`
	DurationMS    int64      `json:"duration_ms,omitempty"`
	ErrorMessage  string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// APIUsageLog records one generation call.
type APIUsageLog struct {
	ID           int64     `json:"id"`
	AIProvider   string    `json:"ai_provider"`
	AIModel      string    `json:"ai_model"`
	TokensUsed   int       `json:"tokens_used"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Stats aggregates usage across all runs.
type Stats struct {
	TotalArticles    int    `json:"total_articles"`
	CompleteArticles int    `json:"complete_articles"`
	FailedArticles   int    `json:"failed_articles"`
	TotalAPICalls    int    `json:"total_api_calls"`
	TotalTokensUsed  int    `json:"total_tokens_used"`
	FailedAPICalls   int    `json:"failed_api_calls"`
	DatabaseBytes    int64  `json:"database_bytes"`
	DatabaseSize     string `json:"database_size"`
}
