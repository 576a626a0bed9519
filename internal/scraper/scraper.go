package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/thinkscotty/autoresearch/internal/config"
	"github.com/thinkscotty/autoresearch/internal/models"
)

const (
	// readability output shorter than this falls back to selector extraction
	minReadableChars = 200
	// pages with less text than this are treated as failed
	minContentChars = 100
	noTitle         = "No Title"
)

// contentSelectors are tried in order when readability finds too little.
var contentSelectors = []string{
	"article",
	"main",
	".content",
	".main-content",
	"#content",
	"#main-content",
	"div[role=main]",
}

// Scraper fetches web pages and extracts their readable text.
type Scraper struct {
	userAgent      string
	requestTimeout time.Duration
	chunkSize      int
	maxChars       int
}

// New creates a Scraper from the scraper config section.
func New(cfg config.ScraperConfig) *Scraper {
	s := &Scraper{
		userAgent:      cfg.UserAgent,
		requestTimeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		chunkSize:      cfg.ChunkSize,
		maxChars:       cfg.MaxContentChars,
	}
	if s.requestTimeout <= 0 {
		s.requestTimeout = 10 * time.Second
	}
	if s.chunkSize <= 0 {
		s.chunkSize = 500
	}
	if s.maxChars <= 0 {
		s.maxChars = 50000
	}
	return s
}

// Scrape downloads pageURL and returns its cleaned text split into chunks.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) (*models.SourceContent, error) {
	if err := ValidateURL(pageURL); err != nil {
		return nil, err
	}

	page, err := s.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	text, readableTitle, method := extract(page.html, pageURL)
	text = truncateRunes(text, s.maxChars)
	if len(text) < minContentChars {
		return nil, fmt.Errorf("insufficient content scraped from %s (%d chars)", pageURL, len(text))
	}

	title := page.title
	if title == "" {
		title = readableTitle
	}
	if title == "" {
		title = noTitle
	}

	chunks := chunkText(text, s.chunkSize)
	slog.Debug("Scraped page", "url", pageURL, "method", method, "chars", len(text), "chunks", len(chunks))

	return &models.SourceContent{
		URL:     pageURL,
		Title:   title,
		Content: text,
		Chunks:  chunks,
		Metadata: map[string]any{
			"method":         method,
			"content_length": len(text),
			"chunks":         len(chunks),
			"fetched_at":     time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

type fetchedPage struct {
	html  []byte
	title string
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) (*fetchedPage, error) {
	c := colly.NewCollector(
		colly.UserAgent(s.userAgent),
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(s.requestTimeout)
	c.Context = ctx

	var (
		mu       sync.Mutex
		page     fetchedPage
		fetchErr error
	)

	c.OnHTML("head > title", func(e *colly.HTMLElement) {
		mu.Lock()
		defer mu.Unlock()
		if page.title == "" {
			page.title = cleanText(e.Text)
		}
	})

	c.OnResponse(func(r *colly.Response) {
		mu.Lock()
		defer mu.Unlock()
		page.html = r.Body
	})

	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		fetchErr = fmt.Errorf("scrape error for %s: %w (status: %d)", pageURL, err, r.StatusCode)
	})

	if err := c.Visit(pageURL); err != nil && fetchErr == nil {
		return nil, fmt.Errorf("failed to visit %s: %w", pageURL, err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if len(page.html) == 0 {
		return nil, fmt.Errorf("empty response from %s", pageURL)
	}
	return &page, nil
}

// extract runs readability over the document and falls back to selector
// based extraction when it yields too little text.
func extract(html []byte, pageURL string) (text, title, method string) {
	if parsed, err := url.Parse(pageURL); err == nil {
		if article, err := readability.FromReader(bytes.NewReader(html), parsed); err == nil {
			title = cleanText(article.Title)
			text = cleanText(article.TextContent)
		}
	}
	if len(text) >= minReadableChars {
		return text, title, "readability"
	}

	if fallback := selectorText(html); len(fallback) > len(text) {
		return fallback, title, "selector"
	}
	return text, title, "readability"
}

// selectorText strips page chrome and returns the text of the first content
// container found, or of the whole body.
func selectorText(html []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, nav, footer, noscript").Remove()

	for _, selector := range contentSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			if text := cleanText(sel.Text()); text != "" {
				return text
			}
		}
	}
	return cleanText(doc.Find("body").Text())
}

// ValidateURL checks if a URL is valid and uses http/https.
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL must use http or https scheme")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// cleanText collapses runs of whitespace inside each line and drops blank
// lines.
func cleanText(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// chunkText splits text on word boundaries into chunks of at least size
// characters. Only the last chunk may be shorter.
func chunkText(text string, size int) []string {
	var (
		chunks  []string
		current strings.Builder
	)
	for _, word := range strings.Fields(text) {
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
		if current.Len() >= size {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
