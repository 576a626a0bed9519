package pipeline

import (
	"sort"

	"github.com/thinkscotty/autoresearch/internal/models"
)

// ResearchMemory groups extracted facts by perspective.
type ResearchMemory map[string][]models.ResearchFact

// TotalFacts counts facts across all perspectives.
func (m ResearchMemory) TotalFacts() int {
	n := 0
	for _, facts := range m {
		n += len(facts)
	}
	return n
}

// SourceURLs returns every cited source URL, sorted and de-duplicated.
func (m ResearchMemory) SourceURLs() []string {
	seen := make(map[string]bool)
	var urls []string
	for _, facts := range m {
		for _, f := range facts {
			if f.SourceURL == "" || seen[f.SourceURL] {
				continue
			}
			seen[f.SourceURL] = true
			urls = append(urls, f.SourceURL)
		}
	}
	sort.Strings(urls)
	return urls
}

// Ordered returns the perspectives of m in the given preferred order,
// followed by any remaining keys in lexical order.
func (m ResearchMemory) Ordered(preferred []string) []string {
	out := make([]string, 0, len(m))
	used := make(map[string]bool, len(m))
	for _, p := range preferred {
		if _, ok := m[p]; ok && !used[p] {
			out = append(out, p)
			used[p] = true
		}
	}
	var rest []string
	for p := range m {
		if !used[p] {
			rest = append(rest, p)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// State is the record threaded through the stages of one run. Stages never
// modify it; they return a Patch that the orchestrator folds in with Apply.
type State struct {
	Topic          string
	CustomTitle    string
	SearchQuery    string
	SearchResults  []models.SearchResult
	SourceContents []models.SourceContent
	ResearchMemory ResearchMemory
	Outline        *models.ArticleOutline
	DraftSections  map[string]models.SectionDraft
	FinalArticle   string
	Error          string
	RetryCount     int // reserved, runs are never retried
}

// NewState returns the initial state for a run with empty collections.
func NewState(topic, customTitle string) State {
	return State{
		Topic:          topic,
		CustomTitle:    customTitle,
		SearchResults:  []models.SearchResult{},
		SourceContents: []models.SourceContent{},
		ResearchMemory: ResearchMemory{},
		DraftSections:  map[string]models.SectionDraft{},
	}
}

// Patch is the partial update a stage produces. Nil fields leave the state
// unchanged.
type Patch struct {
	SearchQuery    *string
	SearchResults  []models.SearchResult
	SourceContents []models.SourceContent
	ResearchMemory ResearchMemory
	Outline        *models.ArticleOutline
	DraftSections  map[string]models.SectionDraft
	FinalArticle   *string
	Error          *string
}

// Apply returns a copy of s with the fields set in p replaced.
func (s State) Apply(p Patch) State {
	if p.SearchQuery != nil {
		s.SearchQuery = *p.SearchQuery
	}
	if p.SearchResults != nil {
		s.SearchResults = p.SearchResults
	}
	if p.SourceContents != nil {
		s.SourceContents = p.SourceContents
	}
	if p.ResearchMemory != nil {
		s.ResearchMemory = p.ResearchMemory
	}
	if p.Outline != nil {
		s.Outline = p.Outline
	}
	if p.DraftSections != nil {
		s.DraftSections = p.DraftSections
	}
	if p.FinalArticle != nil {
		s.FinalArticle = *p.FinalArticle
	}
	if p.Error != nil {
		s.Error = *p.Error
	}
	return s
}

// SourcesUsed counts distinct retrieved source URLs.
func (s State) SourcesUsed() int {
	seen := make(map[string]bool, len(s.SourceContents))
	for _, c := range s.SourceContents {
		seen[c.URL] = true
	}
	return len(seen)
}

func ptr[T any](v T) *T { return &v }
