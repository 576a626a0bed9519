package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/thinkscotty/autoresearch/internal/models"
)

const (
	draftSystem = "You are a Wikipedia editor. Write clear, factual, well-structured content."

	keyPointCount     = 3
	keyPointMinLength = 20
)

// DraftStage writes one prose passage per outline section.
type DraftStage struct {
	gen          Generator
	perspectives []string
	maxFacts     int
	concurrency  int
}

func (s *DraftStage) Name() string { return "draft" }

func (s *DraftStage) Run(ctx context.Context, st State) (Patch, error) {
	drafts := map[string]models.SectionDraft{}
	if st.Outline == nil || len(st.Outline.Sections) == 0 {
		return Patch{DraftSections: drafts}, nil
	}

	sections := st.Outline.Sections
	slog.Info("Drafting sections", "count", len(sections))

	results := make([]models.SectionDraft, len(sections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, sec := range sections {
		goSafe(g, "section "+sec.Title, func() error {
			facts := RelevantFacts(sec.Title, st.ResearchMemory, s.perspectives, s.maxFacts)
			draft, err := s.draft(gctx, sec, facts, i, len(sections))
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("Section draft failed, using placeholder", "section", sec.Title, "error", err)
				draft = placeholderDraft(sec.Title)
			}
			results[i] = draft
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Patch{}, fmt.Errorf("draft: %w", err)
	}

	for i, sec := range sections {
		drafts[sec.Title] = results[i]
	}

	slog.Info("All sections drafted", "count", len(drafts))
	return Patch{DraftSections: drafts}, nil
}

type draftReply struct {
	Content string     `json:"content"`
	Sources stringList `json:"sources"`
}

func (s *DraftStage) draft(ctx context.Context, sec models.OutlineSection, facts []models.ResearchFact, index, total int) (models.SectionDraft, error) {
	factLines := make([]string, len(facts))
	for i, f := range facts {
		factLines[i] = fmt.Sprintf("- %s (Source: %s)", f.Fact, f.SourceURL)
	}
	factsText := strings.Join(factLines, "\n")
	if factsText == "" {
		factsText = "(no specific facts were found for this section; write a short general overview)"
	}

	subsections := "none"
	if len(sec.Subsections) > 0 {
		subsections = strings.Join(sec.Subsections, "; ")
	}

	prompt := fmt.Sprintf(`Write the '%s' section for a comprehensive article.

This is section %d of %d.
Planned subsections: %s

RELEVANT FACTS:
%s

Requirements:
1. Write in Wikipedia-style: neutral, factual, comprehensive
2. Use the provided facts as basis
3. Include citations for all facts
4. Write 200-300 words
5. Focus on clarity and readability
6. Connect logically to surrounding sections

Return JSON with: content (the section prose, without a heading), sources (list of source URLs you used)`,
		sec.Title, index+1, total, subsections, factsText)

	reply, err := completeStructured(ctx, s.gen, prompt, draftSystem)
	if err != nil {
		return models.SectionDraft{}, err
	}

	// Prose replies are accepted as-is; a JSON reply must carry its content.
	content := strings.TrimSpace(StripCodeFence(reply))
	var cited []string
	if parsed, perr := ParseStructured[draftReply](reply); perr == nil {
		content = strings.TrimSpace(parsed.Content)
		cited = parsed.Sources
	}
	if content == "" {
		return models.SectionDraft{}, fmt.Errorf("empty draft for %q", sec.Title)
	}

	return models.SectionDraft{
		SectionTitle: sec.Title,
		Content:      content,
		Sources:      citedSources(cited, facts),
		KeyPoints:    ExtractKeyPoints(content),
	}, nil
}

func placeholderDraft(title string) models.SectionDraft {
	return models.SectionDraft{
		SectionTitle: title,
		Content:      fmt.Sprintf("Content for %s could not be generated.", title),
		Sources:      []string{},
		KeyPoints:    []string{},
	}
}

// citedSources keeps the cited URLs that belong to the section's facts. When
// the model cited nothing usable, every fact URL is used. The result is
// sorted and de-duplicated.
func citedSources(cited []string, facts []models.ResearchFact) []string {
	allowed := make(map[string]bool, len(facts))
	for _, f := range facts {
		allowed[f.SourceURL] = true
	}

	set := make(map[string]bool)
	for _, u := range cited {
		if allowed[u] {
			set[u] = true
		}
	}
	if len(set) == 0 {
		set = allowed
	}

	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// RelevantFacts picks facts for a section by keyword overlap between the
// section title and perspective names. A perspective scores one point per
// distinct underscore-separated token that appears as a word of the title;
// higher scoring perspectives contribute first, ties keep the configured
// order. At most limit facts are returned.
func RelevantFacts(sectionTitle string, memory ResearchMemory, perspectives []string, limit int) []models.ResearchFact {
	words := titleWords(sectionTitle)

	type scored struct {
		perspective string
		score       int
	}
	var ranked []scored
	for _, p := range memory.Ordered(perspectives) {
		score := 0
		seen := make(map[string]bool)
		for _, tok := range strings.Split(strings.ToLower(p), "_") {
			if tok == "" || seen[tok] {
				continue
			}
			seen[tok] = true
			if words[tok] {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{p, score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	var out []models.ResearchFact
	for _, r := range ranked {
		for _, f := range memory[r.perspective] {
			if len(out) >= limit {
				return out
			}
			out = append(out, f)
		}
	}
	return out
}

func titleWords(title string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := make(map[string]bool, len(fields))
	for _, f := range fields {
		words[f] = true
	}
	return words
}

// ExtractKeyPoints returns the first three sentences of content that are
// longer than twenty characters.
func ExtractKeyPoints(content string) []string {
	points := []string{}
	for _, sentence := range strings.Split(content, ". ") {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) <= keyPointMinLength {
			continue
		}
		points = append(points, sentence)
		if len(points) == keyPointCount {
			break
		}
	}
	return points
}
