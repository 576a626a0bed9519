package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/thinkscotty/autoresearch/internal/models"
)

const outlineSystem = "You are an expert technical writer. Create clear, logical article outlines."

// OutlineStage condenses the research into an article structure.
type OutlineStage struct {
	gen              Generator
	perspectives     []string
	factsPerDigested int
}

func (s *OutlineStage) Name() string { return "outline" }

func (s *OutlineStage) Run(ctx context.Context, st State) (Patch, error) {
	if len(st.ResearchMemory) == 0 {
		slog.Info("No research to outline")
		return Patch{}, nil
	}

	var outline *models.ArticleOutline
	if st.ResearchMemory.TotalFacts() == 0 {
		slog.Warn("No facts extracted, using fallback outline", "topic", st.Topic)
		outline = FallbackOutline(st.Topic, st.CustomTitle)
	} else {
		var err error
		outline, err = s.generate(ctx, st)
		if err != nil {
			if ctx.Err() != nil {
				return Patch{}, fmt.Errorf("outline: %w", ctx.Err())
			}
			slog.Warn("Outline generation failed, using fallback outline", "topic", st.Topic, "error", err)
			outline = FallbackOutline(st.Topic, st.CustomTitle)
		}
	}

	if st.CustomTitle != "" && outline.Title != st.CustomTitle {
		slog.Info("Using custom title", "title", st.CustomTitle)
		outline.Title = st.CustomTitle
	}

	slog.Info("Outline generated", "title", outline.Title, "sections", len(outline.Sections))
	return Patch{Outline: outline}, nil
}

// digest lists the first few facts of every non-empty perspective.
func (s *OutlineStage) digest(memory ResearchMemory) string {
	var lines []string
	for _, p := range memory.Ordered(s.perspectives) {
		facts := memory[p]
		if len(facts) == 0 {
			continue
		}
		lines = append(lines, "## "+perspectiveLabel(p))
		if len(facts) > s.factsPerDigested {
			facts = facts[:s.factsPerDigested]
		}
		for _, f := range facts {
			lines = append(lines, fmt.Sprintf("- %s (Source: %s)", f.Fact, f.SourceURL))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

type outlineReply struct {
	Title    string                `json:"title"`
	Sections []outlineSectionReply `json:"sections"`
	Summary  string                `json:"summary"`
}

type outlineSectionReply struct {
	Title       string     `json:"title"`
	Subsections stringList `json:"subsections"`
}

func (s *OutlineStage) generate(ctx context.Context, st State) (*models.ArticleOutline, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `Create a comprehensive Wikipedia-style outline for an article about: %s

RESEARCH FINDINGS:
%s

Requirements:
1. Create a logical, hierarchical structure
2. Include introduction and conclusion
3. Cover all major aspects found in research
4. Use clear, descriptive section headings, each heading unique
5. Include 2-3 subsections for main sections
6. Provide a brief summary of what the article will cover`, st.Topic, s.digest(st.ResearchMemory))
	if st.CustomTitle != "" {
		fmt.Fprintf(&sb, "\n7. Use this exact title: %s", st.CustomTitle)
	}
	sb.WriteString("\n\nReturn as JSON with: title, sections (list with title, subsections), summary")

	reply, err := completeStructured(ctx, s.gen, sb.String(), outlineSystem)
	if err != nil {
		return nil, err
	}

	parsed, err := ParseStructured[outlineReply](reply)
	if err != nil {
		return nil, err
	}

	outline := &models.ArticleOutline{
		Title:   strings.TrimSpace(parsed.Title),
		Summary: strings.TrimSpace(parsed.Summary),
	}
	for _, sec := range parsed.Sections {
		title := strings.TrimSpace(sec.Title)
		if title == "" {
			continue
		}
		subs := []string(sec.Subsections)
		if subs == nil {
			subs = []string{}
		}
		outline.Sections = append(outline.Sections, models.OutlineSection{Title: title, Subsections: subs})
	}
	if len(outline.Sections) == 0 {
		return nil, fmt.Errorf("outline has no sections")
	}
	if outline.Title == "" {
		outline.Title = defaultTitle(st.Topic)
	}
	if outline.Summary == "" {
		outline.Summary = defaultSummary(st.Topic)
	}
	uniquifySectionTitles(outline)
	return outline, nil
}

// FallbackOutline is the fixed five-section skeleton used when no outline
// can be generated.
func FallbackOutline(topic, customTitle string) *models.ArticleOutline {
	title := customTitle
	if title == "" {
		title = defaultTitle(topic)
	}
	return &models.ArticleOutline{
		Title: title,
		Sections: []models.OutlineSection{
			{Title: "Introduction", Subsections: []string{}},
			{Title: "Background and Context", Subsections: []string{"Historical Development", "Key Concepts"}},
			{Title: "Current State", Subsections: []string{"Recent Developments", "Current Applications"}},
			{Title: "Future Implications", Subsections: []string{}},
			{Title: "Conclusion", Subsections: []string{}},
		},
		Summary: defaultSummary(topic),
	}
}

func defaultTitle(topic string) string {
	return "Comprehensive Analysis of " + topic
}

func defaultSummary(topic string) string {
	return fmt.Sprintf("A comprehensive analysis of %s covering key aspects and implications.", topic)
}

// uniquifySectionTitles suffixes repeated section titles with " (2)", " (3)"
// and so on, since drafts are keyed by title.
func uniquifySectionTitles(o *models.ArticleOutline) {
	used := make(map[string]bool, len(o.Sections))
	for i := range o.Sections {
		title := o.Sections[i].Title
		if used[title] {
			for n := 2; ; n++ {
				candidate := fmt.Sprintf("%s (%d)", title, n)
				if !used[candidate] {
					title = candidate
					break
				}
			}
		}
		used[title] = true
		o.Sections[i].Title = title
	}
}

// perspectiveLabel turns "economic_impact" into "Economic Impact".
func perspectiveLabel(p string) string {
	words := strings.Split(p, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
