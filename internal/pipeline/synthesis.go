package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	synthesisSystem = "You are an expert editor. Create cohesive, well-structured articles."

	// NoContentAvailable is the article produced when there is nothing to synthesize.
	NoContentAvailable = "No content available."
)

// SynthesisStage merges the section drafts into one article.
type SynthesisStage struct {
	gen Generator
}

func (s *SynthesisStage) Name() string { return "synthesize" }

func (s *SynthesisStage) Run(ctx context.Context, st State) (Patch, error) {
	if st.Outline == nil || len(st.DraftSections) == 0 {
		slog.Warn("Nothing to synthesize", "topic", st.Topic)
		return Patch{FinalArticle: ptr(NoContentAvailable)}, nil
	}

	var parts []string
	for _, sec := range st.Outline.Sections {
		draft, ok := st.DraftSections[sec.Title]
		if !ok {
			slog.Debug("Section missing from drafts", "section", sec.Title)
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", sec.Title, draft.Content))
	}
	body := strings.Join(parts, "\n\n")

	prompt := fmt.Sprintf(`Create a cohesive, well-structured article from these sections:

TITLE: %s
SUMMARY: %s

SECTIONS:
%s

Requirements:
1. Create smooth transitions between sections
2. Ensure consistent tone and style
3. Remove redundancy
4. Add a brief introduction if missing
5. Ensure logical flow
6. Maintain all citations
7. Format in markdown with proper headings, starting with "# %s"

Return the complete article.`, st.Outline.Title, st.Outline.Summary, body, st.Outline.Title)

	reply, err := s.gen.Complete(ctx, prompt, synthesisSystem)
	article := StripCodeFence(reply)
	if err != nil || article == "" {
		if ctx.Err() != nil {
			return Patch{}, fmt.Errorf("synthesize: %w", ctx.Err())
		}
		slog.Warn("Synthesis failed, concatenating drafts", "topic", st.Topic, "error", err)
		article = fmt.Sprintf("# %s\n\n%s\n\n%s", st.Outline.Title, st.Outline.Summary, body)
	}

	slog.Info("Article synthesized", "chars", len(article))
	return Patch{FinalArticle: ptr(article)}, nil
}
