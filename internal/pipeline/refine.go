package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	refineSystem = "You are a professional editor. Improve articles while maintaining accuracy."

	referencesHeading = "## References"
	noSourcesCited    = "No sources cited."
)

// RefineStage polishes the article and appends the reference list.
type RefineStage struct {
	gen       Generator
	minLength int
}

func (s *RefineStage) Name() string { return "refine" }

func (s *RefineStage) Run(ctx context.Context, st State) (Patch, error) {
	article := strings.TrimSpace(st.FinalArticle)
	if len(article) < s.minLength {
		slog.Info("Article too short to refine", "chars", len(article))
		return Patch{}, nil
	}

	prompt := fmt.Sprintf(`Review and improve this article:

%s

Focus on:
1. Accuracy and clarity
2. Readability and flow
3. Grammar and style
4. Proper citations

Make minimal changes to the structure. Return the improved article in markdown.`, article)

	reply, err := s.gen.Complete(ctx, prompt, refineSystem)
	refined := StripCodeFence(reply)
	if err != nil || refined == "" {
		if ctx.Err() != nil {
			return Patch{}, fmt.Errorf("refine: %w", ctx.Err())
		}
		slog.Warn("Refinement failed, keeping draft article", "topic", st.Topic, "error", err)
		refined = article
	}

	citations := Citations(st.ResearchMemory)
	list := noSourcesCited
	if len(citations) > 0 {
		list = strings.Join(citations, "\n")
	}
	final := refined + "\n\n" + referencesHeading + "\n\n" + list

	slog.Info("Article refined", "citations", len(citations))
	return Patch{FinalArticle: ptr(final)}, nil
}

// Citations numbers the distinct source URLs of memory in sorted order.
func Citations(memory ResearchMemory) []string {
	urls := memory.SourceURLs()
	out := make([]string, len(urls))
	for i, u := range urls {
		out[i] = fmt.Sprintf("%d. %s", i+1, u)
	}
	return out
}
