package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/thinkscotty/autoresearch/internal/models"
)

const (
	researchSystem = "You are a research assistant. Extract factual information from sources and return valid JSON."

	defaultConfidence = 0.8
)

// ResearchStage extracts perspective-tagged facts from the retrieved sources.
// Each perspective is one independent generation call.
type ResearchStage struct {
	gen          Generator
	perspectives []string
	maxChunks    int
	concurrency  int
	dedupe       Deduplicator
}

func (s *ResearchStage) Name() string { return "research" }

func (s *ResearchStage) Run(ctx context.Context, st State) (Patch, error) {
	memory := make(ResearchMemory, len(s.perspectives))
	for _, p := range s.perspectives {
		memory[p] = []models.ResearchFact{}
	}
	if len(st.SourceContents) == 0 {
		slog.Info("No sources to analyze")
		return Patch{ResearchMemory: memory}, nil
	}

	slog.Info("Analyzing sources", "sources", len(st.SourceContents), "perspectives", len(s.perspectives))

	sample := s.sampleSources(st.SourceContents)
	known := make(map[string]bool, len(st.SourceContents))
	for _, c := range st.SourceContents {
		known[c.URL] = true
	}

	results := make([][]models.ResearchFact, len(s.perspectives))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, perspective := range s.perspectives {
		goSafe(g, "perspective "+perspective, func() error {
			facts, err := s.analyze(gctx, st.Topic, perspective, sample, known)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("Perspective analysis failed", "perspective", perspective, "error", err)
				return nil
			}
			results[i] = facts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Patch{}, fmt.Errorf("research: %w", err)
	}

	for i, perspective := range s.perspectives {
		if results[i] != nil {
			memory[perspective] = results[i]
		}
	}

	slog.Info("Extracted facts", "facts", memory.TotalFacts(), "perspectives", len(s.perspectives))
	return Patch{ResearchMemory: memory}, nil
}

// sampleSources renders at most maxChunks chunks per source into the prompt
// context block.
func (s *ResearchStage) sampleSources(sources []models.SourceContent) string {
	var blocks []string
	for _, src := range sources {
		chunks := src.Chunks
		if len(chunks) > s.maxChunks {
			chunks = chunks[:s.maxChunks]
		}
		for _, chunk := range chunks {
			blocks = append(blocks, fmt.Sprintf("Source: %s\nURL: %s\nContent: %s", src.Title, src.URL, chunk))
		}
	}
	return strings.Join(blocks, "\n\n")
}

func (s *ResearchStage) analyze(ctx context.Context, topic, perspective, sample string, known map[string]bool) ([]models.ResearchFact, error) {
	prompt := fmt.Sprintf(`Analyze the following sources about '%s' from the perspective of: %s

SOURCES:
%s

Extract 3-5 key facts, insights, and information relevant to %s.

For each fact, provide:
- The factual information
- Source URL it came from (copy it exactly from the URL line of the source)
- Confidence level (0.0 to 1.0)
- Relevant tags

Return ONLY a JSON object with a "facts" array of objects with these fields: fact, perspective, source_url, confidence, tags`,
		topic, perspective, sample, perspective)

	reply, err := completeStructured(ctx, s.gen, prompt, researchSystem)
	if err != nil {
		return nil, err
	}

	facts, err := parseFacts(reply, perspective)
	if err != nil {
		return nil, err
	}

	attributed := facts[:0]
	for _, f := range facts {
		if !known[f.SourceURL] {
			slog.Debug("Dropping unattributed fact", "perspective", perspective, "source_url", f.SourceURL)
			continue
		}
		attributed = append(attributed, f)
	}

	return s.removeNearDuplicates(attributed), nil
}

func (s *ResearchStage) removeNearDuplicates(facts []models.ResearchFact) []models.ResearchFact {
	if s.dedupe == nil || len(facts) < 2 {
		return facts
	}
	texts := make([]string, len(facts))
	for i, f := range facts {
		texts[i] = f.Fact
	}
	keep := s.dedupe.Keep(texts)
	out := make([]models.ResearchFact, 0, len(keep))
	for _, i := range keep {
		out = append(out, facts[i])
	}
	return out
}

type factReply struct {
	Fact       string     `json:"fact"`
	SourceURL  string     `json:"source_url"`
	Confidence *float64   `json:"confidence"`
	Tags       stringList `json:"tags"`
}

// parseFacts decodes a list of fact objects. A bare array and an object
// wrapping the array under "facts" are both accepted. Entries that fail to
// decode or lack the fact text or source URL are discarded.
func parseFacts(reply, perspective string) ([]models.ResearchFact, error) {
	entries, err := ParseStructured[[]json.RawMessage](reply)
	if err != nil {
		wrapped, werr := ParseStructured[struct {
			Facts []json.RawMessage `json:"facts"`
		}](reply)
		if werr != nil || wrapped.Facts == nil {
			return nil, err
		}
		entries = wrapped.Facts
	}

	facts := make([]models.ResearchFact, 0, len(entries))
	for _, raw := range entries {
		var r factReply
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		f := models.ResearchFact{
			Fact:        strings.TrimSpace(r.Fact),
			Perspective: perspective,
			SourceURL:   strings.TrimSpace(r.SourceURL),
			Confidence:  defaultConfidence,
			Tags:        []string(r.Tags),
		}
		if r.Confidence != nil {
			f.Confidence = clamp01(*r.Confidence)
		}
		if f.Tags == nil {
			f.Tags = []string{}
		}
		if f.Validate() != nil {
			continue
		}
		facts = append(facts, f)
	}
	return facts, nil
}
