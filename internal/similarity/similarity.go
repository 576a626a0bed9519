package similarity

import (
	"strings"
	"unicode"
)

// Checker flags near-duplicate texts by character n-gram Jaccard similarity.
type Checker struct {
	threshold float64
	ngramSize int
}

func New(threshold float64, ngramSize int) *Checker {
	if ngramSize < 1 {
		ngramSize = 3
	}
	return &Checker{threshold: threshold, ngramSize: ngramSize}
}

// normalize lowercases, removes punctuation, and collapses whitespace.
func (c *Checker) normalize(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			prevSpace = false
		} else if !prevSpace {
			sb.WriteRune(' ')
			prevSpace = true
		}
	}
	return strings.TrimSpace(sb.String())
}

// NGrams extracts all character n-grams from the text. Texts shorter than
// one n-gram yield the whole normalized text as a single gram.
func (c *Checker) NGrams(text string) map[string]struct{} {
	runes := []rune(c.normalize(text))
	set := make(map[string]struct{})
	if len(runes) > 0 && len(runes) < c.ngramSize {
		set[string(runes)] = struct{}{}
		return set
	}
	for i := 0; i <= len(runes)-c.ngramSize; i++ {
		set[string(runes[i:i+c.ngramSize])] = struct{}{}
	}
	return set
}

// JaccardSimilarity computes |A intersection B| / |A union B|.
func JaccardSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}

	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Similar reports whether a and b reach the similarity threshold.
func (c *Checker) Similar(a, b string) bool {
	return JaccardSimilarity(c.NGrams(a), c.NGrams(b)) >= c.threshold
}

// Keep returns the indices of texts that are not near-duplicates of an
// earlier kept text, in input order.
func (c *Checker) Keep(texts []string) []int {
	kept := make([]int, 0, len(texts))
	grams := make([]map[string]struct{}, 0, len(texts))
	for i, text := range texts {
		g := c.NGrams(text)
		dup := false
		for _, prev := range grams {
			if JaccardSimilarity(g, prev) >= c.threshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		kept = append(kept, i)
		grams = append(grams, g)
	}
	return kept
}
