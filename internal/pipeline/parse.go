package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoStructuredOutput is returned when a reply contains nothing that looks
// like JSON.
var ErrNoStructuredOutput = errors.New("no structured output in response")

// ParseStructured decodes the JSON payload of a model reply into T. It
// tolerates markdown code fences and prose around the payload.
func ParseStructured[T any](raw string) (T, error) {
	var out T
	text := ExtractJSON(raw)
	if text == "" || !looksLikeJSON(text) {
		return out, ErrNoStructuredOutput
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return out, fmt.Errorf("decode structured output: %w", err)
	}
	return out, nil
}

// StripCodeFence removes a markdown code fence wrapped around the whole
// reply, including any language tag after the opening fence.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], " {[") {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ExtractJSON attempts to extract JSON from a potentially messy model reply.
// It tries the reply as-is, then without code fences, then the span between
// the first opening and last matching closing delimiter.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if looksLikeJSON(raw) {
		return raw
	}

	cleaned := StripCodeFence(raw)
	if looksLikeJSON(cleaned) {
		return cleaned
	}

	arr := strings.Index(cleaned, "[")
	obj := strings.Index(cleaned, "{")
	open, closer := "[", "]"
	if obj >= 0 && (arr < 0 || obj < arr) {
		open, closer = "{", "}"
	}
	if start := strings.Index(cleaned, open); start >= 0 {
		if end := strings.LastIndex(cleaned, closer); end > start {
			return cleaned[start : end+1]
		}
	}
	return cleaned
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	return (strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")) ||
		(strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}"))
}

// stringList decodes a string, a list of strings, or a list of objects with
// a "title" field. Blank entries are dropped.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single = strings.TrimSpace(single); single != "" {
			*l = stringList{single}
		}
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(stringList, 0, len(items))
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			Title string `json:"title"`
		}
		if json.Unmarshal(item, &obj) == nil {
			if t := strings.TrimSpace(obj.Title); t != "" {
				out = append(out, t)
			}
		}
	}
	*l = out
	return nil
}
