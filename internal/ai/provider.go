package ai

import (
	"context"

	"github.com/thinkscotty/autoresearch/internal/models"
)

// SettingsGetter is a minimal interface so the ai package does not import database.
type SettingsGetter interface {
	GetSetting(key string) (string, error)
}

// UsageRecorder receives one entry per generation call.
type UsageRecorder interface {
	LogAPIUsage(log models.APIUsageLog) error
}

// Provider is the interface that all AI backends must implement.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string // "gemini", "openai", "ollama", "chutes" or "anthropic"
}

// ChatRequest is a provider-agnostic request.
type ChatRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	JSONMode    bool // request JSON-formatted output
}

// ChatResponse is a provider-agnostic response.
type ChatResponse struct {
	Content    string
	TokensUsed int
	Model      string // e.g. "gemini-2.5-flash" or "gpt-4o"
	Provider   string
}

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// setting reads key and falls back to def when it is unset or blank.
func setting(sg SettingsGetter, key, def string) string {
	if sg == nil {
		return def
	}
	v, err := sg.GetSetting(key)
	if err != nil || v == "" {
		return def
	}
	return v
}
