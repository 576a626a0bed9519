package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/thinkscotty/autoresearch/internal/models"
)

const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 4096
)

// Client is the main AI entry point. It routes requests to the configured
// provider and records token usage for every call.
type Client struct {
	providers map[string]Provider
	settings  SettingsGetter
	usage     UsageRecorder
}

// NewClient creates an AI client with every supported provider registered.
// usage may be nil.
func NewClient(sg SettingsGetter, usage UsageRecorder) *Client {
	c := &Client{
		providers: make(map[string]Provider),
		settings:  sg,
		usage:     usage,
	}
	c.Register(NewGeminiProvider(sg))
	c.Register(NewAnthropicProvider(sg))
	for name := range compatibleBackends {
		c.Register(NewOpenAIProvider(name, sg))
	}
	return c
}

// Register adds or replaces a provider under its Name.
func (c *Client) Register(p Provider) {
	c.providers[p.Name()] = p
}

// resolveProvider returns the provider named by the ai_provider setting,
// defaulting to openai.
func (c *Client) resolveProvider() (Provider, error) {
	name := strings.ToLower(setting(c.settings, "ai_provider", "openai"))
	p, ok := c.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown ai provider %q", name)
	}
	return p, nil
}

// Complete sends a system instruction and a prompt to the active provider
// and returns the text of the reply. Empty replies are reported as errors.
func (c *Client) Complete(ctx context.Context, prompt, system string) (string, error) {
	return c.complete(ctx, prompt, system, false)
}

// CompleteJSON is Complete with the provider's JSON output mode switched on,
// for prompts that ask for a JSON object.
func (c *Client) CompleteJSON(ctx context.Context, prompt, system string) (string, error) {
	return c.complete(ctx, prompt, system, true)
}

func (c *Client) complete(ctx context.Context, prompt, system string, jsonMode bool) (string, error) {
	provider, err := c.resolveProvider()
	if err != nil {
		return "", err
	}

	var msgs []Message
	if system != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	msgs = append(msgs, Message{Role: "user", Content: prompt})

	resp, err := provider.Chat(ctx, ChatRequest{
		Messages:    msgs,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
		JSONMode:    jsonMode,
	})

	entry := models.APIUsageLog{AIProvider: provider.Name()}
	if resp != nil {
		entry.TokensUsed = resp.TokensUsed
		entry.AIModel = resp.Model
	}
	if err == nil && resp != nil && strings.TrimSpace(resp.Content) == "" {
		err = fmt.Errorf("empty response from %s", provider.Name())
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	c.record(entry)

	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (c *Client) record(entry models.APIUsageLog) {
	if c.usage == nil {
		return
	}
	if err := c.usage.LogAPIUsage(entry); err != nil {
		slog.Warn("Failed to record API usage", "provider", entry.AIProvider, "error", err)
	}
}
