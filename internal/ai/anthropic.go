package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultModel = "claude-sonnet-4-5"

// AnthropicProvider implements Provider on top of the official Anthropic SDK.
type AnthropicProvider struct {
	httpClient *http.Client
	settings   SettingsGetter
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(sg SettingsGetter) *AnthropicProvider {
	return &AnthropicProvider{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		settings:   sg,
	}
}

func (a *AnthropicProvider) Name() string { return "anthropic" }

func (a *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	apiKey := strings.TrimSpace(setting(a.settings, "anthropic_api_key", ""))
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key not configured (set ANTHROPIC_API_KEY)")
	}
	model := strings.TrimSpace(setting(a.settings, "ai_model", anthropicDefaultModel))

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(a.httpClient),
		option.WithMaxRetries(1),
	}
	if baseURL := setting(a.settings, "ai_base_url", ""); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	var system []string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed (model=%s): %w", model, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &ChatResponse{
		Content:    sb.String(),
		TokensUsed: int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		Model:      string(msg.Model),
		Provider:   "anthropic",
	}, nil
}
