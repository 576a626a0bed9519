package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// OpenAI-compatible request/response types (unexported). OpenAI, Ollama and
// Chutes.ai all accept this format on /chat/completions.

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Stream         bool            `json:"stream"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
	Model   string       `json:"model"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// compatibleBackend describes one OpenAI-compatible service.
type compatibleBackend struct {
	name         string
	baseURL      string
	keySetting   string // empty when the backend needs no key
	defaultModel string
	timeout      time.Duration
}

var compatibleBackends = map[string]compatibleBackend{
	"openai": {
		name:         "openai",
		baseURL:      "https://api.openai.com/v1",
		keySetting:   "openai_api_key",
		defaultModel: "gpt-4o",
		timeout:      2 * time.Minute,
	},
	"ollama": {
		name:         "ollama",
		baseURL:      "http://localhost:11434/v1",
		defaultModel: "mistral-nemo",
		timeout:      10 * time.Minute,
	},
	"chutes": {
		name:         "chutes",
		baseURL:      "https://llm.chutes.ai/v1",
		keySetting:   "chutes_api_key",
		defaultModel: "deepseek-ai/DeepSeek-V3",
		timeout:      5 * time.Minute,
	},
}

// OpenAIProvider implements Provider for any OpenAI-compatible chat API.
type OpenAIProvider struct {
	httpClient *http.Client
	settings   SettingsGetter
	backend    compatibleBackend
}

// NewOpenAIProvider creates a provider for the named backend: "openai",
// "ollama" or "chutes". Unknown names fall back to "openai".
func NewOpenAIProvider(name string, sg SettingsGetter) *OpenAIProvider {
	backend, ok := compatibleBackends[name]
	if !ok {
		backend = compatibleBackends["openai"]
	}
	return &OpenAIProvider{
		httpClient: &http.Client{Timeout: backend.timeout},
		settings:   sg,
		backend:    backend,
	}
}

func (o *OpenAIProvider) Name() string { return o.backend.name }

func (o *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var apiKey string
	if o.backend.keySetting != "" {
		apiKey = strings.TrimSpace(setting(o.settings, o.backend.keySetting, ""))
		if apiKey == "" {
			return nil, fmt.Errorf("%s API key not configured (set %s)", o.backend.name, strings.ToUpper(o.backend.keySetting))
		}
	}

	baseURL := setting(o.settings, "ai_base_url", o.backend.baseURL)
	model := strings.TrimSpace(setting(o.settings, "ai_model", o.backend.defaultModel))

	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s request skipped (context already cancelled): %w", o.backend.name, ctx.Err())
	}

	msgs := make([]chatMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = chatMessage{Role: m.Role, Content: m.Content}
	}

	body := chatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      false,
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(baseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	start := time.Now()
	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed (model=%s, elapsed=%s): %w", o.backend.name, model, time.Since(start), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errMsg := extractAPIError(respBody)
		if errMsg == "" {
			errMsg = string(respBody)
		}
		slog.Error("Chat API error", "provider", o.backend.name, "status", resp.StatusCode, "model", model, "error", errMsg)
		return nil, fmt.Errorf("%s returned status %d: %s", o.backend.name, resp.StatusCode, errMsg)
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", o.backend.name, err)
	}

	tokensUsed := 0
	if chatResp.Usage != nil {
		tokensUsed = chatResp.Usage.TotalTokens
	}

	content := ""
	if len(chatResp.Choices) > 0 {
		content = chatResp.Choices[0].Message.Content
	}

	slog.Debug("Chat request completed", "provider", o.backend.name, "model", model,
		"elapsed", time.Since(start), "tokens", tokensUsed, "response_chars", len(content))

	return &ChatResponse{
		Content:    content,
		TokensUsed: tokensUsed,
		Model:      model,
		Provider:   o.backend.name,
	}, nil
}

// extractAPIError parses JSON error bodies into a human-readable message.
// Backends return either {"error":"message"} or {"error":{"message":"text","type":"api_error"}}.
func extractAPIError(body []byte) string {
	var flat struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &flat) == nil && flat.Error != "" {
		return flat.Error
	}

	var nested struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &nested) == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}

	return ""
}
