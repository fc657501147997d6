package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/briefly-app/core/internal/config"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"
)

const (
	ProviderOpenAI           = "openai"
	ProviderAnthropic        = "anthropic"
	ProviderOpenRouter       = "openrouter"
	ProviderOpenAICompatible = "openai-compatible"
	ProviderGemini           = "gemini"

	defaultOpenAIModel     = "gpt-4o-mini"
	defaultAnthropicModel  = "claude-haiku-4-5-20251001"
	defaultOpenRouterModel = "openai/gpt-4o-mini"
	defaultGeminiModel     = "gemini-1.5-flash"
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
)

// generator performs exactly one text-generation request.
type generator interface {
	Generate(ctx context.Context, systemPrompt, prompt string) (string, error)
	Close() error
}

func normalizeProviderType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "_", "-")
	t = strings.ReplaceAll(t, " ", "")
	if t == "openaicompatible" {
		t = ProviderOpenAICompatible
	}
	if t == "google" {
		t = ProviderGemini
	}
	return t
}

// newGenerator builds the adapter for cfg.Type. Every SDK client is built
// with retries disabled.
func newGenerator(cfg config.AIConfig) (generator, string, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, "", errors.New("ai api key is empty")
	}
	modelID := strings.TrimSpace(cfg.Model)
	endpoint := strings.TrimSpace(cfg.Endpoint)

	switch normalizeProviderType(cfg.Type) {
	case ProviderAnthropic:
		if modelID == "" {
			modelID = defaultAnthropicModel
		}
		opts := []anthropicoption.RequestOption{
			anthropicoption.WithAPIKey(apiKey),
			anthropicoption.WithMaxRetries(0),
		}
		if endpoint != "" {
			opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
		}
		client := anthropicclient.NewClient(opts...)
		model := jetanthropic.NewLanguageModel(modelID, jetanthropic.WithClient(client))
		return &jetGenerator{model: model, maxTokens: cfg.MaxOutputTokens}, modelID, nil

	case ProviderOpenAI, ProviderOpenRouter:
		base := normalizeOpenAIBaseURL(endpoint)
		if normalizeProviderType(cfg.Type) == ProviderOpenRouter {
			if modelID == "" {
				modelID = defaultOpenRouterModel
			}
			if base == "" {
				base = openRouterBaseURL
			}
		}
		if modelID == "" {
			modelID = defaultOpenAIModel
		}
		opts := []openaioption.RequestOption{
			openaioption.WithAPIKey(apiKey),
			openaioption.WithMaxRetries(0),
		}
		if base != "" {
			opts = append(opts, openaioption.WithBaseURL(base))
		}
		client := openaiclient.NewClient(opts...)
		model := jetopenai.NewLanguageModel(modelID, jetopenai.WithClient(client))
		return &jetGenerator{model: model, maxTokens: cfg.MaxOutputTokens}, modelID, nil

	case ProviderOpenAICompatible:
		if modelID == "" {
			modelID = defaultOpenAIModel
		}
		return &compatGenerator{
			endpoint:  normalizeOpenAICompatibleEndpoint(endpoint),
			apiKey:    apiKey,
			model:     modelID,
			maxTokens: cfg.MaxOutputTokens,
			client:    &http.Client{},
		}, modelID, nil

	case ProviderGemini:
		if modelID == "" {
			modelID = defaultGeminiModel
		}
		g, err := newGeminiGenerator(apiKey, endpoint, modelID, cfg.MaxOutputTokens)
		if err != nil {
			return nil, "", err
		}
		return g, modelID, nil
	}
	return nil, "", fmt.Errorf("unsupported ai provider type %q", cfg.Type)
}

// jetGenerator drives OpenAI-style and Anthropic models through go.jetify.com/ai.
type jetGenerator struct {
	model     jetapi.LanguageModel
	maxTokens int
}

func (g *jetGenerator) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	resp, err := jetai.GenerateText(
		ctx,
		buildAIPromptMessages(systemPrompt, prompt),
		jetai.WithModel(g.model),
		jetai.WithMaxOutputTokens(g.maxTokens),
	)
	if err != nil {
		return "", err
	}
	return extractTextFromAIResponse(resp), nil
}

func (g *jetGenerator) Close() error { return nil }

func buildAIPromptMessages(systemPrompt, prompt string) []jetapi.Message {
	messages := make([]jetapi.Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, &jetapi.SystemMessage{Content: systemPrompt})
	}
	messages = append(messages, &jetapi.UserMessage{Content: jetapi.ContentFromText(prompt)})
	return messages
}

func extractTextFromAIResponse(resp *jetapi.Response) string {
	if resp == nil {
		return ""
	}
	var full strings.Builder
	for _, block := range resp.Content {
		textBlock, ok := block.(*jetapi.TextBlock)
		if !ok || textBlock.Text == "" {
			continue
		}
		full.WriteString(textBlock.Text)
	}
	return full.String()
}

// compatGenerator speaks the OpenAI chat-completions wire format over plain
// HTTP, for self-hosted gateways the SDK does not handle.
type compatGenerator struct {
	endpoint  string
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
}

// statusError carries a provider HTTP status.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Body)
}

func (g *compatGenerator) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	messages := make([]map[string]string, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	body, err := json.Marshal(map[string]interface{}{
		"model":      g.model,
		"messages":   messages,
		"max_tokens": g.maxTokens,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", &statusError{Status: resp.StatusCode, Body: truncate(strings.TrimSpace(string(respBody)), 512)}
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", malformed(ProviderOpenAICompatible, fmt.Errorf("decode chat completion: %w", err))
	}
	if result.Error != nil && strings.TrimSpace(result.Error.Message) != "" {
		return "", fmt.Errorf("provider error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", malformed(ProviderOpenAICompatible, errors.New("chat completion has no choices"))
	}
	return result.Choices[0].Message.Content, nil
}

func (g *compatGenerator) Close() error {
	g.client.CloseIdleConnections()
	return nil
}

func normalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/")
	}

	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}

func normalizeOpenAICompatibleEndpoint(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return "https://api.openai.com"
	}

	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimSuffix(strings.TrimRight(base, "/"), "/v1")
	}
	parsed.Path = strings.TrimSuffix(strings.TrimRight(parsed.Path, "/"), "/v1")
	return strings.TrimRight(parsed.String(), "/")
}

func truncate(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}
