package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiGenerator calls Google Gemini through generative-ai-go.
type geminiGenerator struct {
	client    *genai.Client
	model     string
	maxTokens int
}

func newGeminiGenerator(apiKey, endpoint, model string, maxTokens int) (*geminiGenerator, error) {
	// The REST client retries 503 responses on its own. Supplying the HTTP
	// client lets singleAttemptTransport hand every response back unretried;
	// with a custom client the key must travel as a header.
	httpClient := &http.Client{Transport: &singleAttemptTransport{apiKey: apiKey, base: http.DefaultTransport}}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	client, err := genai.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	return &geminiGenerator{client: client, model: model, maxTokens: maxTokens}, nil
}

func (g *geminiGenerator) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}
	if g.maxTokens > 0 {
		model.SetMaxOutputTokens(int32(g.maxTokens))
	}
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", malformed(ProviderGemini, errors.New("no response candidates"))
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return "", malformed(ProviderGemini, errors.New("no content in response"))
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String(), nil
}

func (g *geminiGenerator) Close() error { return g.client.Close() }

// singleAttemptTransport authenticates Gemini requests and rewrites 503 to
// 502 so the generated client does not schedule a retry.
type singleAttemptTransport struct {
	apiKey string
	base   http.RoundTripper
}

func (t *singleAttemptTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("x-goog-api-key", t.apiKey)
	resp, err := t.base.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		resp.StatusCode = http.StatusBadGateway
		resp.Status = "502 Bad Gateway (upstream unavailable)"
	}
	return resp, nil
}
