// Package ai is the calling contract for the external summarization service:
// one attempt per request, a deadline owned by the caller, and a strict
// decode of the model's JSON answer.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/briefly-app/core/internal/config"
	"github.com/briefly-app/core/internal/pkg/metrics"
	"github.com/briefly-app/core/internal/pkg/wordcount"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Result is a validated summary with counts computed locally, so every
// provider reports comparable numbers.
type Result struct {
	Summary      string
	Tags         []string
	TotalWords   int
	SummaryWords int
	Provider     string
	Model        string
}

// Summarizer produces a summary of content in the given style. Errors are
// always *ExternalError.
type Summarizer interface {
	Summarize(ctx context.Context, content, style string) (*Result, error)
}

// Client is the production Summarizer.
type Client struct {
	gen      generator
	provider string
	model    string
	limiter  *rate.Limiter
	logger   *zap.Logger
	metrics  *metrics.Exporter
}

// New builds a Client for cfg.
func New(cfg config.AIConfig, logger *zap.Logger, m *metrics.Exporter) (*Client, error) {
	gen, model, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{
		gen:      gen,
		provider: normalizeProviderType(cfg.Type),
		model:    model,
		logger:   logger.Named("AI"),
		metrics:  m,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	return c, nil
}

// Provider returns the configured provider name.
func (c *Client) Provider() string { return c.provider }

// Model returns the configured model id.
func (c *Client) Model() string { return c.model }

// Close releases SDK resources.
func (c *Client) Close() error { return c.gen.Close() }

// Summarize makes one request to the provider. It never retries.
func (c *Client) Summarize(ctx context.Context, content, style string) (*Result, error) {
	start := time.Now()
	res, err := c.summarize(ctx, content, style)

	kind := "ok"
	if err != nil {
		kind = string(err.Kind)
		c.logger.Warn("external summarizer failed",
			zap.String("provider", c.provider),
			zap.String("model", c.model),
			zap.String("kind", kind),
			zap.Duration("took", time.Since(start)),
			zap.Error(err.Err),
		)
	}
	c.metrics.RecordExternal(c.provider, kind, time.Since(start))
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) summarize(ctx context.Context, content, style string) (*Result, *ExternalError) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &ExternalError{Kind: KindTimeout, Provider: c.provider, Err: fmt.Errorf("outbound rate limit: %w", err)}
		}
	}

	systemPrompt, prompt := buildSummaryPrompt(style, content)
	raw, err := c.gen.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, classify(ctx, c.provider, err)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, malformed(c.provider, errors.New("empty response"))
	}

	summary, tags, err := decodeSummary(raw)
	if err != nil {
		return nil, malformed(c.provider, err)
	}
	return &Result{
		Summary:      summary,
		Tags:         tags,
		TotalWords:   wordcount.Count(content),
		SummaryWords: wordcount.Count(summary),
		Provider:     c.provider,
		Model:        c.model,
	}, nil
}
