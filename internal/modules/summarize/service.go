// Package summarize turns content into a cached, billed and recorded summary.
//
// A request is fingerprinted and looked up in the shared cache. A hit is
// returned as is and is free. A miss calls the external summarizer once,
// stores the result, debits one credit and writes a history entry. Cache and
// history failures never fail a request whose summary was produced; they are
// reported as PersistenceFaults on the Outcome.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/briefly-app/core/internal/config"
	"github.com/briefly-app/core/internal/models"
	"github.com/briefly-app/core/internal/modules/processing/ai"
	"github.com/briefly-app/core/internal/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// wordsPerMinute is the reading speed behind reduceTime.
const wordsPerMinute = 100

// HistoryRecorder persists one entry per billed summarization.
type HistoryRecorder interface {
	Record(ctx context.Context, entry *models.HistoryModel) (string, error)
}

// Document is an uploaded file awaiting extraction.
type Document interface {
	Text(ctx context.Context) (string, error)
	Cleanup() error
}

// Request is a summarization request from a resolved user.
type Request struct {
	Content string
	Style   string
	User    *models.UserModel
}

// Outcome is the result of a successful request.
type Outcome struct {
	Summary     CachedSummary
	Style       string
	Fingerprint string
	Cached      bool
	// Shared is set when the external call was made by a concurrent request.
	Shared    bool
	HistoryID string
	Faults    []PersistenceFault
}

// Options tune the orchestrator.
type Options struct {
	CacheTTL        time.Duration
	ExternalTimeout time.Duration
	MaxContentChars int
	PerUserCache    bool
	DedupeInflight  bool
}

// OptionsFromConfig maps runtime configuration onto Options.
func OptionsFromConfig(cfg *config.AppConfig) Options {
	return Options{
		CacheTTL:        cfg.Summarize.CacheTTL,
		ExternalTimeout: cfg.AI.Timeout,
		MaxContentChars: cfg.Summarize.MaxContentChars,
		PerUserCache:    cfg.Summarize.PerUserCache,
		DedupeInflight:  cfg.Summarize.DedupeInflight,
	}
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Cache      Cache
	Summarizer ai.Summarizer
	Ledger     Ledger
	History    HistoryRecorder
	Logger     *zap.Logger
	Metrics    *metrics.Exporter
}

type Service struct {
	cache      Cache
	summarizer ai.Summarizer
	ledger     Ledger
	history    HistoryRecorder
	opts       Options
	logger     *zap.Logger
	metrics    *metrics.Exporter
	inflight   singleflight.Group
}

func NewService(deps Deps, opts Options) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cache:      deps.Cache,
		summarizer: deps.Summarizer,
		ledger:     deps.Ledger,
		history:    deps.History,
		opts:       opts,
		logger:     logger.Named("Summarize"),
		metrics:    deps.Metrics,
	}
}

// Summarize runs the full request lifecycle for text content.
func (s *Service) Summarize(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	style, ok := ai.ParseStyle(req.Style)
	if !ok {
		style = "unknown"
	}
	out, err := s.summarize(ctx, req)
	s.report(style, out, err, time.Since(start))
	return out, err
}

// SummarizeFile extracts the text of doc and summarizes it. doc is cleaned
// up on every path.
func (s *Service) SummarizeFile(ctx context.Context, user *models.UserModel, doc Document, style string) (*Outcome, error) {
	defer func() {
		if err := doc.Cleanup(); err != nil {
			s.logger.Warn("remove uploaded file", zap.Error(err))
		}
	}()
	if user == nil {
		return nil, ErrUnauthenticated
	}
	if _, ok := ai.ParseStyle(style); !ok {
		return nil, invalidInput("unknown summary type %q", style)
	}
	text, err := doc.Text(ctx)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return s.Summarize(ctx, Request{Content: text, Style: style, User: user})
}

func (s *Service) summarize(ctx context.Context, req Request) (*Outcome, error) {
	if req.User == nil || req.User.ID == "" {
		return nil, ErrUnauthenticated
	}
	style, ok := ai.ParseStyle(req.Style)
	if !ok {
		return nil, invalidInput("unknown summary type %q", req.Style)
	}
	content := Normalize(req.Content)
	if s.opts.MaxContentChars > 0 && utf8.RuneCountInString(content) > s.opts.MaxContentChars {
		return nil, invalidInput("content exceeds %d characters", s.opts.MaxContentChars)
	}
	fp, err := Fingerprint(content, style)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Style: style, Fingerprint: fp}
	cacheFP := fp
	if s.opts.PerUserCache {
		cacheFP = scopedFingerprint(req.User.ID, fp)
	}

	cached, hit, err := s.cache.Get(ctx, cacheFP, style)
	switch {
	case err != nil:
		s.metrics.RecordCache("get", "error")
		s.fault(out, OpCacheRead, err)
	case hit:
		s.metrics.RecordCache("get", "hit")
		out.Summary = *cached
		out.Cached = true
		return out, nil
	default:
		s.metrics.RecordCache("get", "miss")
	}

	res, shared, err := s.callExternal(ctx, content, style, cacheFP)
	if err != nil {
		return nil, err
	}
	out.Shared = shared
	out.Summary = buildSummary(res)

	// The provider has been paid; bookkeeping finishes even if the client
	// goes away.
	persistCtx := context.WithoutCancel(ctx)

	if err := s.cache.Put(persistCtx, cacheFP, style, &out.Summary, s.opts.CacheTTL); err != nil {
		s.metrics.RecordCache("put", "error")
		s.fault(out, OpCacheWrite, err)
	} else {
		s.metrics.RecordCache("put", "ok")
	}

	if err := s.ledger.TryDebit(persistCtx, req.User.ID, req.User.Role); err != nil {
		switch {
		case errors.Is(err, ErrInsufficientCredits):
			return nil, err
		case errors.Is(err, ErrUserNotFound):
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("debit: %w", err)
	}
	s.metrics.RecordDebit()

	id, err := s.history.Record(persistCtx, &models.HistoryModel{
		UserID:       req.User.ID,
		Content:      content,
		Summary:      out.Summary.Summary,
		Tags:         models.NormalizeTags(out.Summary.Tags),
		TotalWords:   out.Summary.TotalWords,
		SummaryWords: out.Summary.SummaryWords,
		Reduction:    out.Summary.Reduction,
		SavedTime:    out.Summary.ReduceTime,
		Style:        style,
		Fingerprint:  fp,
	})
	if err != nil {
		s.fault(out, OpHistoryWrite, err)
	} else {
		out.HistoryID = id
	}
	return out, nil
}

// callExternal makes the single external attempt for this miss. With
// deduplication on, concurrent misses for the same key wait on one call;
// each waiter still honors its own context.
func (s *Service) callExternal(ctx context.Context, content, style, key string) (*ai.Result, bool, error) {
	if !s.opts.DedupeInflight {
		callCtx, cancel := s.externalContext(ctx)
		defer cancel()
		res, err := s.summarizer.Summarize(callCtx, content, style)
		if err != nil {
			return nil, false, asExternal(err)
		}
		return res, false, validateResult(res)
	}

	ch := s.inflight.DoChan(style+":"+key, func() (interface{}, error) {
		callCtx, cancel := s.externalContext(context.WithoutCancel(ctx))
		defer cancel()
		return s.summarizer.Summarize(callCtx, content, style)
	})
	select {
	case <-ctx.Done():
		return nil, false, &ai.ExternalError{Kind: ai.KindTimeout, Err: ctx.Err()}
	case r := <-ch:
		if r.Shared {
			s.metrics.RecordInflightShared()
		}
		if r.Err != nil {
			return nil, r.Shared, asExternal(r.Err)
		}
		res, _ := r.Val.(*ai.Result)
		return res, r.Shared, validateResult(res)
	}
}

func (s *Service) externalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.ExternalTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.ExternalTimeout)
}

func asExternal(err error) error {
	var ext *ai.ExternalError
	if errors.As(err, &ext) {
		return ext
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ai.ExternalError{Kind: ai.KindTimeout, Err: err}
	}
	return &ai.ExternalError{Kind: ai.KindUpstream, Err: err}
}

func validateResult(res *ai.Result) error {
	if res == nil || strings.TrimSpace(res.Summary) == "" {
		return &ai.ExternalError{Kind: ai.KindMalformed, Err: errors.New("empty summary")}
	}
	return nil
}

func buildSummary(res *ai.Result) CachedSummary {
	reduction, reduceTime := DerivedMetrics(res.TotalWords, res.SummaryWords)
	tags := res.Tags
	if tags == nil {
		tags = []string{}
	}
	return CachedSummary{
		Summary:      res.Summary,
		Tags:         append([]string(nil), tags...),
		TotalWords:   res.TotalWords,
		SummaryWords: res.SummaryWords,
		Reduction:    reduction,
		ReduceTime:   reduceTime,
	}
}

// DerivedMetrics returns the percentage of words removed and the reading
// minutes saved. Both are rounded half away from zero and never negative;
// an empty source yields zeros.
func DerivedMetrics(totalWords, summaryWords int) (reduction, reduceTime int) {
	if totalWords <= 0 {
		return 0, 0
	}
	r := math.Round((1 - float64(summaryWords)/float64(totalWords)) * 100)
	t := math.Round(float64(totalWords-summaryWords) / wordsPerMinute)
	return int(math.Max(r, 0)), int(math.Max(t, 0))
}

func (s *Service) fault(out *Outcome, op string, err error) {
	out.Faults = append(out.Faults, PersistenceFault{Op: op, Err: err})
	s.metrics.RecordPersistenceFault(op)
	s.logger.Warn("persistence fault",
		zap.String("op", op),
		zap.String("fingerprint", out.Fingerprint),
		zap.Error(err),
	)
}

func (s *Service) report(style string, out *Outcome, err error, took time.Duration) {
	outcome := outcomeLabel(out, err)
	cached := out != nil && out.Cached
	s.metrics.RecordSummarize(style, outcome, cached, took)

	fields := []zap.Field{
		zap.String("style", style),
		zap.String("outcome", outcome),
		zap.Duration("took", took),
	}
	if out != nil {
		fields = append(fields, zap.String("fingerprint", out.Fingerprint), zap.Int("faults", len(out.Faults)))
	}
	switch {
	case err == nil:
		s.logger.Info("summarize", fields...)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrInsufficientCredits):
		s.logger.Info("summarize rejected", append(fields, zap.Error(err))...)
	default:
		s.logger.Warn("summarize failed", append(fields, zap.Error(err))...)
	}
}

func outcomeLabel(out *Outcome, err error) string {
	switch {
	case err == nil && out.Cached:
		return "hit"
	case err == nil:
		return "miss"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrInsufficientCredits):
		return "insufficient_credits"
	}
	if kind, ok := ai.KindOf(err); ok {
		return "external_" + string(kind)
	}
	return "error"
}
