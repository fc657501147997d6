package summarize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/briefly-app/core/internal/models"
	"github.com/briefly-app/core/internal/modules/processing/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeSummarizer struct {
	calls   atomic.Int32
	err     error
	result  *ai.Result
	started chan struct{}
	release chan struct{}
	block   bool
}

func (f *fakeSummarizer) Summarize(ctx context.Context, content, style string) (*ai.Result, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.block {
		<-ctx.Done()
		return nil, &ai.ExternalError{Kind: ai.KindTimeout, Provider: "fake", Err: ctx.Err()}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &ai.Result{
		Summary:      "summary of " + content,
		Tags:         []string{"alpha", "beta"},
		TotalWords:   1000,
		SummaryWords: 100,
		Provider:     "fake",
	}, nil
}

type faultyCache struct {
	Cache
	getErr error
	putErr error
}

func (c *faultyCache) Get(ctx context.Context, fp, style string) (*CachedSummary, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	return c.Cache.Get(ctx, fp, style)
}

func (c *faultyCache) Put(ctx context.Context, fp, style string, v *CachedSummary, ttl time.Duration) error {
	if c.putErr != nil {
		return c.putErr
	}
	return c.Cache.Put(ctx, fp, style, v, ttl)
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []models.HistoryModel
	err     error
}

func (h *fakeHistory) Record(_ context.Context, entry *models.HistoryModel) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return "", h.err
	}
	id := fmt.Sprintf("h%d", len(h.entries)+1)
	h.entries = append(h.entries, *entry)
	return id, nil
}

func (h *fakeHistory) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

type harness struct {
	db      *gorm.DB
	svc     *Service
	sum     *fakeSummarizer
	cache   *faultyCache
	ledger  *CreditLedger
	history *fakeHistory
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	db := openTestDB(t)
	h := &harness{
		db:      db,
		sum:     &fakeSummarizer{},
		cache:   &faultyCache{Cache: NewMemoryCache(100, time.Hour)},
		ledger:  NewCreditLedger(db, []string{"admin", "editor"}),
		history: &fakeHistory{},
	}
	h.svc = NewService(Deps{
		Cache:      h.cache,
		Summarizer: h.sum,
		Ledger:     h.ledger,
		History:    h.history,
	}, opts)
	return h
}

func defaultOptions() Options {
	return Options{
		CacheTTL:        24 * time.Hour,
		ExternalTimeout: time.Second,
		MaxContentChars: 1000,
		DedupeInflight:  true,
	}
}

func (h *harness) balance(t *testing.T, user *models.UserModel) int {
	t.Helper()
	b, err := h.ledger.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	return b
}

func TestSummarizeCacheRoundTrip(t *testing.T) {
	h := newHarness(t, defaultOptions())
	user := createUser(t, h.db, "u@example.com", models.RoleUser, 5)
	ctx := context.Background()

	first, err := h.svc.Summarize(ctx, Request{Content: "Some article text.", Style: "concise", User: user})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Empty(t, first.Faults)
	assert.Equal(t, "h1", first.HistoryID)

	second, err := h.svc.Summarize(ctx, Request{Content: "  Some article text.\r\n", Style: "CONCISE", User: user})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Summary.Summary, second.Summary.Summary)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	assert.EqualValues(t, 1, h.sum.calls.Load())
	assert.Equal(t, 4, h.balance(t, user))
	assert.Equal(t, 1, h.history.count())
}

func TestSummarizeStyleIsPartOfKey(t *testing.T) {
	h := newHarness(t, defaultOptions())
	user := createUser(t, h.db, "u@example.com", models.RoleUser, 5)
	ctx := context.Background()

	for _, style := range []string{"concise", "balanced", ""} {
		_, err := h.svc.Summarize(ctx, Request{Content: "text", Style: style, User: user})
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, h.sum.calls.Load())
}

func TestSummarizeCreditConservation(t *testing.T) {
	h := newHarness(t, defaultOptions())
	user := createUser(t, h.db, "u@example.com", models.RoleUser, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out, err := h.svc.Summarize(ctx, Request{Content: fmt.Sprintf("document %d", i), User: user})
		require.NoError(t, err)
		assert.False(t, out.Cached)
	}
	assert.Zero(t, h.balance(t, user))

	out, err := h.svc.Summarize(ctx, Request{Content: "document 3", User: user})
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Nil(t, out)
	assert.Zero(t, h.balance(t, user))
	assert.Equal(t, 3, h.history.count())

	// The summary was produced before the debit failed, so it is cached.
	cached, hit, err := h.cache.Get(ctx, mustFingerprint(t, "document 3", "balanced"), "balanced")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.NotEmpty(t, cached.Summary)
}

func TestSummarizeZeroBalanceStillCallsExternal(t *testing.T) {
	h := newHarness(t, defaultOptions())
	user := createUser(t, h.db, "broke@example.com", models.RoleUser, 0)

	_, err := h.svc.Summarize(context.Background(), Request{Content: "text", User: user})
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.EqualValues(t, 1, h.sum.calls.Load())
	assert.Zero(t, h.history.count())
}

func TestSummarizeCacheHitIsFree(t *testing.T) {
	h := newHarness(t, defaultOptions())
	author := createUser(t, h.db, "a@example.com", models.RoleUser, 1)
	reader := createUser(t, h.db, "b@example.com", models.RoleUser, 0)
	ctx := context.Background()

	_, err := h.svc.Summarize(ctx, Request{Content: "shared text", User: author})
	require.NoError(t, err)

	out, err := h.svc.Summarize(ctx, Request{Content: "shared text", User: reader})
	require.NoError(t, err)
	assert.True(t, out.Cached)
	assert.Zero(t, h.balance(t, reader))
	assert.Equal(t, 1, h.history.count())
}

func TestSummarizePerUserCache(t *testing.T) {
	opts := defaultOptions()
	opts.PerUserCache = true
	h := newHarness(t, opts)
	a := createUser(t, h.db, "a@example.com", models.RoleUser, 2)
	b := createUser(t, h.db, "b@example.com", models.RoleUser, 2)
	ctx := context.Background()

	_, err := h.svc.Summarize(ctx, Request{Content: "shared text", User: a})
	require.NoError(t, err)
	out, err := h.svc.Summarize(ctx, Request{Content: "shared text", User: b})
	require.NoError(t, err)
	assert.False(t, out.Cached)

	out, err = h.svc.Summarize(ctx, Request{Content: "shared text", User: a})
	require.NoError(t, err)
	assert.True(t, out.Cached)
	assert.EqualValues(t, 2, h.sum.calls.Load())
}

func TestSummarizePrivilegedExemption(t *testing.T) {
	h := newHarness(t, defaultOptions())
	admin := createUser(t, h.db, "admin@example.com", models.RoleAdmin, 0)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		out, err := h.svc.Summarize(ctx, Request{Content: fmt.Sprintf("doc %d", i), User: admin})
		require.NoError(t, err)
		assert.False(t, out.Cached)
	}
	assert.Zero(t, h.balance(t, admin))
	assert.Equal(t, 4, h.history.count())
}

func TestSummarizeNoChargeOnExternalFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeSummarizer)
		kind  ai.ErrorKind
	}{
		{
			name:  "timeout",
			setup: func(f *fakeSummarizer) { f.block = true },
			kind:  ai.KindTimeout,
		},
		{
			name: "malformed",
			setup: func(f *fakeSummarizer) {
				f.err = &ai.ExternalError{Kind: ai.KindMalformed, Provider: "fake", Err: errors.New("no json")}
			},
			kind: ai.KindMalformed,
		},
		{
			name:  "untyped error",
			setup: func(f *fakeSummarizer) { f.err = errors.New("boom") },
			kind:  ai.KindUpstream,
		},
		{
			name:  "empty summary",
			setup: func(f *fakeSummarizer) { f.result = &ai.Result{Summary: "  "} },
			kind:  ai.KindMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOptions()
			opts.ExternalTimeout = 20 * time.Millisecond
			h := newHarness(t, opts)
			tt.setup(h.sum)
			user := createUser(t, h.db, "u@example.com", models.RoleUser, 3)

			out, err := h.svc.Summarize(context.Background(), Request{Content: "text", User: user})
			require.Error(t, err)
			assert.Nil(t, out)
			kind, ok := ai.KindOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, kind)

			assert.Equal(t, 3, h.balance(t, user))
			assert.Zero(t, h.history.count())
			_, hit, _ := h.cache.Get(context.Background(), mustFingerprint(t, "text", "balanced"), "balanced")
			assert.False(t, hit)
		})
	}
}

func TestSummarizeDerivedMetrics(t *testing.T) {
	h := newHarness(t, defaultOptions())
	user := createUser(t, h.db, "u@example.com", models.RoleUser, 1)

	out, err := h.svc.Summarize(context.Background(), Request{Content: "text", User: user})
	require.NoError(t, err)
	assert.Equal(t, 1000, out.Summary.TotalWords)
	assert.Equal(t, 100, out.Summary.SummaryWords)
	assert.Equal(t, 90, out.Summary.Reduction)
	assert.Equal(t, 9, out.Summary.ReduceTime)
}

func TestDerivedMetrics(t *testing.T) {
	tests := []struct {
		total, summary     int
		reduction, minutes int
	}{
		{1000, 100, 90, 9},
		{150, 0, 100, 2},
		{3, 1, 67, 0},
		{10, 20, 0, 0},
		{0, 5, 0, 0},
	}
	for _, tt := range tests {
		r, m := DerivedMetrics(tt.total, tt.summary)
		assert.Equal(t, tt.reduction, r, "reduction %d/%d", tt.summary, tt.total)
		assert.Equal(t, tt.minutes, m, "minutes %d/%d", tt.summary, tt.total)
	}
}

func TestSummarizeConcurrentDebit(t *testing.T) {
	h := newHarness(t, defaultOptions())
	user := createUser(t, h.db, "u@example.com", models.RoleUser, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.Summarize(context.Background(), Request{Content: fmt.Sprintf("parallel %d", i), User: user})
		}(i)
	}
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientCredits):
			rejected++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Zero(t, h.balance(t, user))
	assert.Equal(t, 1, h.history.count())
}

func TestSummarizeHistoryCompleteness(t *testing.T) {
	h := newHarness(t, defaultOptions())
	user := createUser(t, h.db, "u@example.com", models.RoleUser, 5)
	ctx := context.Background()

	out, err := h.svc.Summarize(ctx, Request{Content: "  History content  ", Style: "comprehensive", User: user})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := h.svc.Summarize(ctx, Request{Content: "History content", Style: "comprehensive", User: user})
		require.NoError(t, err)
	}

	require.Equal(t, 1, h.history.count())
	entry := h.history.entries[0]
	assert.Equal(t, user.ID, entry.UserID)
	assert.Equal(t, "History content", entry.Content)
	assert.Equal(t, out.Summary.Summary, entry.Summary)
	assert.Equal(t, models.StringArray{"alpha", "beta"}, entry.Tags)
	assert.Equal(t, 1000, entry.TotalWords)
	assert.Equal(t, 100, entry.SummaryWords)
	assert.Equal(t, 90, entry.Reduction)
	assert.Equal(t, 9, entry.SavedTime)
	assert.Equal(t, "comprehensive", entry.Style)
	assert.Equal(t, out.Fingerprint, entry.Fingerprint)
}

func TestSummarizePersistenceFaults(t *testing.T) {
	t.Run("cache read", func(t *testing.T) {
		h := newHarness(t, defaultOptions())
		h.cache.getErr = errors.New("redis down")
		user := createUser(t, h.db, "u@example.com", models.RoleUser, 2)

		out, err := h.svc.Summarize(context.Background(), Request{Content: "text", User: user})
		require.NoError(t, err)
		require.Len(t, out.Faults, 1)
		assert.Equal(t, OpCacheRead, out.Faults[0].Op)
		assert.EqualValues(t, 1, h.sum.calls.Load())
		assert.Equal(t, 1, h.balance(t, user))
	})

	t.Run("cache write", func(t *testing.T) {
		h := newHarness(t, defaultOptions())
		h.cache.putErr = errors.New("redis down")
		user := createUser(t, h.db, "u@example.com", models.RoleUser, 2)

		out, err := h.svc.Summarize(context.Background(), Request{Content: "text", User: user})
		require.NoError(t, err)
		require.Len(t, out.Faults, 1)
		assert.Equal(t, OpCacheWrite, out.Faults[0].Op)
		assert.Equal(t, 1, h.balance(t, user))
		assert.Equal(t, 1, h.history.count())
	})

	t.Run("history write", func(t *testing.T) {
		h := newHarness(t, defaultOptions())
		h.history.err = errors.New("db down")
		user := createUser(t, h.db, "u@example.com", models.RoleUser, 2)

		out, err := h.svc.Summarize(context.Background(), Request{Content: "text", User: user})
		require.NoError(t, err)
		require.Len(t, out.Faults, 1)
		assert.Equal(t, OpHistoryWrite, out.Faults[0].Op)
		assert.ErrorContains(t, out.Faults[0], "db down")
		assert.Empty(t, out.HistoryID)
		assert.NotEmpty(t, out.Summary.Summary)
		assert.Equal(t, 1, h.balance(t, user))
	})
}

func TestSummarizeRejectsInput(t *testing.T) {
	h := newHarness(t, defaultOptions())
	user := createUser(t, h.db, "u@example.com", models.RoleUser, 5)
	ctx := context.Background()

	_, err := h.svc.Summarize(ctx, Request{Content: "text"})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = h.svc.Summarize(ctx, Request{Content: " \n ", User: user})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = h.svc.Summarize(ctx, Request{Content: "text", Style: "haiku", User: user})
	assert.ErrorIs(t, err, ErrInvalidInput)

	long := make([]rune, 1001)
	for i := range long {
		long[i] = 'é'
	}
	_, err = h.svc.Summarize(ctx, Request{Content: string(long), User: user})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Zero(t, h.sum.calls.Load())
	assert.Equal(t, 5, h.balance(t, user))
}

func TestSummarizeDedupesInflight(t *testing.T) {
	h := newHarness(t, defaultOptions())
	h.sum.started = make(chan struct{}, 10)
	h.sum.release = make(chan struct{})
	user := createUser(t, h.db, "u@example.com", models.RoleUser, 10)

	const callers = 3
	var wg sync.WaitGroup
	outs := make([]*Outcome, callers)
	errs := make([]error, callers)
	run := func(i int) {
		defer wg.Done()
		outs[i], errs[i] = h.svc.Summarize(context.Background(), Request{Content: "hot document", User: user})
	}

	wg.Add(1)
	go run(0)
	<-h.sum.started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go run(i)
	}
	time.Sleep(100 * time.Millisecond)
	close(h.sum.release)
	wg.Wait()

	assert.EqualValues(t, 1, h.sum.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.False(t, outs[i].Cached)
		assert.Equal(t, outs[0].Summary, outs[i].Summary)
	}
	assert.Equal(t, 10-callers, h.balance(t, user))
	assert.Equal(t, callers, h.history.count())
}

func TestSummarizeWaiterDeadlineLeavesNoTrace(t *testing.T) {
	h := newHarness(t, defaultOptions())
	h.sum.started = make(chan struct{}, 10)
	h.sum.release = make(chan struct{})
	leader := createUser(t, h.db, "a@example.com", models.RoleUser, 3)
	waiter := createUser(t, h.db, "b@example.com", models.RoleUser, 3)

	leaderErr := make(chan error, 1)
	go func() {
		_, err := h.svc.Summarize(context.Background(), Request{Content: "slow document", User: leader})
		leaderErr <- err
	}()
	<-h.sum.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	out, err := h.svc.Summarize(ctx, Request{Content: "slow document", User: waiter})
	assert.Nil(t, out)
	var ext *ai.ExternalError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, ai.KindTimeout, ext.Kind)
	assert.Equal(t, 3, h.balance(t, waiter))
	assert.Zero(t, h.history.count())

	close(h.sum.release)
	require.NoError(t, <-leaderErr)

	assert.EqualValues(t, 1, h.sum.calls.Load())
	assert.Equal(t, 3, h.balance(t, waiter))
	assert.Equal(t, 2, h.balance(t, leader))
	require.Equal(t, 1, h.history.count())
	assert.Equal(t, leader.ID, h.history.entries[0].UserID)
}

func TestSummarizeDeletedUser(t *testing.T) {
	h := newHarness(t, defaultOptions())
	user := createUser(t, h.db, "gone@example.com", models.RoleUser, 2)
	require.NoError(t, h.db.Delete(user).Error)

	out, err := h.svc.Summarize(context.Background(), Request{Content: "orphaned request", User: user})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NotErrorIs(t, err, ErrInsufficientCredits)
	assert.Zero(t, h.history.count())
}

func TestSummarizeWithoutDedupe(t *testing.T) {
	opts := defaultOptions()
	opts.DedupeInflight = false
	h := newHarness(t, opts)
	user := createUser(t, h.db, "u@example.com", models.RoleUser, 2)

	out, err := h.svc.Summarize(context.Background(), Request{Content: "text", User: user})
	require.NoError(t, err)
	assert.False(t, out.Shared)
	assert.EqualValues(t, 1, h.sum.calls.Load())
}

type fakeDocument struct {
	text    string
	err     error
	cleaned atomic.Int32
}

func (d *fakeDocument) Text(context.Context) (string, error) { return d.text, d.err }

func (d *fakeDocument) Cleanup() error {
	d.cleaned.Add(1)
	return nil
}

func TestSummarizeFileCleansUp(t *testing.T) {
	h := newHarness(t, defaultOptions())
	user := createUser(t, h.db, "u@example.com", models.RoleUser, 5)
	ctx := context.Background()

	ok := &fakeDocument{text: "file body"}
	out, err := h.svc.SummarizeFile(ctx, user, ok, "concise")
	require.NoError(t, err)
	assert.Equal(t, "summary of file body", out.Summary.Summary)
	assert.EqualValues(t, 1, ok.cleaned.Load())

	broken := &fakeDocument{err: errors.New("bad zip")}
	_, err = h.svc.SummarizeFile(ctx, user, broken, "concise")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorContains(t, err, "bad zip")
	assert.EqualValues(t, 1, broken.cleaned.Load())

	badStyle := &fakeDocument{text: "file body"}
	_, err = h.svc.SummarizeFile(ctx, user, badStyle, "limerick")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.EqualValues(t, 1, badStyle.cleaned.Load())

	anon := &fakeDocument{text: "file body"}
	_, err = h.svc.SummarizeFile(ctx, nil, anon, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.EqualValues(t, 1, anon.cleaned.Load())

	h.sum.err = &ai.ExternalError{Kind: ai.KindUpstream, Err: errors.New("502")}
	failing := &fakeDocument{text: "another body"}
	_, err = h.svc.SummarizeFile(ctx, user, failing, "")
	require.Error(t, err)
	assert.EqualValues(t, 1, failing.cleaned.Load())
}

func mustFingerprint(t *testing.T, content, style string) string {
	t.Helper()
	fp, err := Fingerprint(content, style)
	require.NoError(t, err)
	return fp
}
