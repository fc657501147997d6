package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/briefly-app/core/internal/config"
	"github.com/briefly-app/core/internal/database"
	"github.com/briefly-app/core/internal/modules/history"
	"github.com/briefly-app/core/internal/modules/processing/ai"
	"github.com/briefly-app/core/internal/modules/storage/upload"
	"github.com/briefly-app/core/internal/modules/summarize"
	pkgcron "github.com/briefly-app/core/internal/pkg/cron"
	"github.com/briefly-app/core/internal/pkg/metrics"
	pkgredis "github.com/briefly-app/core/internal/pkg/redis"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const closeTimeout = 5 * time.Second

// App holds all application dependencies.
type App struct {
	cfg     *config.AppConfig
	router  *gin.Engine
	db      *gorm.DB
	rc      *pkgredis.Client
	logger  *zap.Logger
	metrics *metrics.Exporter
	sched   *pkgcron.Scheduler
	cancel  context.CancelFunc

	history     *history.Service
	historyPing func(context.Context) error
	uploads     *upload.Store
	ledger      *summarize.CreditLedger
	summarizer  *summarize.Service
	aiClient    *ai.Client

	closers []func(context.Context) error
}

// New initializes the application: DB → Redis → stores → services → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := applyRuntimeSettings(cfg, logger); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, func(context.Context) error { return database.Close(db) })

	if err := a.connectRedis(); err != nil {
		return nil, err
	}

	if cfg.Metrics.Enable {
		a.metrics = metrics.New(metrics.DefaultConfig())
	}

	if err := a.buildServices(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.sched = pkgcron.New(logger)
	if err := a.registerCronJobs(); err != nil {
		cancel()
		return nil, err
	}
	a.sched.Start(ctx)

	a.router = newRouter(cfg, logger, a.metrics)
	a.registerRoutes()

	ok = true
	return a, nil
}

// connectRedis dials Redis. Only the redis cache backend requires it; with
// the memory backend a failure disables rate limiting and idempotency keys.
func (a *App) connectRedis() error {
	rc, err := pkgredis.Connect(a.cfg.RedisURL)
	if err != nil {
		if a.cfg.Summarize.CacheBackend == config.CacheBackendRedis {
			return fmt.Errorf("redis: %w", err)
		}
		a.logger.Warn("redis unavailable, rate limiting and idempotency disabled", zap.Error(err))
		return nil
	}
	a.rc = rc
	a.closers = append(a.closers, func(context.Context) error { return rc.Close() })
	return nil
}

func (a *App) buildServices() error {
	cfg := a.cfg

	store, err := a.openHistoryStore()
	if err != nil {
		return err
	}
	a.history = history.NewService(store, cfg.Credits.PrivilegedRoles)

	aiClient, err := ai.New(cfg.AI, a.logger, a.metrics)
	if err != nil {
		return fmt.Errorf("ai: %w", err)
	}
	a.aiClient = aiClient
	a.closers = append(a.closers, func(context.Context) error { return aiClient.Close() })

	var cache summarize.Cache
	switch cfg.Summarize.CacheBackend {
	case config.CacheBackendMemory:
		cache = summarize.NewMemoryCache(0, cfg.Summarize.CacheTTL)
	default:
		cache = summarize.NewRedisCache(a.rc, cfg.Summarize.CachePrefix, cfg.Summarize.CacheTimeout)
	}

	a.ledger = summarize.NewCreditLedger(a.db, cfg.Credits.PrivilegedRoles)
	a.summarizer = summarize.NewService(summarize.Deps{
		Cache:      cache,
		Summarizer: aiClient,
		Ledger:     a.ledger,
		History:    a.history,
		Logger:     a.logger,
		Metrics:    a.metrics,
	}, summarize.OptionsFromConfig(cfg))

	a.uploads = upload.NewStore(cfg.UploadDir(), cfg.Summarize.UploadMaxMB, a.logger)
	return nil
}

func (a *App) openHistoryStore() (history.Store, error) {
	if a.cfg.History.Backend != config.HistoryBackendMongo {
		a.historyPing = func(ctx context.Context) error { return pingDB(ctx, a.db) }
		return history.NewGormStore(a.db), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := history.NewMongoStore(ctx, a.cfg.History.MongoURI, a.cfg.History.MongoDatabase)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}
	a.historyPing = store.Ping
	a.closers = append(a.closers, store.Close)
	return store, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background jobs and releases connections.
func (a *App) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.sched != nil {
		a.sched.Wait()
	}
	a.close()
}

func (a *App) close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
