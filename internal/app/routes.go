package app

import (
	"context"

	"github.com/briefly-app/core/internal/config"
	"github.com/briefly-app/core/internal/middleware"
	"github.com/briefly-app/core/internal/modules/auth/auth"
	"github.com/briefly-app/core/internal/modules/auth/user"
	"github.com/briefly-app/core/internal/modules/history"
	"github.com/briefly-app/core/internal/modules/summarize"
	"github.com/briefly-app/core/internal/modules/system/core/health"
	"github.com/briefly-app/core/internal/pkg/metrics"
	"github.com/briefly-app/core/internal/pkg/response"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const apiPrefix = "/api/v1"

func newRouter(cfg *config.AppConfig, logger *zap.Logger, m *metrics.Exporter) *gin.Engine {
	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg)))
	router.Use(m.Middleware())

	router.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	router.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})
	return router
}

func corsConfig(cfg *config.AppConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.IdempotenceHeader},
		ExposeHeaders:    []string{"Content-Length", "X-Summary-Cache", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		patterns := cfg.AllowedOrigins
		c.AllowOriginFunc = func(origin string) bool { return originAllowed(patterns, origin) }
	} else {
		c.AllowOriginFunc = func(string) bool { return true }
	}
	return c
}

func (a *App) registerRoutes() {
	r := a.router
	cfg := a.cfg
	authMW := middleware.Auth(a.db)
	prefix := cfg.Summarize.CachePrefix

	if cfg.Metrics.Enable && a.metrics != nil {
		r.GET(cfg.Metrics.Path, gin.WrapH(a.metrics.Handler()))
	}

	api := r.Group(apiPrefix)
	api.GET("", func(c *gin.Context) {
		response.OK(c, gin.H{"name": "briefly", "version": "1.0.0"})
	})

	health.RegisterRoutes(api, a.healthChecks(), a.sched, authMW)

	auth.NewHandler(auth.NewService(a.db, a.history, cfg.Credits.Default)).
		RegisterRoutes(api, authMW)
	user.NewHandler(user.NewService(a.db, a.ledger)).
		RegisterRoutes(api, authMW)
	history.NewHandler(a.history).RegisterRoutes(api, authMW)

	// Auth runs first so the limiter keys on the user id.
	summarize.NewHandler(a.summarizer, a.uploads).RegisterRoutes(api,
		authMW,
		middleware.RateLimit(a.rc, prefix, cfg.RateLimit.PerMinute, a.logger),
		middleware.Idempotence(a.rc, prefix, a.logger),
	)
}

func (a *App) healthChecks() health.Checks {
	checks := health.Checks{
		"database": func(ctx context.Context) error { return pingDB(ctx, a.db) },
	}
	if a.cfg.History.Backend == config.HistoryBackendMongo {
		checks["history"] = a.historyPing
	}
	if a.rc != nil {
		checks["cache"] = a.rc.Ping
	}
	return checks
}
