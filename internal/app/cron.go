package app

import (
	"context"
	"time"

	"github.com/briefly-app/core/internal/modules/history"
	pkgcron "github.com/briefly-app/core/internal/pkg/cron"
	sessionpkg "github.com/briefly-app/core/internal/pkg/session"
	"go.uber.org/zap"
)

const (
	uploadSweepEvery  = time.Hour
	uploadMaxAge      = time.Hour
	sessionPurgeEvery = 24 * time.Hour
	sessionRetention  = 7 * 24 * time.Hour
)

// registerCronJobs registers all scheduled background jobs.
func (a *App) registerCronJobs() error {
	cronLogger := a.logger.Named("CronService")

	a.sched.Register(pkgcron.Job{
		Name:        "sweep_uploads",
		Description: "remove temporary uploads left behind by crashed requests",
		Interval:    uploadSweepEvery,
		RunOnStart:  true,
		Fn: func(ctx context.Context) error {
			n, err := a.uploads.SweepOrphans(uploadMaxAge)
			if err != nil {
				cronLogger.Warn("upload sweep failed", zap.Error(err))
				return err
			}
			if n > 0 {
				cronLogger.Info("upload sweep finished", zap.Int("removed", n))
			}
			return nil
		},
	})

	a.sched.Register(pkgcron.Job{
		Name:        "purge_sessions",
		Description: "delete expired and revoked sessions",
		Interval:    sessionPurgeEvery,
		Fn: func(ctx context.Context) error {
			n, err := sessionpkg.PurgeExpired(ctx, a.db, time.Now().Add(-sessionRetention))
			if err != nil {
				cronLogger.Warn("session purge failed", zap.Error(err))
				return err
			}
			cronLogger.Info("session purge finished", zap.Int64("removed", n))
			return nil
		},
	})

	if a.cfg.Export.Enable {
		client, err := history.NewS3Client(a.cfg.Export)
		if err != nil {
			return err
		}
		exporter := history.NewExporter(a.history.Store(), client, a.cfg.Export, a.logger)
		a.sched.Register(pkgcron.Job{
			Name:        "export_history",
			Description: "upload the last complete history window to object storage",
			Interval:    a.cfg.Export.Interval,
			Fn:          exporter.Run,
		})
	}
	return nil
}
