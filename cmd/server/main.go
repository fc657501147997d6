package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briefly-app/core/internal/app"
	"github.com/briefly-app/core/internal/config"
	"github.com/briefly-app/core/internal/database"
	"github.com/briefly-app/core/internal/modules/auth/auth"
	"github.com/briefly-app/core/internal/pkg/nativelog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var configPath string

var rootCmd = &cobra.Command{
	Use:           "briefly",
	Short:         "Content summarization API with shared caching and credit metering.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default)",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := database.EnsureSchema(cfg); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migration complete")
		return nil
	},
}

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create the configured admin account if it does not exist",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		db, err := database.Connect(cfg, true)
		if err != nil {
			return err
		}
		defer database.Close(db)

		created, err := auth.NewService(db, nil, 0).
			SeedAdmin(cmd.Context(), cfg.Admin.FullName, cfg.Admin.Email, cfg.Admin.Password)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created\n", cfg.Admin.Email)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s already exists\n", cfg.Admin.Email)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file (default "+config.DefaultConfigPath+")")
	rootCmd.AddCommand(serveCmd, migrateCmd, seedAdminCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := nativelog.NewZapLogger(cfg.LogDir(), cfg.IsDev())
	if err != nil {
		logger, _ = zap.NewProduction()
		logger.Warn("native log pipeline unavailable, fallback to zap production logger", zap.Error(err))
	}
	defer logger.Sync()

	application, err := app.New(logger, cfg)
	if err != nil {
		logger.Error("failed to initialize app", zap.Error(err))
		return err
	}

	srv := &http.Server{
		Addr:              application.Addr(),
		Handler:           application.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		application.Shutdown()
		return err
	}

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := srv.Shutdown(ctx)
	application.Shutdown()
	if shutdownErr != nil {
		logger.Error("forced shutdown", zap.Error(shutdownErr))
		return shutdownErr
	}
	logger.Info("server exited")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
