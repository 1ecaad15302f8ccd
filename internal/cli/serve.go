package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/driftdetect/backend/internal/api"
	"github.com/driftdetect/backend/internal/metrics"
	"github.com/driftdetect/backend/internal/runner"
	"github.com/driftdetect/backend/pkg/logger"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var runOnStart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run detectors on the configured schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(root, false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			logger.Info("Starting drift detection server")

			catalog, err := loadCatalog("", cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := openServices(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			metrics.Init()

			r := runner.New(svc.sessionFactory(), cfg.Detectors.Concurrency, svc.sinks(cfg)...)

			scheduler := runner.NewScheduler(r, catalog, cfg.Detectors.Schedule, logger.GetLogger())
			if err := scheduler.Start(); err != nil {
				return err
			}
			defer scheduler.Stop()

			if runOnStart {
				go scheduler.Sweep(ctx)
			}

			opts := api.Options{
				Catalog:            catalog,
				Runner:             r,
				ReadTimeout:        time.Duration(cfg.Server.ReadTimeout) * time.Second,
				WriteTimeout:       time.Duration(cfg.Server.WriteTimeout) * time.Second,
				RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
				Development:        cfg.Server.IsDevelopment(),
			}
			if svc.store != nil {
				opts.History = svc.store
			}
			if svc.cache != nil {
				opts.LastRuns = svc.cache
			}
			app := api.NewApp(opts)

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			logger.Info("Server starting", zap.String("address", addr))

			errCh := make(chan error, 1)
			go func() {
				errCh <- app.Listen(addr)
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			logger.Info("Server shutting down gracefully...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				logger.Warn("Server shutdown incomplete", zap.Error(err))
			}
			logger.Info("Server stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "Run every detector once at startup")

	return cmd
}
