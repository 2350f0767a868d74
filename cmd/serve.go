package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Dipuraj1New/careerireland-portals/internal/handler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the submission engine with its HTTP API and retry scheduler.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}

		h := handler.New(a.orchestrator, a.submissions, a.submissions, cfg.Retry.MaxAttempts, a.logger)
		router := handler.NewRouter(h, a.pool, a.metrics.Handler(), a.logger)

		server := &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			return a.scheduler.Start(gctx, a.engine.RunScheduledTask)
		})

		g.Go(func() error {
			// Re-arm retries persisted before the last shutdown.
			if err := a.engine.ResumeScheduled(gctx, cfg.Retry.ResumeScanLimit); err != nil {
				a.logger.Warn("Failed to resume persisted retry schedules.", zap.Error(err))
			}
			return nil
		})

		g.Go(func() error {
			a.logger.Info("HTTP server listening.", zap.String("addr", cfg.Server.Addr))
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})

		err = g.Wait()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		a.close(shutdownCtx)

		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		a.logger.Info("Portal engine stopped.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
