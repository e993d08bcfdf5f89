package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/alttext-service/internal/delivery/http/handler"
	"github.com/user/alttext-service/internal/delivery/http/router"
	"github.com/user/alttext-service/internal/usecase"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var noPreview bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled change log prune",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), appOptions{preview: !noPreview}, func(a *app) error {
				return serve(cmd.Context(), a)
			})
		},
	}
	cmd.Flags().BoolVar(&noPreview, "no-preview", false, "Disable the headless browser used by /api/preview")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	deps := handler.Deps{
		Renderer:  a.renderer,
		Documents: a.documents,
		Bulk:      a.bulk,
		ChangeLog: a.changelog,
		Health:    a.health,
	}
	if a.previewer != nil {
		deps.Previewer = a.previewer
	}
	apiHandler := handler.NewHandler(deps, a.logger)

	server := &http.Server{
		Addr:         ":" + a.cfg.ServerPort,
		Handler:      router.New(apiHandler, a.metrics, a.registry, a.logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	pruneCtx, stopPrune := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPrune()
	go runPruner(pruneCtx, a.changelog, a.cfg.PruneInterval(), a.logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	a.logger.Info("server started", zap.String("port", a.cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serverErr:
		if ok {
			a.logger.Error("could not start server", zap.Error(err))
			return err
		}
		return nil
	case <-quit:
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server...")
	stopPrune()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server forced to shutdown", zap.Error(err))
		return err
	}
	a.logger.Info("server exiting")
	return nil
}

// runPruner deletes expired change log entries once at startup and then on
// every tick until ctx is done. A zero interval disables scheduling.
func runPruner(ctx context.Context, changelog *usecase.ChangeLog, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		logger.Info("scheduled change log prune disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		deleted, err := changelog.Prune(ctx, 0)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Error("change log prune failed", zap.Error(err))
		case deleted > 0:
			logger.Info("change log pruned", zap.Int64("deleted", deleted))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
