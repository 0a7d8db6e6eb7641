// Server exposes the image generation catalog over HTTP for GUI
// collaborators and runs the stalled-job sweep.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imagegen/internal/catalog"
	"imagegen/internal/config"
	"imagegen/internal/handler"
	"imagegen/internal/log"
	"imagegen/internal/models"
	"imagegen/internal/provider"
	"imagegen/internal/storage/archive"
	"imagegen/internal/workflow"
	"imagegen/pkg/database/sqlite"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := log.New(log.Config{Level: slog.LevelInfo, JSON: cfg.LogJSON})
	logger.Info("starting server", "addr", cfg.ListenAddr, "archive", cfg.ArchiveRoot)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	store := archive.New(cfg.ArchiveRoot, logger)
	if err := store.EnsureDirs(); err != nil {
		return err
	}

	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := sqlite.Migrate(db); err != nil {
		return err
	}

	cat := catalog.New(db, logger)
	dispatcher := buildDispatcher(cfg, logger)
	orch := workflow.New(cat, store, dispatcher, logger)
	h := handler.NewHandler(cat, orch, store, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepStalledJobs(ctx, cat, cfg, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildDispatcher(cfg *config.Config, logger *slog.Logger) *provider.Dispatcher {
	d := provider.NewDispatcher(logger)
	if cfg.GeminiAPIKey != "" {
		d.Register(models.ProviderGemini, provider.NewGemini(cfg.GeminiAPIKey))
	}
	if cfg.FalAPIKey != "" {
		d.Register(models.ProviderFal, provider.NewFal(cfg.FalAPIKey))
	}
	if cfg.OpenAIAPIKey != "" {
		d.Register(models.ProviderOpenAI, provider.NewOpenAI(cfg.OpenAIAPIKey))
	}
	if cfg.SelfHostedURL != "" {
		d.Register(models.ProviderSelfHosted, provider.NewSelfHosted(cfg.SelfHostedURL))
	}
	return d
}

// sweepStalledJobs periodically fails jobs stuck past the configured
// threshold, then once more on shutdown.
func sweepStalledJobs(ctx context.Context, cat *catalog.Catalog, cfg *config.Config, logger *slog.Logger) {
	threshold := time.Duration(cfg.StalledJobMinutes) * time.Minute
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := cat.CleanupStalledJobs(ctx, threshold)
			if err != nil {
				logger.Error("stalled job sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("failed stalled jobs", "count", n)
			}
		}
	}
}
