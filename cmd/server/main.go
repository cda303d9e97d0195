package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forgecommerce/invoicing/internal/app"
	"github.com/forgecommerce/invoicing/internal/config"
	adminhandlers "github.com/forgecommerce/invoicing/internal/handlers/admin"
	apihandlers "github.com/forgecommerce/invoicing/internal/handlers/api"
	"github.com/forgecommerce/invoicing/internal/logger"
	"github.com/forgecommerce/invoicing/internal/metrics"
	"github.com/forgecommerce/invoicing/internal/middleware"
)

func main() {
	cfg := config.Load()

	log, flush, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Name:   "invoicing",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer flush()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		flush()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	a, err := app.New(context.Background(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// Start tax-rate catalog reloads. An empty catalog still serves
	// requests: rates then come from the database row of each code.
	if res := a.Scheduler.Start(context.Background()); res.Error != nil {
		log.Warn("initial tax-rate catalog load failed", "error", res.Error)
	}

	mux := http.NewServeMux()

	apihandlers.NewHealthHandler(a.Pool, log).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler(a.Registry))

	apihandlers.NewDocumentHandler(a.Store, a.Documents, a.Workflow, log).RegisterRoutes(mux)
	if a.VIES != nil {
		apihandlers.NewVATNumberHandler(a.VIES, log).RegisterRoutes(mux)
	}

	// Admin routes require the bearer token.
	adminMux := http.NewServeMux()
	adminhandlers.NewCSVIOHandler(a.Syncer, a.Rates, a.Archive, log).RegisterRoutes(adminMux)
	adminhandlers.NewSettingsHandler(a.Syncer, log).RegisterRoutes(adminMux)
	mux.Handle("/admin/", middleware.RequireToken(cfg.AdminToken)(adminMux))

	limiter := middleware.NewLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst)
	defer limiter.Stop()

	handler := middleware.Chain(mux,
		middleware.RequestLogger(log),
		middleware.Recover(log),
		limiter.Middleware,
		middleware.SecurityHeaders,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("shutting down", "signal", sig)
	case err := <-errCh:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("api server shutdown error", "error", err)
	}

	// Let queued supplier-price updates finish before the pool closes.
	if err := a.Stats.Drain(ctx); err != nil {
		log.Warn("stats queue not drained", "error", err)
	}

	log.Info("server stopped")
	return nil
}
