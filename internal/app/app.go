// Package app assembles the services shared by the HTTP server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/forgecommerce/invoicing/internal/config"
	"github.com/forgecommerce/invoicing/internal/database"
	"github.com/forgecommerce/invoicing/internal/metrics"
	"github.com/forgecommerce/invoicing/internal/services/accounting"
	"github.com/forgecommerce/invoicing/internal/services/document"
	"github.com/forgecommerce/invoicing/internal/services/receipt"
	"github.com/forgecommerce/invoicing/internal/services/stats"
	"github.com/forgecommerce/invoicing/internal/services/workflow"
	"github.com/forgecommerce/invoicing/internal/storage"
	"github.com/forgecommerce/invoicing/internal/store"
	"github.com/forgecommerce/invoicing/internal/vat"
)

// App holds the wired services. Close releases them in reverse order.
type App struct {
	Config   *config.Config
	Fiscal   config.Fiscal
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Pool  *pgxpool.Pool
	Store *store.Store

	Rates     *vat.RateCache
	Syncer    *vat.RateSyncer
	Scheduler *vat.Scheduler
	VIES      *vat.VIESClient

	// Archive keeps uploaded catalog files; nil when disabled.
	Archive storage.Storage

	Stats     *stats.Queue
	Documents *document.Service
	Workflow  *workflow.Service
}

// New connects to the database, runs migrations and builds the services.
// The catalog scheduler is created but not started.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	fiscal, err := config.LoadFiscal(cfg.FiscalConfigPath)
	if err != nil {
		return nil, err
	}
	archive, err := NewArchive(ctx, cfg.Archive)
	if err != nil {
		return nil, err
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	logger.Info("database connected")

	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations complete")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	st := store.New(pool, logger)

	rates := vat.NewRateCache()
	syncer := vat.NewRateSyncer(pool, rates, logger, m)
	scheduler := vat.NewScheduler(syncer, cfg.CatalogRefreshInterval, logger)

	a := &App{
		Config:    cfg,
		Fiscal:    fiscal,
		Logger:    logger,
		Registry:  reg,
		Metrics:   m,
		Pool:      pool,
		Store:     st,
		Rates:     rates,
		Syncer:    syncer,
		Scheduler: scheduler,
		Archive:   archive,
	}

	deps := document.Deps{
		Store:      st,
		Rates:      rates,
		Settings:   fiscal.CalculatorSettings(),
		Receipts:   receipt.NewService(fiscal, logger),
		Accounting: accounting.NewService(fiscal.Accounts, logger),
		Metrics:    m,
		Logger:     logger,
	}
	if cfg.VIES.Enabled {
		a.VIES = vat.NewVIESClient(pool, cfg.VIES.Endpoint, cfg.VIES.Timeout, cfg.VIES.CacheTTL, logger, m)
		deps.Checker = a.VIES
	}

	a.Stats = stats.NewQueue(st, cfg.StatsQueueSize, logger, m)
	a.Stats.Start()
	deps.Stats = a.Stats

	a.Documents = document.NewService(deps)
	a.Workflow = workflow.NewService(st, a.Documents, logger)

	return a, nil
}

// Close stops background work and closes the pool.
func (a *App) Close() {
	a.Scheduler.Stop()
	a.Stats.Stop()
	a.Pool.Close()
}

// NewArchive returns the storage selected by cfg, or nil when archiving is
// disabled.
func NewArchive(ctx context.Context, cfg config.ArchiveConfig) (storage.Storage, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "local":
		return storage.NewLocal(cfg.Path), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("archive backend s3 requires S3_BUCKET")
		}
		return storage.NewS3(ctx, storage.S3Config{
			Endpoint:       cfg.S3Endpoint,
			Region:         cfg.S3Region,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			ForcePathStyle: cfg.S3ForcePathStyle,
			Bucket:         cfg.S3Bucket,
		})
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}
