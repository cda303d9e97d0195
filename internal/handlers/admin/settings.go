package admin

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/forgecommerce/invoicing/internal/vat"
)

// RateSyncer reloads the tax-rate cache; *vat.RateSyncer satisfies it.
type RateSyncer interface {
	Sync(ctx context.Context) vat.SyncResult
}

// SettingsHandler exposes catalog maintenance operations.
type SettingsHandler struct {
	syncer RateSyncer
	logger *slog.Logger
}

func NewSettingsHandler(syncer RateSyncer, logger *slog.Logger) *SettingsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsHandler{syncer: syncer, logger: logger}
}

// RegisterRoutes registers the settings routes on the given mux.
func (h *SettingsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/tax-rates/sync", h.SyncTaxRates)
}

type syncResponse struct {
	Source       string    `json:"source"`
	RatesLoaded  int       `json:"rates_loaded"`
	RatesChanged int       `json:"rates_changed"`
	SyncedAt     time.Time `json:"synced_at"`
}

// SyncTaxRates handles POST /admin/tax-rates/sync. It reloads the tax-rate
// cache from the database without waiting for the scheduler.
func (h *SettingsHandler) SyncTaxRates(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("manual tax rate sync triggered")

	result := h.syncer.Sync(r.Context())
	if result.Error != nil {
		h.logger.Error("manual tax rate sync failed", "error", result.Error)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sync failed"})
		return
	}

	h.logger.Info("manual tax rate sync completed",
		"source", result.Source,
		"rates_loaded", result.RatesLoaded,
		"rates_changed", result.RatesChanged,
	)

	writeJSON(w, http.StatusOK, syncResponse{
		Source:       result.Source,
		RatesLoaded:  result.RatesLoaded,
		RatesChanged: result.RatesChanged,
		SyncedAt:     result.SyncedAt,
	})
}
