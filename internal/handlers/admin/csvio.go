package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/forgecommerce/invoicing/internal/calculator"
	"github.com/forgecommerce/invoicing/internal/storage"
	"github.com/forgecommerce/invoicing/internal/vat"
)

// maxCSVImportSize limits uploaded CSV files to 10 MB.
const maxCSVImportSize = 10 << 20

// RateImporter stores an imported tax-rate catalog; *vat.RateSyncer
// satisfies it.
type RateImporter interface {
	Import(ctx context.Context, rates []vat.TaxRate, source string) vat.SyncResult
}

// RateLister returns the active catalog; *vat.RateCache satisfies it.
type RateLister interface {
	GetAll() map[string]calculator.TaxRateEntry
}

// CSVIOHandler handles the tax-rate catalog CSV import and export.
type CSVIOHandler struct {
	importer RateImporter
	rates    RateLister
	archive  storage.Storage
	logger   *slog.Logger
	now      func() time.Time
}

// NewCSVIOHandler creates a new handler for CSV import/export operations.
// Uploaded files are kept in archive when it is not nil.
func NewCSVIOHandler(importer RateImporter, rates RateLister, archive storage.Storage, logger *slog.Logger) *CSVIOHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVIOHandler{
		importer: importer,
		rates:    rates,
		archive:  archive,
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterRoutes registers CSV import/export admin routes on the given mux.
func (h *CSVIOHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/export/tax-rates/csv", h.ExportTaxRatesCSV)
	mux.HandleFunc("POST /admin/import/tax-rates", h.ImportTaxRates)
}

// ExportTaxRatesCSV handles GET /admin/export/tax-rates/csv.
func (h *CSVIOHandler) ExportTaxRatesCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="tax-rates.csv"`)

	if err := vat.WriteRatesCSV(w, h.rates.GetAll()); err != nil {
		h.logger.Error("failed to write tax rate CSV", "error", err)
	}
}

type importResult struct {
	Imported   int      `json:"imported"`
	Changed    int      `json:"changed"`
	Loaded     int      `json:"loaded"`
	Errors     []string `json:"errors"`
	ArchivedAs string   `json:"archived_as,omitempty"`
}

// ImportTaxRates handles POST /admin/import/tax-rates. The CSV is read from
// the "file" field of a multipart form or from a text/csv body. Files whose
// rates were stored are archived; rejected files are not kept.
func (h *CSVIOHandler) ImportTaxRates(w http.ResponseWriter, r *http.Request) {
	body, err := csvBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	data, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reading upload: " + err.Error()})
		return
	}

	report, err := vat.ParseRatesCSV(bytes.NewReader(data))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(report.Rates) == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, importResult{Errors: report.Errors})
		return
	}

	key, location, err := h.archiveUpload(r.Context(), data)
	if err != nil {
		h.logger.Error("archiving tax rate upload failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to archive upload"})
		return
	}

	result := h.importer.Import(r.Context(), report.Rates, vat.SourceCSV)
	if result.Error != nil {
		h.logger.Error("tax rate import failed", "error", result.Error, "rows", len(report.Rates))
		h.discardUpload(key)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to import tax rates"})
		return
	}

	h.logger.Info("tax rates imported",
		"rows", len(report.Rates),
		"changed", result.RatesChanged,
		"rejected", len(report.Errors),
		"archived_as", location,
	)

	errs := report.Errors
	if errs == nil {
		errs = []string{}
	}
	writeJSON(w, http.StatusOK, importResult{
		Imported:   len(report.Rates),
		Changed:    result.RatesChanged,
		Loaded:     result.RatesLoaded,
		Errors:     errs,
		ArchivedAs: location,
	})
}

func (h *CSVIOHandler) archiveUpload(ctx context.Context, data []byte) (key, location string, err error) {
	if h.archive == nil {
		return "", "", nil
	}
	key = storage.ImportKey("tax-rates", h.now())
	location, err = h.archive.Put(ctx, key, bytes.NewReader(data), "text/csv")
	if err != nil {
		return "", "", err
	}
	return key, location, nil
}

// discardUpload removes an archived file whose import failed. It runs with
// its own context: the request may already be cancelled.
func (h *CSVIOHandler) discardUpload(key string) {
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.archive.Delete(ctx, key); err != nil {
		h.logger.Warn("removing archived upload failed", "key", key, "error", err)
	}
}

// csvBody returns the uploaded CSV, from a multipart file or the raw body.
func csvBody(w http.ResponseWriter, r *http.Request) (io.ReadCloser, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxCSVImportSize); err != nil {
			return nil, fmt.Errorf("parsing multipart form: %w", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("reading uploaded file: %w", err)
		}
		return file, nil
	}
	return http.MaxBytesReader(w, r.Body, maxCSVImportSize), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}
