// Package metrics exposes Prometheus instruments for the invoicing services.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgecommerce/invoicing/internal/calculator"
)

const (
	ResultOK             = "ok"
	ResultNotEditable    = "not_editable"
	ResultMissingPartner = "missing_partner"
	ResultUnknownTaxCode = "unknown_tax_code"
	ResultInvalid        = "invalid"
	ResultTimeout        = "timeout"
	ResultDB             = "db"
	ResultError          = "error"
)

type Metrics struct {
	recalculations  *prometheus.CounterVec
	recalcDuration  *prometheus.HistogramVec
	viesChecks      *prometheus.CounterVec
	catalogReloads  *prometheus.CounterVec
	catalogRates    prometheus.Gauge
	statsQueueDepth prometheus.Gauge
	statsProcessed  *prometheus.CounterVec
	importedRates   prometheus.Counter
}

// New creates the instruments and registers them with registerer. A nil
// registerer selects prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		recalculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicing_recalculations_total",
			Help: "Document recalculations by result.",
		}, []string{"kind", "result"}),
		recalcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "invoicing_recalculation_duration_seconds",
			Help:    "Document recalculation latency including persistence.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"kind"}),
		viesChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicing_vies_checks_total",
			Help: "EU VAT number checks by outcome.",
		}, []string{"result"}),
		catalogReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicing_catalog_reloads_total",
			Help: "Tax-rate catalog reloads by source and result.",
		}, []string{"source", "result"}),
		catalogRates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "invoicing_catalog_tax_rates",
			Help: "Active tax rates held in the in-memory catalog.",
		}),
		statsQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "invoicing_stats_queue_depth",
			Help: "Pending jobs in the deferred statistics queue.",
		}),
		statsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicing_stats_jobs_total",
			Help: "Deferred statistics jobs by result.",
		}, []string{"result"}),
		importedRates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "invoicing_imported_tax_rates_total",
			Help: "Tax-rate rows imported from CSV.",
		}),
	}

	registerer.MustRegister(
		m.recalculations,
		m.recalcDuration,
		m.viesChecks,
		m.catalogReloads,
		m.catalogRates,
		m.statsQueueDepth,
		m.statsProcessed,
		m.importedRates,
	)
	return m
}

// Handler serves the metrics registered with gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveRecalculation records one recalculation of a document of kind.
func (m *Metrics) ObserveRecalculation(kind string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.recalculations.WithLabelValues(kind, ClassifyResult(err)).Inc()
	m.recalcDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// VIESCheck records a VAT number check outcome: valid, invalid, cached or
// error.
func (m *Metrics) VIESCheck(result string) {
	if m == nil {
		return
	}
	m.viesChecks.WithLabelValues(result).Inc()
}

// CatalogReload records a reload of the tax-rate catalog.
func (m *Metrics) CatalogReload(source string, err error, rates int) {
	if m == nil {
		return
	}
	if err != nil {
		m.catalogReloads.WithLabelValues(source, ResultError).Inc()
		return
	}
	m.catalogReloads.WithLabelValues(source, ResultOK).Inc()
	m.catalogRates.Set(float64(rates))
}

func (m *Metrics) SetStatsQueueDepth(n int) {
	if m == nil {
		return
	}
	m.statsQueueDepth.Set(float64(n))
}

func (m *Metrics) StatsProcessed(err error) {
	if m == nil {
		return
	}
	m.statsProcessed.WithLabelValues(ClassifyResult(err)).Inc()
}

func (m *Metrics) RatesImported(n int) {
	if m == nil {
		return
	}
	m.importedRates.Add(float64(n))
}

// ClassifyResult maps an error to a low-cardinality result label.
func ClassifyResult(err error) string {
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, calculator.ErrNotEditable):
		return ResultNotEditable
	case errors.Is(err, calculator.ErrMissingPartner):
		return ResultMissingPartner
	case errors.Is(err, calculator.ErrUnknownTaxCode):
		return ResultUnknownTaxCode
	case errors.Is(err, calculator.ErrInvalidDocument):
		return ResultInvalid
	case errors.Is(err, context.DeadlineExceeded):
		return ResultTimeout
	case errors.As(err, &pgErr):
		return ResultDB
	}
	return ResultError
}
