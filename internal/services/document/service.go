// Package document recalculates stored documents and runs the side effects
// of a recalculation: receipts, accounting entries and supplier prices.
package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forgecommerce/invoicing/internal/calculator"
	"github.com/forgecommerce/invoicing/internal/metrics"
	"github.com/forgecommerce/invoicing/internal/services/accounting"
	"github.com/forgecommerce/invoicing/internal/services/receipt"
	"github.com/forgecommerce/invoicing/internal/services/stats"
	"github.com/forgecommerce/invoicing/internal/store"
)

// ErrRejected is returned when a recalculation is refused without a more
// specific reason.
var ErrRejected = errors.New("recalculation rejected")

// RateSource overrides the tax rates stored in the database; *vat.RateCache
// satisfies it.
type RateSource interface {
	TaxRate(code string) (calculator.TaxRateEntry, bool)
}

// Deps are the collaborators of the service. Only Store is required.
type Deps struct {
	Store      *store.Store
	Rates      RateSource
	Checker    calculator.VATNumberChecker
	Settings   calculator.Settings
	Receipts   *receipt.Service
	Accounting *accounting.Service
	Stats      *stats.Queue
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

type Service struct {
	store      *store.Store
	rates      RateSource
	checker    calculator.VATNumberChecker
	settings   calculator.Settings
	receipts   *receipt.Service
	accounting *accounting.Service
	stats      *stats.Queue
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Settings.Decimals == 0 && len(d.Settings.EUCountries) == 0 {
		d.Settings = calculator.DefaultSettings()
	}
	return &Service{
		store:      d.Store,
		rates:      d.Rates,
		checker:    d.Checker,
		settings:   d.Settings,
		receipts:   d.Receipts,
		accounting: d.Accounting,
		stats:      d.Stats,
		metrics:    d.Metrics,
		logger:     d.Logger,
	}
}

// Recalculate refreshes the line snapshots and totals of document id. With
// persist the lines and totals are written in one transaction together
// with the receipts and accounting entry of invoices. Without it nothing is
// written. It returns the recalculated document and lines.
func (s *Service) Recalculate(ctx context.Context, id uuid.UUID, persist bool) (*store.Document, []calculator.Line, error) {
	start := time.Now()
	kind := "unknown"

	doc, lines, err := s.recalculate(ctx, id, persist, &kind)
	s.metrics.ObserveRecalculation(kind, err, time.Since(start))
	if err != nil {
		return nil, nil, err
	}

	if persist {
		s.enqueueSupplierPrices(doc, lines)
	}
	return doc, lines, nil
}

func (s *Service) recalculate(ctx context.Context, id uuid.UUID, persist bool, kind *string) (*store.Document, []calculator.Line, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	*kind = string(doc.Kind)

	lines, err := s.store.ListLines(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	cat, err := s.catalog(ctx, s.store.Queries, doc.Company.ID)
	if err != nil {
		return nil, nil, err
	}

	if !persist {
		res, err := s.calculator(cat, nil).Recalculate(ctx, &doc.Document, lines)
		if err != nil {
			return nil, nil, err
		}
		doc.Operation = res.Operation.Operation
		doc.Totals = res.Totals
		return doc, res.Lines, nil
	}

	err = s.store.WithTx(ctx, func(q *store.Queries) error {
		return s.save(ctx, q, cat, doc, lines)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("recalculating document %s: %w", id, err)
	}

	s.logger.Info("document recalculated",
		"document_id", id,
		"kind", doc.Kind,
		"operation", doc.Operation,
		"total", doc.Totals.Total.String(),
	)
	return doc, lines, nil
}

// save calculates doc and writes the result through q.
func (s *Service) save(ctx context.Context, q *store.Queries, cat calculator.Catalog, doc *store.Document, lines []calculator.Line) error {
	w := &txWriter{q: q, svc: s, doc: doc}
	calc := s.calculator(cat, w)
	if calc.Calculate(ctx, &doc.Document, lines, true) {
		return nil
	}
	if w.err != nil {
		return w.err
	}
	// Calculate only reports failure; recover the reason.
	if _, err := calc.Recalculate(ctx, &doc.Document, lines); err != nil {
		return err
	}
	return ErrRejected
}

// Refresh recalculates and stores document id.
func (s *Service) Refresh(ctx context.Context, id uuid.UUID) error {
	_, _, err := s.Recalculate(ctx, id, true)
	return err
}

// Preview calculates doc and lines without reading or writing the document
// tables. The document is treated as editable.
func (s *Service) Preview(ctx context.Context, doc calculator.Document, lines []calculator.Line) (calculator.Result, error) {
	start := time.Now()
	doc.Editable = true

	res, err := s.preview(ctx, &doc, lines)
	s.metrics.ObserveRecalculation("preview", err, time.Since(start))
	return res, err
}

func (s *Service) preview(ctx context.Context, doc *calculator.Document, lines []calculator.Line) (calculator.Result, error) {
	cat, err := s.catalog(ctx, s.store.Queries, doc.Company.ID)
	if err != nil {
		return calculator.Result{}, err
	}
	return s.calculator(cat, nil).Recalculate(ctx, doc, lines)
}

// AddProductLine appends a line for product ref to document id and
// recalculates it. The line is only stored when the recalculation succeeds.
func (s *Service) AddProductLine(ctx context.Context, id uuid.UUID, ref string, quantity decimal.Decimal) (calculator.Line, error) {
	start := time.Now()
	kind := "unknown"

	doc, line, lines, err := s.addProductLine(ctx, id, ref, quantity, &kind)
	s.metrics.ObserveRecalculation(kind, err, time.Since(start))
	if err != nil {
		return calculator.Line{}, err
	}

	s.enqueueSupplierPrices(doc, lines)
	return line, nil
}

func (s *Service) addProductLine(ctx context.Context, id uuid.UUID, ref string, quantity decimal.Decimal, kind *string) (*store.Document, calculator.Line, []calculator.Line, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, calculator.Line{}, nil, err
	}
	*kind = string(doc.Kind)
	if !doc.Editable {
		return nil, calculator.Line{}, nil, calculator.ErrNotEditable
	}

	product, err := s.store.GetProduct(ctx, ref)
	if err != nil {
		return nil, calculator.Line{}, nil, err
	}
	cat, err := s.catalog(ctx, s.store.Queries, doc.Company.ID)
	if err != nil {
		return nil, calculator.Line{}, nil, err
	}

	line, err := s.calculator(cat, nil).NewProductLine(&doc.Document, product, quantity)
	if err != nil {
		return nil, calculator.Line{}, nil, err
	}

	var lines []calculator.Line
	err = s.store.WithTx(ctx, func(q *store.Queries) error {
		existing, err := q.ListLines(ctx, id)
		if err != nil {
			return err
		}
		if err := q.UpsertLine(ctx, id, len(existing)+1, &line); err != nil {
			return err
		}
		lines = append(existing, line)
		return s.save(ctx, q, cat, doc, lines)
	})
	if err != nil {
		return nil, calculator.Line{}, nil, fmt.Errorf("adding %s to document %s: %w", ref, id, err)
	}

	s.logger.Info("product line added",
		"document_id", id,
		"ref", ref,
		"total", doc.Totals.Total.String(),
	)
	return doc, lines[len(lines)-1], lines, nil
}

func (s *Service) calculator(cat calculator.Catalog, w calculator.LineWriter) *calculator.Calculator {
	opts := []calculator.Option{
		calculator.WithSettings(s.settings),
		calculator.WithLogger(s.logger),
	}
	if s.checker != nil {
		opts = append(opts, calculator.WithVATNumberChecker(s.checker))
	}
	if w != nil {
		opts = append(opts, calculator.WithLineWriter(w))
	}
	return calculator.New(cat, opts...)
}

// catalog loads retentions, tariffs and zone rules from the store. Tax
// rates come from the rate source when one is configured, with the stored
// rates as fallback.
func (s *Service) catalog(ctx context.Context, q *store.Queries, companyID uuid.UUID) (calculator.Catalog, error) {
	cat, err := q.LoadCatalog(ctx, companyID, true)
	if err != nil {
		return nil, err
	}
	if s.rates == nil {
		return cat, nil
	}
	return layeredCatalog{StaticCatalog: cat, rates: s.rates}, nil
}

func (s *Service) enqueueSupplierPrices(doc *store.Document, lines []calculator.Line) {
	if s.stats == nil || doc.Direction != calculator.DirectionPurchase || doc.Partner == nil {
		return
	}
	in := make([]stats.Line, len(lines))
	for i, l := range lines {
		in[i] = stats.Line{Ref: l.ProductRef, UnitPrice: l.UnitPrice, Supplied: l.Supplied}
	}
	s.stats.Enqueue(stats.JobFromLines(doc.ID, doc.Partner.ID, in))
}

type layeredCatalog struct {
	*calculator.StaticCatalog
	rates RateSource
}

func (c layeredCatalog) TaxRate(code string) (calculator.TaxRateEntry, bool) {
	if e, ok := c.rates.TaxRate(code); ok {
		return e, true
	}
	return c.StaticCatalog.TaxRate(code)
}

// txWriter persists a calculation inside the caller's transaction.
type txWriter struct {
	q   *store.Queries
	svc *Service
	doc *store.Document
	err error
}

func (w *txWriter) SaveCalculation(ctx context.Context, doc *calculator.Document, lines []calculator.Line) error {
	w.err = w.save(ctx, doc, lines)
	return w.err
}

func (w *txWriter) save(ctx context.Context, doc *calculator.Document, lines []calculator.Line) error {
	if err := w.q.SaveCalculation(ctx, doc, lines); err != nil {
		return err
	}
	if doc.Kind != calculator.KindInvoice {
		return nil
	}

	stored := *w.doc
	stored.Document = *doc
	if w.svc.receipts != nil {
		if _, err := w.svc.receipts.Regenerate(ctx, w.q, &stored); err != nil {
			return err
		}
	}
	if w.svc.accounting != nil {
		if _, err := w.svc.accounting.Post(ctx, w.q, &stored); err != nil {
			return err
		}
	}
	return nil
}
