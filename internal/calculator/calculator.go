// Package calculator computes document line and total amounts under the
// fiscal regimes of the owning company and the trading partner.
//
// The calculator is pure: it reads its inputs, a Catalog and, for
// cross-border detection, an optional VATNumberChecker. Persisting results is
// delegated to a LineWriter.
package calculator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineWriter persists the result of a calculation. It is called before the
// caller's document and lines are updated; an error aborts the calculation.
type LineWriter interface {
	SaveCalculation(ctx context.Context, doc *Document, lines []Line) error
}

// Result is the outcome of a recalculation. Lines are copies of the input
// lines with their snapshots and amounts refreshed.
type Result struct {
	Operation OperationResult
	Lines     []Line
	Totals    Totals
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithSettings replaces the default fiscal settings.
func WithSettings(s Settings) Option {
	return func(c *Calculator) { c.settings = s }
}

// WithVATNumberChecker enables intra-community detection.
func WithVATNumberChecker(checker VATNumberChecker) Option {
	return func(c *Calculator) { c.checker = checker }
}

// WithLineWriter sets the writer used by Calculate when persist is true.
func WithLineWriter(w LineWriter) Option {
	return func(c *Calculator) { c.writer = w }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Calculator) { c.logger = logger }
}

// Calculator recalculates documents. It holds no per-document state and is
// safe for concurrent use as long as its Catalog is.
type Calculator struct {
	catalog    Catalog
	settings   Settings
	rounding   RoundingPolicy
	checker    VATNumberChecker
	writer     LineWriter
	logger     *slog.Logger
	operations *OperationResolver
}

// New creates a Calculator reading rates, retentions, tariffs and zone rules
// from catalog.
func New(catalog Catalog, opts ...Option) *Calculator {
	c := &Calculator{
		catalog:  catalog,
		settings: DefaultSettings(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.catalog == nil {
		c.catalog = &StaticCatalog{}
	}
	c.rounding = NewRoundingPolicy(c.settings.Decimals)
	c.operations = NewOperationResolver(c.settings, c.checker, c.logger)
	return c
}

// Settings returns the fiscal settings in use.
func (c *Calculator) Settings() Settings {
	return c.settings
}

// NewProductLine creates a line for product on doc, snapshotting the tariff
// adjusted price, the zone-remapped tax code and its rates, the exemption
// and the partner's withholding rate.
func (c *Calculator) NewProductLine(doc *Document, product Product, quantity decimal.Decimal) (Line, error) {
	pt := product.Type
	if pt == "" {
		pt = ProductGeneral
	}

	l := Line{
		ID:            uuid.New(),
		ProductRef:    product.Reference,
		Description:   product.Description,
		ProductType:   pt,
		Quantity:      quantity,
		UnitPrice:     AdjustPrice(c.catalog, doc.Partner, product.Cost, product.Price),
		UnitCost:      product.Cost,
		SourceTaxCode: product.TaxCode,
		TaxCode:       product.TaxCode,
		ExemptionCode: ResolveExemption(product.ExemptionCode, doc.Partner, doc.Company),
	}

	if product.TaxCode != "" {
		country, province := destination(doc)
		code, _ := ResolveTaxZone(c.catalog.ZoneRules(doc.Company.ID), product.TaxCode, country, province)
		entry, ok := c.catalog.TaxRate(code)
		if !ok {
			return Line{}, fmt.Errorf("%w: %q", ErrUnknownTaxCode, code)
		}
		l.TaxCode = code
		l.VATRate = entry.VAT
		l.SurchargeRate = entry.Surcharge
	}

	if doc.Partner != nil && doc.Partner.RetentionCode != "" {
		if r, ok := c.catalog.Retention(doc.Partner.RetentionCode); ok {
			l.IRPFRate = r.Percentage
		}
	}

	return l, nil
}

// Recalculate computes fresh line snapshots, line amounts and document
// totals. Neither doc nor lines are modified.
func (c *Calculator) Recalculate(ctx context.Context, doc *Document, lines []Line) (Result, error) {
	if !doc.Editable {
		return Result{}, ErrNotEditable
	}
	if doc.Partner == nil {
		return Result{}, ErrMissingPartner
	}
	if err := doc.Validate(); err != nil {
		return Result{}, err
	}
	if err := validateLines(lines); err != nil {
		return Result{}, err
	}

	op := c.operations.Resolve(ctx, doc)
	regime := ResolveDocumentRegime(doc, op.Operation)
	rules := c.catalog.ZoneRules(doc.Company.ID)
	country, province := destination(doc)

	out := make([]Line, len(lines))
	for i, l := range lines {
		if !l.Supplied {
			if err := c.refreshTaxCode(&l, rules, country, province, op); err != nil {
				return Result{}, fmt.Errorf("line %d: %w", i+1, err)
			}
			switch {
			case op.ExemptionCode != "":
				l.ExemptionCode = op.ExemptionCode
			case l.ExemptionCode == "" || c.settings.operationExemption(l.ExemptionCode):
				// Codes left by a previous cross-border operation no longer apply.
				l.ExemptionCode = ResolveExemption("", doc.Partner, doc.Company)
			}
		}

		amounts := c.rounding.ComputeLine(lineInput(l), regime.For(l.ProductType))
		l.Net = amounts.Net
		l.TaxBase = amounts.TaxBase
		l.VAT = amounts.VAT
		l.Surcharge = amounts.Surcharge
		l.IRPF = amounts.IRPF
		out[i] = l
	}

	return Result{
		Operation: op,
		Lines:     out,
		Totals:    c.rounding.Aggregate(doc.Direction, doc.Discount1, doc.Discount2, out),
	}, nil
}

// refreshTaxCode remaps the line's source tax code through the zone rules
// and refreshes the rate snapshot. Lines without a tax code keep their
// rates.
func (c *Calculator) refreshTaxCode(l *Line, rules []TaxZoneRule, country, province string, op OperationResult) error {
	if l.SourceTaxCode == "" {
		l.SourceTaxCode = l.TaxCode
	}

	code := l.SourceTaxCode
	if op.ForceZeroRate {
		code = c.settings.ZeroRateTaxCode
	} else if code != "" {
		code, _ = ResolveTaxZone(rules, code, country, province)
	}
	if code == "" {
		return nil
	}

	entry, ok := c.catalog.TaxRate(code)
	switch {
	case ok:
		l.VATRate = entry.VAT
		l.SurchargeRate = entry.Surcharge
	case op.ForceZeroRate:
		l.VATRate = decimal.Zero
		l.SurchargeRate = decimal.Zero
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTaxCode, code)
	}
	l.TaxCode = code
	return nil
}

// Calculate recalculates doc and lines in place. When persist is true the
// result goes through the LineWriter first. It reports false, leaving doc
// and lines untouched, if the document cannot be recalculated or the write
// fails.
func (c *Calculator) Calculate(ctx context.Context, doc *Document, lines []Line, persist bool) bool {
	res, err := c.Recalculate(ctx, doc, lines)
	if err != nil {
		c.logger.Info("recalculation rejected",
			"document_id", doc.ID,
			"error", err,
		)
		return false
	}

	updated := *doc
	updated.Operation = res.Operation.Operation
	updated.Totals = res.Totals

	if persist {
		if c.writer == nil {
			c.logger.Error("recalculation not persisted: no line writer configured", "document_id", doc.ID)
			return false
		}
		if err := c.writer.SaveCalculation(ctx, &updated, res.Lines); err != nil {
			c.logger.Error("failed to persist recalculation",
				"document_id", doc.ID,
				"error", err,
			)
			return false
		}
	}

	*doc = updated
	copy(lines, res.Lines)
	return true
}

// destination returns the country and province tax zones are matched
// against: the document's own address, else the partner's.
func destination(doc *Document) (string, string) {
	if doc.Country != "" {
		return doc.Country, doc.Province
	}
	if doc.Partner != nil {
		return doc.Partner.Country, doc.Partner.Province
	}
	return "", ""
}
