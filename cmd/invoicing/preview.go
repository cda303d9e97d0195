package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgecommerce/invoicing/internal/calculator"
	"github.com/forgecommerce/invoicing/internal/config"
	"github.com/forgecommerce/invoicing/internal/vat"
)

type previewOpts struct {
	*rootOpts
	rates  string
	indent bool
}

func preview(o *rootOpts) *previewOpts {
	return &previewOpts{rootOpts: o}
}

func (p *previewOpts) cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <file.json>",
		Short: "Calculate an unsaved document and print its lines and totals",
		Long: `Reads {"document": {...}, "lines": [...]} from the file (or stdin with "-")
and prints the calculated operation, lines and totals. Nothing is stored.

With --rates the calculation runs offline against a tax-rate CSV; otherwise
the catalog is read from the database.`,
		Args: cobra.MaximumNArgs(1),
		RunE: p.runE,
	}

	flags := cmd.Flags()
	flags.StringVar(&p.rates, "rates", "", "Tax-rate CSV (code,description,vat,surcharge) for offline calculation")
	flags.BoolVar(&p.indent, "indent", true, "Indent the JSON output")

	return cmd
}

type previewInput struct {
	Document calculator.Document `json:"document"`
	Lines    []calculator.Line   `json:"lines"`
}

type previewOutput struct {
	Operation calculator.Operation `json:"operation"`
	Lines     []calculator.Line    `json:"lines"`
	Totals    calculator.Totals    `json:"totals"`
}

func (p *previewOpts) runE(cmd *cobra.Command, args []string) error {
	input, err := openInput(cmd, args)
	if err != nil {
		return err
	}
	defer input.Close() // nolint:errcheck

	var in previewInput
	if err := json.NewDecoder(input).Decode(&in); err != nil {
		return fmt.Errorf("parsing input: %w", err)
	}

	var res calculator.Result
	if p.rates != "" {
		res, err = p.offline(cmd.Context(), in)
	} else {
		res, err = p.online(cmd.Context(), in)
	}
	if err != nil {
		return err
	}

	return p.write(cmd.OutOrStdout(), previewOutput{
		Operation: res.Operation.Operation,
		Lines:     res.Lines,
		Totals:    res.Totals,
	})
}

func (p *previewOpts) offline(ctx context.Context, in previewInput) (calculator.Result, error) {
	fiscal, err := config.LoadFiscal(p.cfg.FiscalConfigPath)
	if err != nil {
		return calculator.Result{}, err
	}

	f, err := os.Open(p.rates)
	if err != nil {
		return calculator.Result{}, fmt.Errorf("opening rates: %w", err)
	}
	defer f.Close() // nolint:errcheck

	cat, err := staticCatalog(f)
	if err != nil {
		return calculator.Result{}, err
	}

	calc := calculator.New(cat,
		calculator.WithSettings(fiscal.CalculatorSettings()),
		calculator.WithLogger(p.log),
	)
	doc := in.Document
	doc.Editable = true
	return calc.Recalculate(ctx, &doc, in.Lines)
}

func (p *previewOpts) online(ctx context.Context, in previewInput) (calculator.Result, error) {
	a, err := p.app(ctx)
	if err != nil {
		return calculator.Result{}, err
	}
	defer a.Close()

	if res := a.Syncer.Sync(ctx); res.Error != nil {
		p.log.Warn("tax-rate catalog not loaded, using stored rates", "error", res.Error)
	}
	return a.Documents.Preview(ctx, in.Document, in.Lines)
}

func (p *previewOpts) write(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if p.indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

// staticCatalog builds an in-memory catalog from a tax-rate CSV. Rejected
// rows fail the load: a partial catalog would price lines with the wrong
// rates.
func staticCatalog(r io.Reader) (*calculator.StaticCatalog, error) {
	report, err := vat.ParseRatesCSV(r)
	if err != nil {
		return nil, err
	}
	if len(report.Errors) > 0 {
		return nil, fmt.Errorf("invalid rates file: %s", report.Errors[0])
	}

	cat := calculator.NewStaticCatalog()
	for _, rate := range report.Rates {
		cat.AddTaxRate(calculator.TaxRateEntry{
			Code:        rate.Code,
			Description: rate.Description,
			VAT:         rate.VAT,
			Surcharge:   rate.Surcharge,
		})
	}
	return cat, nil
}
