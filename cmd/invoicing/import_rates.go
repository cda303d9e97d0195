package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgecommerce/invoicing/internal/vat"
)

type importRatesOpts struct {
	*rootOpts
	strict bool
}

func importRates(o *rootOpts) *importRatesOpts {
	return &importRatesOpts{rootOpts: o}
}

func (i *importRatesOpts) cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-rates <file.csv>",
		Short: "Import the tax-rate catalog from a CSV file",
		Long: `Imports code,description,vat,surcharge rows. Changed rates are stored as a
new version and the previous row is expired.`,
		Args: cobra.MaximumNArgs(1),
		RunE: i.runE,
	}

	cmd.Flags().BoolVar(&i.strict, "strict", false, "Abort when any row is invalid")

	return cmd
}

func (i *importRatesOpts) runE(cmd *cobra.Command, args []string) error {
	input, err := openInput(cmd, args)
	if err != nil {
		return err
	}
	defer input.Close() // nolint:errcheck

	report, err := vat.ParseRatesCSV(input)
	if err != nil {
		return err
	}
	for _, e := range report.Errors {
		i.log.Warn("rejected row", "error", e)
	}
	if i.strict && len(report.Errors) > 0 {
		return fmt.Errorf("%d invalid rows", len(report.Errors))
	}
	if len(report.Rates) == 0 {
		return fmt.Errorf("no valid rows to import")
	}

	ctx := cmd.Context()
	a, err := i.app(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.Syncer.Import(ctx, report.Rates, vat.SourceCSV)
	if res.Error != nil {
		return fmt.Errorf("importing rates: %w", res.Error)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "imported %d rates (%d changed, %d active, %d rejected)\n",
		len(report.Rates), res.RatesChanged, res.RatesLoaded, len(report.Errors))
	return nil
}
