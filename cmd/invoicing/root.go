package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgecommerce/invoicing/internal/app"
	"github.com/forgecommerce/invoicing/internal/config"
	"github.com/forgecommerce/invoicing/internal/logger"
)

type rootOpts struct {
	logLevel string
	fiscal   string

	cfg   *config.Config
	log   *slog.Logger
	flush func()
}

func root() *rootOpts {
	return &rootOpts{}
}

func (o *rootOpts) cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "invoicing",
		Short:         "Document totals and tax-regime calculator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if o.flush != nil {
				o.flush()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to LOG_LEVEL")
	flags.StringVar(&o.fiscal, "fiscal", "", "Fiscal YAML file; defaults to FISCAL_CONFIG")

	cmd.AddCommand(preview(o).cmd())
	cmd.AddCommand(recalculate(o).cmd())
	cmd.AddCommand(importRates(o).cmd())
	cmd.AddCommand(migrateCmd(o).cmd())
	cmd.AddCommand(hashToken(o).cmd())

	return cmd
}

func (o *rootOpts) setup() error {
	o.cfg = config.Load()
	if o.logLevel != "" {
		o.cfg.Log.Level = o.logLevel
	}
	if o.fiscal != "" {
		o.cfg.FiscalConfigPath = o.fiscal
	}

	// Console output goes to stderr so stdout stays parseable.
	log, flush, err := logger.New(logger.Config{
		Level:  o.cfg.Log.Level,
		Format: "console",
		Name:   "invoicing",
		Output: "stderr",
	})
	if err != nil {
		return err
	}
	o.log, o.flush = log, flush
	slog.SetDefault(log)
	return nil
}

func (o *rootOpts) app(ctx context.Context) (*app.App, error) {
	return app.New(ctx, o.cfg, o.log)
}

// openInput opens the file named by args[0], or stdin for "-".
func openInput(cmd *cobra.Command, args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	return f, nil
}
