package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgecommerce/invoicing/internal/database"
)

type migrateOpts struct {
	*rootOpts
	dbURL string
	steps int
}

func migrateCmd(o *rootOpts) *migrateOpts {
	return &migrateOpts{rootOpts: o}
}

func (m *migrateOpts) cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.PersistentFlags().StringVar(&m.dbURL, "db", "", "Database URL; defaults to DATABASE_URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := database.Migrate(m.url()); err != nil {
				return fmt.Errorf("migration up failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied successfully")
			return nil
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := database.MigrateDown(m.url(), m.steps); err != nil {
				return fmt.Errorf("migration down failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", m.steps)
			return nil
		},
	}
	down.Flags().IntVar(&m.steps, "steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			version, dirty, err := database.Version(m.url())
			if err != nil {
				return fmt.Errorf("reading schema version: %w", err)
			}
			if dirty {
				fmt.Fprintf(cmd.OutOrStdout(), "%d (dirty)\n", version)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	})

	return cmd
}

func (m *migrateOpts) url() string {
	if m.dbURL != "" {
		return m.dbURL
	}
	return m.cfg.DatabaseURL
}
