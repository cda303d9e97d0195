package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type recalculateOpts struct {
	*rootOpts
	dryRun bool
}

func recalculate(o *rootOpts) *recalculateOpts {
	return &recalculateOpts{rootOpts: o}
}

func (r *recalculateOpts) cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recalculate <document-id>...",
		Short: "Recalculate stored documents and save their totals",
		Args:  cobra.MinimumNArgs(1),
		RunE:  r.runE,
	}

	cmd.Flags().BoolVar(&r.dryRun, "dry-run", false, "Print the new totals without saving them")

	return cmd
}

type recalculateOutput struct {
	ID     uuid.UUID `json:"id"`
	Number string    `json:"number,omitempty"`
	Total  string    `json:"total"`
	Saved  bool      `json:"saved"`
}

func (r *recalculateOpts) runE(cmd *cobra.Command, args []string) error {
	ids := make([]uuid.UUID, 0, len(args))
	for _, arg := range args {
		id, err := uuid.Parse(arg)
		if err != nil {
			return fmt.Errorf("invalid document ID %q: %w", arg, err)
		}
		ids = append(ids, id)
	}

	ctx := cmd.Context()
	a, err := r.app(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if res := a.Syncer.Sync(ctx); res.Error != nil {
		r.log.Warn("tax-rate catalog not loaded, using stored rates", "error", res.Error)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	var failed int
	for _, id := range ids {
		doc, _, err := a.Documents.Recalculate(ctx, id, !r.dryRun)
		if err != nil {
			r.log.Error("recalculation failed", "document_id", id, "error", err)
			failed++
			continue
		}
		if err := enc.Encode(recalculateOutput{
			ID:     doc.ID,
			Number: doc.Number,
			Total:  doc.Totals.Total.StringFixed(2),
			Saved:  !r.dryRun,
		}); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	}

	// Supplier prices are updated asynchronously.
	if err := a.Stats.Drain(ctx); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(ids))
	}
	return nil
}
