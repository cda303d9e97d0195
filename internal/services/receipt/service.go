// Package receipt splits invoice totals into collection or payment
// installments.
package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forgecommerce/invoicing/internal/config"
	"github.com/forgecommerce/invoicing/internal/store"
)

// Installment is one planned receipt.
type Installment struct {
	Number  int
	Amount  decimal.Decimal
	DueDate time.Time
}

// Plan splits the pending amount (total - paid) into installments rounded
// to places decimals. The remainder goes to the last installment so the
// installments add up to the pending amount exactly. Installment i is due
// firstDue plus i*termDays days. A zero pending amount yields no
// installments.
func Plan(total, paid decimal.Decimal, installments int, firstDue time.Time, termDays int, places int32) []Installment {
	pending := total.Sub(paid)
	if pending.IsZero() {
		return nil
	}
	if installments < 1 {
		installments = 1
	}

	share := pending.Div(decimal.NewFromInt(int64(installments))).Round(places)
	out := make([]Installment, installments)
	allocated := decimal.Zero
	for i := range out {
		amount := share
		if i == installments-1 {
			amount = pending.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		out[i] = Installment{
			Number:  i + 1,
			Amount:  amount,
			DueDate: firstDue.AddDate(0, 0, i*termDays),
		}
	}
	return out
}

// Repository is the storage the service needs; *store.Queries satisfies it.
type Repository interface {
	ListReceipts(ctx context.Context, documentID uuid.UUID) ([]store.Receipt, error)
	DeleteUnpaidReceipts(ctx context.Context, documentID uuid.UUID) (int64, error)
	InsertReceipt(ctx context.Context, r *store.Receipt) error
}

// Service regenerates the receipts of invoices.
type Service struct {
	installments int
	termDays     int
	places       int32
	logger       *slog.Logger
}

// NewService creates a receipt service from the fiscal configuration.
func NewService(fiscal config.Fiscal, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		installments: fiscal.Receipts.Installments,
		termDays:     fiscal.Receipts.TermDays,
		places:       fiscal.Decimals,
		logger:       logger,
	}
}

// Regenerate keeps the paid receipts of doc, deletes the unpaid ones and
// plans the pending amount again. Numbering continues after the highest
// paid receipt. It returns the receipts of the document after the change.
func (s *Service) Regenerate(ctx context.Context, repo Repository, doc *store.Document) ([]store.Receipt, error) {
	existing, err := repo.ListReceipts(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	paid := decimal.Zero
	lastPaid := 0
	var kept []store.Receipt
	for _, r := range existing {
		if !r.Paid {
			continue
		}
		paid = paid.Add(r.Amount)
		if r.Number > lastPaid {
			lastPaid = r.Number
		}
		kept = append(kept, r)
	}

	if _, err := repo.DeleteUnpaidReceipts(ctx, doc.ID); err != nil {
		return nil, err
	}

	firstDue := dateOnly(doc.Date).AddDate(0, 0, s.termDays)
	plan := Plan(doc.Totals.Total, paid, s.installments, firstDue, s.termDays, s.places)
	for _, p := range plan {
		r := store.Receipt{
			DocumentID: doc.ID,
			Number:     lastPaid + p.Number,
			Amount:     p.Amount,
			DueDate:    p.DueDate,
		}
		if err := repo.InsertReceipt(ctx, &r); err != nil {
			return nil, fmt.Errorf("regenerating receipts of %s: %w", doc.ID, err)
		}
		kept = append(kept, r)
	}

	s.logger.Debug("receipts regenerated",
		"document_id", doc.ID,
		"paid", paid.String(),
		"new_receipts", len(plan),
	)
	return kept, nil
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
