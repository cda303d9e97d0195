// Package accounting builds the double-entry postings of invoices.
package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/forgecommerce/invoicing/internal/calculator"
	"github.com/forgecommerce/invoicing/internal/config"
	"github.com/forgecommerce/invoicing/internal/store"
)

// ErrUnbalanced is returned when debits and credits of an entry differ.
var ErrUnbalanced = errors.New("accounting entry is not balanced")

// Repository is the storage the service needs; *store.Queries satisfies it.
type Repository interface {
	UpsertEntry(ctx context.Context, e *store.Entry) error
}

type Service struct {
	accounts config.FiscalAccounts
	logger   *slog.Logger
}

func NewService(accounts config.FiscalAccounts, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{accounts: accounts, logger: logger}
}

// BuildEntry produces the posting for a calculated invoice. Sales debit the
// customer with the total and credit sales, output VAT per subtotal, output
// surcharge, and debit withholding receivable. Purchases mirror it. Zero
// movements are omitted and negative amounts move to the opposite side.
func (s *Service) BuildEntry(doc *store.Document) store.Entry {
	t := doc.Totals
	a := s.accounts
	sale := doc.Direction != calculator.DirectionPurchase

	partnerAccount, baseAccount := a.Customers, a.Sales
	vatAccount, surchargeAccount := a.VATOutput, a.SurchargeOutput
	withholdingAccount := a.WithholdingReceivable
	if !sale {
		partnerAccount, baseAccount = a.Suppliers, a.Purchases
		vatAccount, surchargeAccount = a.VATInput, a.SurchargeInput
		withholdingAccount = a.WithholdingPayable
	}

	concept := entryConcept(doc)
	b := &builder{}

	// Sales: the partner side is a debit. Purchases flip every movement.
	b.add(partnerAccount, concept, t.Total, sale)
	b.add(baseAccount, concept, t.Net.Add(t.Supplied), !sale)
	for _, st := range t.Subtotals {
		b.add(vatAccount, fmt.Sprintf("%s %s%%", st.TaxCode, st.VATRate.String()), st.VAT, !sale)
	}
	for _, st := range t.Subtotals {
		b.add(surchargeAccount, fmt.Sprintf("%s %s%%", st.TaxCode, st.SurchargeRate.String()), st.Surcharge, !sale)
	}
	b.add(withholdingAccount, concept, t.IRPF, sale)

	return store.Entry{
		DocumentID: doc.ID,
		Date:       doc.Date,
		Concept:    concept,
		Amount:     t.Total,
		Lines:      b.lines,
	}
}

// Post builds the entry for doc and stores it, replacing any previous one.
func (s *Service) Post(ctx context.Context, repo Repository, doc *store.Document) (*store.Entry, error) {
	entry := s.BuildEntry(doc)
	if !Balanced(entry) {
		return nil, fmt.Errorf("posting document %s: %w", doc.ID, ErrUnbalanced)
	}
	if err := repo.UpsertEntry(ctx, &entry); err != nil {
		return nil, err
	}
	s.logger.Debug("accounting entry posted",
		"document_id", doc.ID,
		"entry_id", entry.ID,
		"lines", len(entry.Lines),
	)
	return &entry, nil
}

// Balanced reports whether the debits of e equal its credits.
func Balanced(e store.Entry) bool {
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range e.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit.Equal(credit)
}

type builder struct {
	lines []store.EntryLine
}

func (b *builder) add(account, concept string, amount decimal.Decimal, debit bool) {
	if amount.IsZero() {
		return
	}
	if amount.IsNegative() {
		amount = amount.Neg()
		debit = !debit
	}
	l := store.EntryLine{Account: account, Concept: concept, Debit: decimal.Zero, Credit: decimal.Zero}
	if debit {
		l.Debit = amount
	} else {
		l.Credit = amount
	}
	b.lines = append(b.lines, l)
}

func entryConcept(doc *store.Document) string {
	name := "Invoice"
	if doc.Direction == calculator.DirectionPurchase {
		name = "Purchase invoice"
	}
	if doc.Number != "" {
		return name + " " + doc.Number
	}
	return name + " " + doc.ID.String()[:8]
}
