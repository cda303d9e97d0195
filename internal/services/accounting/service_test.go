package accounting

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/forgecommerce/invoicing/internal/calculator"
	"github.com/forgecommerce/invoicing/internal/config"
	"github.com/forgecommerce/invoicing/internal/store"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newService() *Service {
	return NewService(config.DefaultFiscal().Accounts, nil)
}

// invoice returns a sale of 100 at IVA21 and 200 at IVA10 with surcharge,
// 15% withholding and 10 of supplied expenses.
func invoice(dir calculator.Direction) *store.Document {
	return &store.Document{
		Number: "F-0007",
		Document: calculator.Document{
			ID:        uuid.New(),
			Kind:      calculator.KindInvoice,
			Direction: dir,
			Date:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			Totals: calculator.Totals{
				Net:       dec("300"),
				VAT:       dec("41"),
				Surcharge: dec("8"),
				IRPF:      dec("45"),
				Supplied:  dec("10"),
				Total:     dec("314"),
				Subtotals: []calculator.Subtotal{
					{TaxCode: "IVA10", VATRate: dec("10"), SurchargeRate: dec("1.4"), Net: dec("200"), Base: dec("200"), VAT: dec("20"), Surcharge: dec("2.8")},
					{TaxCode: "IVA21", VATRate: dec("21"), SurchargeRate: dec("5.2"), Net: dec("100"), Base: dec("100"), VAT: dec("21"), Surcharge: dec("5.2")},
				},
			},
		},
	}
}

type side struct {
	account string
	debit   string
	credit  string
}

func sides(e store.Entry) []side {
	out := make([]side, len(e.Lines))
	for i, l := range e.Lines {
		out[i] = side{l.Account, l.Debit.String(), l.Credit.String()}
	}
	return out
}

func TestBuildEntry_Sale(t *testing.T) {
	e := newService().BuildEntry(invoice(calculator.DirectionSale))

	assert.Equal(t, []side{
		{"430", "314", "0"},
		{"700", "0", "310"},
		{"477", "0", "20"},
		{"477", "0", "21"},
		{"477.1", "0", "2.8"},
		{"477.1", "0", "5.2"},
		{"473", "45", "0"},
	}, sides(e))
	assert.True(t, Balanced(e))
	assert.Equal(t, "Invoice F-0007", e.Concept)
	assert.True(t, e.Amount.Equal(dec("314")))
}

func TestBuildEntry_Purchase(t *testing.T) {
	e := newService().BuildEntry(invoice(calculator.DirectionPurchase))

	assert.Equal(t, []side{
		{"400", "0", "314"},
		{"600", "310", "0"},
		{"472", "20", "0"},
		{"472", "21", "0"},
		{"472.1", "2.8", "0"},
		{"472.1", "5.2", "0"},
		{"4751", "0", "45"},
	}, sides(e))
	assert.True(t, Balanced(e))
	assert.Equal(t, "Purchase invoice F-0007", e.Concept)
}

func TestBuildEntry_CreditNoteFlipsSides(t *testing.T) {
	doc := &store.Document{Document: calculator.Document{
		ID:        uuid.New(),
		Direction: calculator.DirectionSale,
		Totals: calculator.Totals{
			Net:   dec("-100"),
			VAT:   dec("-21"),
			Total: dec("-121"),
			Subtotals: []calculator.Subtotal{
				{TaxCode: "IVA21", VATRate: dec("21"), Net: dec("-100"), Base: dec("-100"), VAT: dec("-21"), Surcharge: decimal.Zero},
			},
		},
	}}

	e := newService().BuildEntry(doc)
	assert.Equal(t, []side{
		{"430", "0", "121"},
		{"700", "100", "0"},
		{"477", "21", "0"},
	}, sides(e))
	assert.True(t, Balanced(e))
}

func TestBuildEntry_ExemptOmitsZeroLines(t *testing.T) {
	doc := &store.Document{Document: calculator.Document{
		ID:        uuid.New(),
		Direction: calculator.DirectionSale,
		Totals: calculator.Totals{
			Net:   dec("200"),
			Total: dec("200"),
			Subtotals: []calculator.Subtotal{
				{TaxCode: "IVA0", Net: dec("200"), Base: dec("200"), VAT: decimal.Zero, Surcharge: decimal.Zero},
			},
		},
	}}

	e := newService().BuildEntry(doc)
	assert.Len(t, e.Lines, 2)
	assert.True(t, Balanced(e))
}

type repoMock struct {
	mock.Mock
}

func (m *repoMock) UpsertEntry(ctx context.Context, e *store.Entry) error {
	return m.Called(ctx, e).Error(0)
}

func TestPost(t *testing.T) {
	doc := invoice(calculator.DirectionSale)
	repo := &repoMock{}
	repo.On("UpsertEntry", mock.Anything, mock.MatchedBy(func(e *store.Entry) bool {
		return e.DocumentID == doc.ID && len(e.Lines) == 7
	})).Return(nil)

	entry, err := newService().Post(context.Background(), repo, doc)
	require.NoError(t, err)
	assert.Equal(t, doc.Date, entry.Date)
	repo.AssertExpectations(t)
}

func TestPost_RejectsUnbalanced(t *testing.T) {
	doc := invoice(calculator.DirectionSale)
	doc.Totals.Total = dec("999")

	repo := &repoMock{}
	_, err := newService().Post(context.Background(), repo, doc)
	assert.ErrorIs(t, err, ErrUnbalanced)
	repo.AssertNotCalled(t, "UpsertEntry", mock.Anything, mock.Anything)
}
