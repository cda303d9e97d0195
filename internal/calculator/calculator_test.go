package calculator

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var companyID = uuid.MustParse("5b0c1f0e-8a55-4c1c-9d0e-0f6f3f6c2a01")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "%s: expected %s, got %s", field, want, got)
}

func testCatalog() *StaticCatalog {
	c := NewStaticCatalog(
		TaxRateEntry{Code: "IVA21", Description: "General", VAT: dec("21"), Surcharge: dec("5.2")},
		TaxRateEntry{Code: "IVA10", Description: "Reduced", VAT: dec("10"), Surcharge: dec("1.4")},
		TaxRateEntry{Code: "IVA4", Description: "Super reduced", VAT: dec("4"), Surcharge: dec("0.5")},
		TaxRateEntry{Code: "IVA0", Description: "Zero", VAT: dec("0"), Surcharge: dec("0")},
	)
	c.AddRetention(RetentionEntry{Code: "IRPF15", Percentage: dec("15")})
	return c
}

func newDoc(dir Direction, company, partner Regime) *Document {
	return &Document{
		ID:        uuid.New(),
		Kind:      KindInvoice,
		Direction: dir,
		Company: Company{
			ID:      companyID,
			Name:    "Forge SL",
			TaxID:   "B00000000",
			Regime:  company,
			Country: "ES",
		},
		Partner: &TradingPartner{
			ID:      uuid.New(),
			Name:    "Partner",
			TaxID:   "12345678Z",
			Regime:  partner,
			Country: "ES",
		},
		Currency: "EUR",
		Editable: true,
	}
}

func newLine(qty, price string) Line {
	return Line{
		ID:          uuid.New(),
		Description: "Widget",
		ProductType: ProductGeneral,
		Quantity:    dec(qty),
		UnitPrice:   dec(price),
		TaxCode:     "IVA21",
	}
}

type checkerMock struct {
	mock.Mock
}

func (m *checkerMock) CheckVATNumber(ctx context.Context, country, taxID string) (bool, error) {
	args := m.Called(ctx, country, taxID)
	return args.Bool(0), args.Error(1)
}

type writerMock struct {
	mock.Mock
}

func (m *writerMock) SaveCalculation(ctx context.Context, doc *Document, lines []Line) error {
	args := m.Called(ctx, doc, lines)
	return args.Error(0)
}

func TestCalculate_RegimeCombinations(t *testing.T) {
	tests := []struct {
		name      string
		dir       Direction
		company   Regime
		partner   Regime
		net       string
		vat       string
		surcharge string
		total     string
	}{
		{"general sale", DirectionSale, RegimeGeneral, RegimeGeneral, "200", "42", "0", "242"},
		{"sale to surcharge customer", DirectionSale, RegimeGeneral, RegimeSurcharge, "200", "42", "10.4", "252.4"},
		{"surcharge company never surcharges its sales", DirectionSale, RegimeSurcharge, RegimeSurcharge, "200", "42", "0", "242"},
		{"surcharge company buying from general supplier", DirectionPurchase, RegimeSurcharge, RegimeGeneral, "200", "42", "0", "242"},
		{"surcharge company buying from surcharge supplier", DirectionPurchase, RegimeSurcharge, RegimeSurcharge, "200", "42", "10.4", "252.4"},
		{"general company buying from surcharge supplier", DirectionPurchase, RegimeGeneral, RegimeSurcharge, "200", "42", "0", "242"},
		{"cash criteria behaves as general", DirectionSale, RegimeCashCriteria, RegimeGeneral, "200", "42", "0", "242"},
		{"agrarian behaves as general", DirectionSale, RegimeAgrarian, RegimeGeneral, "200", "42", "0", "242"},
		{"simplified behaves as general", DirectionSale, RegimeSimplified, RegimeGeneral, "200", "42", "0", "242"},
		{"exempt company", DirectionSale, RegimeExempt, RegimeGeneral, "200", "0", "0", "200"},
		{"exempt partner", DirectionSale, RegimeGeneral, RegimeExempt, "200", "0", "0", "200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := New(testCatalog())
			doc := newDoc(tt.dir, tt.company, tt.partner)
			lines := []Line{newLine("2", "100")}

			require.True(t, calc.Calculate(context.Background(), doc, lines, false))

			assertDec(t, tt.net, doc.Totals.Net, "net")
			assertDec(t, tt.vat, doc.Totals.VAT, "vat")
			assertDec(t, tt.surcharge, doc.Totals.Surcharge, "surcharge")
			assertDec(t, "0", doc.Totals.IRPF, "irpf")
			assertDec(t, tt.total, doc.Totals.Total, "total")
			assertDec(t, tt.net, lines[0].Net, "line net")
		})
	}
}

func TestCalculate_UsedGoodsSale(t *testing.T) {
	calc := New(testCatalog())
	doc := newDoc(DirectionSale, RegimeUsedGoods, RegimeGeneral)
	l := newLine("2", "100")
	l.ProductType = ProductSecondHand
	l.UnitCost = dec("60")
	lines := []Line{l}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))

	assertDec(t, "200", lines[0].Net, "line net")
	assertDec(t, "80", lines[0].TaxBase, "line base")
	assertDec(t, "16.8", lines[0].VAT, "line vat")
	assertDec(t, "200", doc.Totals.Net, "net")
	assertDec(t, "16.8", doc.Totals.VAT, "vat")
	assertDec(t, "216.8", doc.Totals.Total, "total")
	assertDec(t, "120", doc.Totals.Cost, "cost")
	assertDec(t, "80", doc.Totals.Profit, "profit")
}

func TestCalculate_UsedGoodsNewProductIsStandard(t *testing.T) {
	calc := New(testCatalog())
	doc := newDoc(DirectionSale, RegimeUsedGoods, RegimeGeneral)
	l := newLine("2", "100")
	l.UnitCost = dec("60")
	lines := []Line{l}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assertDec(t, "42", doc.Totals.VAT, "vat")
	assertDec(t, "242", doc.Totals.Total, "total")
}

func TestCalculate_UsedGoodsNegativeMarginIsZero(t *testing.T) {
	calc := New(testCatalog())
	doc := newDoc(DirectionSale, RegimeUsedGoods, RegimeGeneral)
	l := newLine("1", "50")
	l.ProductType = ProductSecondHand
	l.UnitCost = dec("80")
	lines := []Line{l}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assertDec(t, "0", lines[0].TaxBase, "line base")
	assertDec(t, "0", doc.Totals.VAT, "vat")
	assertDec(t, "50", doc.Totals.Total, "total")
}

func TestCalculate_UsedGoodsRefundMirrorsSale(t *testing.T) {
	calc := New(testCatalog())
	doc := newDoc(DirectionSale, RegimeUsedGoods, RegimeGeneral)
	l := newLine("-2", "100")
	l.ProductType = ProductSecondHand
	l.UnitCost = dec("60")
	lines := []Line{l}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))

	assertDec(t, "-200", lines[0].Net, "line net")
	assertDec(t, "-80", lines[0].TaxBase, "line base")
	assertDec(t, "-16.8", lines[0].VAT, "line vat")
	assertDec(t, "-16.8", doc.Totals.VAT, "vat")
	assertDec(t, "-216.8", doc.Totals.Total, "total")
}

func TestCalculate_UsedGoodsRefundBelowCostIsZero(t *testing.T) {
	calc := New(testCatalog())
	doc := newDoc(DirectionSale, RegimeUsedGoods, RegimeGeneral)
	l := newLine("-1", "50")
	l.ProductType = ProductSecondHand
	l.UnitCost = dec("80")
	lines := []Line{l}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assertDec(t, "0", lines[0].TaxBase, "line base")
	assertDec(t, "-50", doc.Totals.Total, "total")
}

func TestCalculate_UsedGoodsPurchase(t *testing.T) {
	calc := New(testCatalog())
	doc := newDoc(DirectionPurchase, RegimeUsedGoods, RegimeGeneral)
	l := newLine("2", "100")
	l.ProductType = ProductSecondHand
	lines := []Line{l}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assertDec(t, "0", doc.Totals.VAT, "vat")
	assertDec(t, doc.Totals.Net.String(), doc.Totals.Total, "total")
	assertDec(t, "200", doc.Totals.Total, "total")
}

func TestCalculate_TravelAgencyUsesMargin(t *testing.T) {
	calc := New(testCatalog())
	doc := newDoc(DirectionSale, RegimeTravelAgency, RegimeGeneral)
	l := newLine("1", "1000")
	l.ProductType = ProductService
	l.UnitCost = dec("800")
	lines := []Line{l}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assertDec(t, "42", doc.Totals.VAT, "vat")
	assertDec(t, "1042", doc.Totals.Total, "total")
}

func TestCalculate_IntraCommunitySale(t *testing.T) {
	checker := &checkerMock{}
	checker.On("CheckVATNumber", mock.Anything, "FR", "FR40303265045").Return(true, nil).Once()

	calc := New(testCatalog(), WithVATNumberChecker(checker))
	doc := newDoc(DirectionSale, RegimeGeneral, RegimeSurcharge)
	doc.Partner.Country = "FR"
	doc.Partner.TaxID = "FR40303265045"
	lines := []Line{newLine("2", "100")}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))

	checker.AssertExpectations(t)
	assert.Equal(t, OperationIntraCommunity, doc.Operation)
	assert.Equal(t, "IVA0", lines[0].TaxCode)
	assert.Equal(t, "IVA21", lines[0].SourceTaxCode)
	assert.Equal(t, "E5", lines[0].ExemptionCode)
	assertDec(t, "0", doc.Totals.VAT, "vat")
	assertDec(t, "0", doc.Totals.Surcharge, "surcharge")
	assertDec(t, "200", doc.Totals.Total, "total")
}

func TestCalculate_IntraCommunityPurchaseUsesPurchaseExemption(t *testing.T) {
	checker := &checkerMock{}
	checker.On("CheckVATNumber", mock.Anything, "DE", "DE811907980").Return(true, nil)

	calc := New(testCatalog(), WithVATNumberChecker(checker))
	doc := newDoc(DirectionPurchase, RegimeGeneral, RegimeGeneral)
	doc.Partner.Country = "DE"
	doc.Partner.TaxID = "DE811907980"
	lines := []Line{newLine("2", "100")}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assert.Equal(t, OperationIntraCommunity, doc.Operation)
	assert.Equal(t, "E6", lines[0].ExemptionCode)
	assertDec(t, "0", doc.Totals.VAT, "vat")
}

func TestCalculate_VATCheckOutageFailsClosed(t *testing.T) {
	checker := &checkerMock{}
	checker.On("CheckVATNumber", mock.Anything, "FR", "FR40303265045").
		Return(false, errors.New("VIES unavailable"))

	calc := New(testCatalog(), WithVATNumberChecker(checker))
	doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
	doc.Partner.Country = "FR"
	doc.Partner.TaxID = "FR40303265045"
	lines := []Line{newLine("2", "100")}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assert.Equal(t, OperationNone, doc.Operation)
	assert.Equal(t, "IVA21", lines[0].TaxCode)
	assertDec(t, "242", doc.Totals.Total, "total")
}

func TestCalculate_InvalidVATNumberIsDomestic(t *testing.T) {
	checker := &checkerMock{}
	checker.On("CheckVATNumber", mock.Anything, "FR", "FR00000000000").Return(false, nil)

	calc := New(testCatalog(), WithVATNumberChecker(checker))
	doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
	doc.Partner.Country = "FR"
	doc.Partner.TaxID = "FR00000000000"
	lines := []Line{newLine("2", "100")}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assertDec(t, "242", doc.Totals.Total, "total")
}

func TestCalculate_ExportAndImport(t *testing.T) {
	calc := New(testCatalog())

	sale := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
	sale.Partner.Country = "US"
	saleLines := []Line{newLine("2", "100")}
	require.True(t, calc.Calculate(context.Background(), sale, saleLines, false))
	assert.Equal(t, OperationExport, sale.Operation)
	assert.Equal(t, "E2", saleLines[0].ExemptionCode)
	assert.Equal(t, "IVA0", saleLines[0].TaxCode)
	assertDec(t, "200", sale.Totals.Total, "export total")

	purchase := newDoc(DirectionPurchase, RegimeGeneral, RegimeGeneral)
	purchase.Partner.Country = "CN"
	purchaseLines := []Line{newLine("2", "100")}
	require.True(t, calc.Calculate(context.Background(), purchase, purchaseLines, false))
	assert.Equal(t, OperationImport, purchase.Operation)
	assert.Empty(t, purchaseLines[0].ExemptionCode)
	assert.Equal(t, "IVA0", purchaseLines[0].TaxCode)
	assertDec(t, "200", purchase.Totals.Total, "import total")
}

func TestCalculate_ForcedOperationIsKept(t *testing.T) {
	calc := New(testCatalog())
	doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
	doc.Partner.Country = "US"
	doc.Operation = OperationDomestic
	doc.OperationForced = true
	lines := []Line{newLine("2", "100")}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assert.Equal(t, OperationDomestic, doc.Operation)
	assertDec(t, "242", doc.Totals.Total, "total")
}

func TestCalculate_OperationChain(t *testing.T) {
	calc := New(testCatalog())

	doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
	doc.Company.OperationCode = OperationExempt
	lines := []Line{newLine("2", "100")}
	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assert.Equal(t, OperationExempt, doc.Operation)
	assertDec(t, "200", doc.Totals.Total, "company operation")

	doc = newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
	doc.Company.OperationCode = OperationExempt
	doc.WarehouseCompany = &Company{ID: uuid.New(), Regime: RegimeGeneral, OperationCode: OperationDomestic}
	lines = []Line{newLine("2", "100")}
	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assert.Equal(t, OperationDomestic, doc.Operation)
	assertDec(t, "242", doc.Totals.Total, "warehouse operation")

	doc.Partner.OperationCode = OperationExempt
	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assert.Equal(t, OperationExempt, doc.Operation)
	assertDec(t, "200", doc.Totals.Total, "partner operation")
}

func TestCalculate_Discounts(t *testing.T) {
	t.Run("document discount", func(t *testing.T) {
		calc := New(testCatalog())
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		doc.Discount1 = dec("10")
		lines := []Line{newLine("2", "100")}

		require.True(t, calc.Calculate(context.Background(), doc, lines, false))
		assertDec(t, "200", doc.Totals.NetBeforeDiscount, "net before discount")
		assertDec(t, "180", doc.Totals.Net, "net")
		assertDec(t, "37.8", doc.Totals.VAT, "vat")
		assertDec(t, "217.8", doc.Totals.Total, "total")
	})

	t.Run("line discount", func(t *testing.T) {
		calc := New(testCatalog())
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		l := newLine("2", "100")
		l.Discount1 = dec("10")
		lines := []Line{l}

		require.True(t, calc.Calculate(context.Background(), doc, lines, false))
		assertDec(t, "180", lines[0].Net, "line net")
		assertDec(t, "217.8", doc.Totals.Total, "total")
	})

	t.Run("surcharge with document discount", func(t *testing.T) {
		calc := New(testCatalog())
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeSurcharge)
		doc.Discount1 = dec("5")
		lines := []Line{newLine("2", "100")}

		require.True(t, calc.Calculate(context.Background(), doc, lines, false))
		assertDec(t, "190", doc.Totals.Net, "net")
		assertDec(t, "39.9", doc.Totals.VAT, "vat")
		assertDec(t, "9.88", doc.Totals.Surcharge, "surcharge")
		assertDec(t, "239.78", doc.Totals.Total, "total")
	})

	t.Run("surcharge with line discount", func(t *testing.T) {
		calc := New(testCatalog())
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeSurcharge)
		l := newLine("2", "100")
		l.Discount1 = dec("5")
		lines := []Line{l}

		require.True(t, calc.Calculate(context.Background(), doc, lines, false))
		assertDec(t, "9.88", doc.Totals.Surcharge, "surcharge")
		assertDec(t, "239.78", doc.Totals.Total, "total")
	})

	t.Run("cascading line discounts", func(t *testing.T) {
		calc := New(testCatalog())
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		l := newLine("3", "33.33")
		l.Discount1 = dec("10")
		l.Discount2 = dec("5")
		lines := []Line{l}

		require.True(t, calc.Calculate(context.Background(), doc, lines, false))
		// 3 * 33.33 * 0.9 * 0.95 = 85.49145
		assertDec(t, "85.49", lines[0].Net, "line net")
		assertDec(t, "17.95", lines[0].VAT, "line vat")
	})
}

func TestCalculate_Withholding(t *testing.T) {
	t.Run("no discount", func(t *testing.T) {
		calc := New(testCatalog())
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		l := newLine("2", "100")
		l.IRPFRate = dec("15")
		lines := []Line{l}

		require.True(t, calc.Calculate(context.Background(), doc, lines, false))
		assertDec(t, "30", doc.Totals.IRPF, "irpf")
		assertDec(t, "212", doc.Totals.Total, "total")
	})

	t.Run("document discount", func(t *testing.T) {
		calc := New(testCatalog())
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		doc.Discount1 = dec("10")
		l := newLine("2", "100")
		l.IRPFRate = dec("15")
		lines := []Line{l}

		require.True(t, calc.Calculate(context.Background(), doc, lines, false))
		assertDec(t, "180", doc.Totals.Net, "net")
		assertDec(t, "37.8", doc.Totals.VAT, "vat")
		assertDec(t, "27", doc.Totals.IRPF, "irpf")
		assertDec(t, "190.8", doc.Totals.Total, "total")
	})

	t.Run("withholding is computed on net under margin scheme", func(t *testing.T) {
		calc := New(testCatalog())
		doc := newDoc(DirectionSale, RegimeUsedGoods, RegimeGeneral)
		l := newLine("2", "100")
		l.ProductType = ProductSecondHand
		l.UnitCost = dec("60")
		l.IRPFRate = dec("15")
		lines := []Line{l}

		require.True(t, calc.Calculate(context.Background(), doc, lines, false))
		assertDec(t, "30", lines[0].IRPF, "line irpf")
	})
}

func TestCalculate_SuppliedLines(t *testing.T) {
	calc := New(testCatalog())
	doc := newDoc(DirectionSale, RegimeGeneral, RegimeSurcharge)
	doc.Discount1 = dec("10")
	supplied := newLine("1", "25")
	supplied.Supplied = true
	supplied.IRPFRate = dec("15")
	lines := []Line{newLine("2", "100"), supplied}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))

	assertDec(t, "0", lines[1].VAT, "supplied vat")
	assertDec(t, "0", lines[1].IRPF, "supplied irpf")
	assertDec(t, "25", doc.Totals.Supplied, "supplied")
	assertDec(t, "180", doc.Totals.Net, "net")
	// 180 + 37.8 + 9.36 + 25
	assertDec(t, "252.16", doc.Totals.Total, "total")
	assert.Len(t, doc.Totals.Subtotals, 1)
}

func TestCalculate_Subtotals(t *testing.T) {
	calc := New(testCatalog())
	doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
	reduced := newLine("1", "50")
	reduced.TaxCode = "IVA10"
	lines := []Line{newLine("2", "100"), reduced, newLine("1", "10")}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))

	require.Len(t, doc.Totals.Subtotals, 2)
	assert.Equal(t, "IVA10", doc.Totals.Subtotals[0].TaxCode)
	assertDec(t, "50", doc.Totals.Subtotals[0].Base, "IVA10 base")
	assertDec(t, "5", doc.Totals.Subtotals[0].VAT, "IVA10 vat")
	assert.Equal(t, "IVA21", doc.Totals.Subtotals[1].TaxCode)
	assertDec(t, "210", doc.Totals.Subtotals[1].Base, "IVA21 base")
	assertDec(t, "44.1", doc.Totals.Subtotals[1].VAT, "IVA21 vat")

	assertDec(t, "260", doc.Totals.Net, "net")
	assertDec(t, "49.1", doc.Totals.VAT, "vat")
	assertDec(t, "309.1", doc.Totals.Total, "total")
}

func TestCalculate_Idempotent(t *testing.T) {
	calc := New(testCatalog())
	doc := newDoc(DirectionSale, RegimeGeneral, RegimeSurcharge)
	doc.Discount1 = dec("7.5")
	doc.Discount2 = dec("3")
	a := newLine("3", "19.99")
	a.Discount1 = dec("12.5")
	a.IRPFRate = dec("15")
	b := newLine("7", "3.33")
	b.TaxCode = "IVA4"
	lines := []Line{a, b}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	first := doc.Totals
	firstLines := append([]Line(nil), lines...)

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assert.True(t, first.Total.Equal(doc.Totals.Total), "expected %s, got %s", first.Total, doc.Totals.Total)
	assert.True(t, first.VAT.Equal(doc.Totals.VAT))
	assert.True(t, first.Surcharge.Equal(doc.Totals.Surcharge))
	assert.True(t, first.IRPF.Equal(doc.Totals.IRPF))
	for i := range lines {
		assert.True(t, firstLines[i].Net.Equal(lines[i].Net))
		assert.Equal(t, firstLines[i].TaxCode, lines[i].TaxCode)
	}
}

func TestCalculate_TaxZoneRoundTrip(t *testing.T) {
	catalog := testCatalog()
	catalog.AddZoneRule(companyID, TaxZoneRule{
		SourceTaxCode: "IVA21",
		DestTaxCode:   "IVA0",
		Country:       "ES",
		Province:      "Santa Cruz de Tenerife",
		Priority:      10,
	})
	calc := New(catalog)

	doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
	doc.Country = "ES"
	doc.Province = "santa cruz de tenerife"
	lines := []Line{newLine("2", "100")}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assert.Equal(t, "IVA0", lines[0].TaxCode)
	assertDec(t, "200", doc.Totals.Total, "remapped total")

	doc.Province = "Madrid"
	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assert.Equal(t, "IVA21", lines[0].TaxCode)
	assertDec(t, "242", doc.Totals.Total, "original total")
}

func TestCalculate_Rejections(t *testing.T) {
	t.Run("not editable", func(t *testing.T) {
		calc := New(testCatalog())
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		doc.Editable = false
		doc.Totals.Total = dec("1")
		lines := []Line{newLine("2", "100")}

		assert.False(t, calc.Calculate(context.Background(), doc, lines, false))
		assertDec(t, "1", doc.Totals.Total, "total")
		assert.True(t, lines[0].Net.IsZero())

		_, err := calc.Recalculate(context.Background(), doc, lines)
		assert.ErrorIs(t, err, ErrNotEditable)
	})

	t.Run("missing partner", func(t *testing.T) {
		calc := New(testCatalog())
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		doc.Partner = nil
		lines := []Line{newLine("2", "100")}

		assert.False(t, calc.Calculate(context.Background(), doc, lines, false))
		_, err := calc.Recalculate(context.Background(), doc, lines)
		assert.ErrorIs(t, err, ErrMissingPartner)
	})

	t.Run("unknown tax code", func(t *testing.T) {
		calc := New(testCatalog())
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		l := newLine("2", "100")
		l.TaxCode = "NOPE"
		lines := []Line{newLine("1", "10"), l}

		assert.False(t, calc.Calculate(context.Background(), doc, lines, false))
		assert.True(t, lines[0].Net.IsZero(), "no line may be mutated")
		_, err := calc.Recalculate(context.Background(), doc, lines)
		assert.ErrorIs(t, err, ErrUnknownTaxCode)
	})

	t.Run("invalid discount", func(t *testing.T) {
		calc := New(testCatalog())
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		doc.Discount1 = dec("120")

		_, err := calc.Recalculate(context.Background(), doc, []Line{newLine("1", "10")})
		assert.ErrorIs(t, err, ErrInvalidDocument)
	})

	t.Run("invalid direction", func(t *testing.T) {
		calc := New(testCatalog())
		doc := newDoc("lease", RegimeGeneral, RegimeGeneral)

		_, err := calc.Recalculate(context.Background(), doc, nil)
		assert.ErrorIs(t, err, ErrInvalidDocument)
	})
}

func TestCalculate_LinesWithoutTaxCodeKeepRates(t *testing.T) {
	calc := New(testCatalog())
	doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
	l := newLine("1", "100")
	l.TaxCode = ""
	l.VATRate = dec("7")
	lines := []Line{l}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assertDec(t, "7", lines[0].VAT, "vat")
}

func TestCalculate_BlankExemptionFromPartnerThenCompany(t *testing.T) {
	calc := New(testCatalog())
	doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
	doc.Company.ExemptionCode = "E1"
	lines := []Line{newLine("1", "10")}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assert.Equal(t, "E1", lines[0].ExemptionCode)

	doc.Partner.ExemptionCode = "E4"
	lines = []Line{newLine("1", "10")}
	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assert.Equal(t, "E4", lines[0].ExemptionCode)
}

func TestCalculate_Persist(t *testing.T) {
	t.Run("writes before mutating", func(t *testing.T) {
		writer := &writerMock{}
		writer.On("SaveCalculation", mock.Anything,
			mock.MatchedBy(func(d *Document) bool { return d.Totals.Total.Equal(dec("242")) }),
			mock.MatchedBy(func(ls []Line) bool { return len(ls) == 1 && ls[0].Net.Equal(dec("200")) }),
		).Return(nil).Once()

		calc := New(testCatalog(), WithLineWriter(writer))
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		lines := []Line{newLine("2", "100")}

		require.True(t, calc.Calculate(context.Background(), doc, lines, true))
		writer.AssertExpectations(t)
		assertDec(t, "242", doc.Totals.Total, "total")
	})

	t.Run("write failure leaves state untouched", func(t *testing.T) {
		writer := &writerMock{}
		writer.On("SaveCalculation", mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("connection reset"))

		calc := New(testCatalog(), WithLineWriter(writer))
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		lines := []Line{newLine("2", "100")}

		assert.False(t, calc.Calculate(context.Background(), doc, lines, true))
		assert.True(t, doc.Totals.Total.IsZero())
		assert.True(t, lines[0].Net.IsZero())
	})

	t.Run("no writer configured", func(t *testing.T) {
		calc := New(testCatalog())
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)

		assert.False(t, calc.Calculate(context.Background(), doc, []Line{newLine("2", "100")}, true))
	})

	t.Run("preview never writes", func(t *testing.T) {
		writer := &writerMock{}
		calc := New(testCatalog(), WithLineWriter(writer))
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)

		require.True(t, calc.Calculate(context.Background(), doc, []Line{newLine("2", "100")}, false))
		writer.AssertNotCalled(t, "SaveCalculation", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestNewProductLine(t *testing.T) {
	catalog := testCatalog()
	catalog.AddTariff(TariffRule{Code: "WHOLESALE", Basis: TariffBasisCost, Percentage: dec("10"), Fixed: dec("1")})
	catalog.AddTariff(TariffRule{Code: "GROUP", Basis: TariffBasisPrice, Percentage: dec("10"), Fixed: dec("1")})
	catalog.AddZoneRule(companyID, TaxZoneRule{SourceTaxCode: "IVA21", DestTaxCode: "IVA10", Country: "PT", Priority: 1})
	calc := New(catalog)

	product := Product{
		Reference:     "SKU-1",
		Description:   "Widget",
		Price:         dec("100"),
		Cost:          dec("50"),
		TaxCode:       "IVA21",
		ExemptionCode: "",
		Type:          ProductGeneral,
	}

	t.Run("partner tariff and retention", func(t *testing.T) {
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		doc.Partner.TariffCode = "WHOLESALE"
		doc.Partner.GroupTariffCode = "GROUP"
		doc.Partner.RetentionCode = "IRPF15"
		doc.Partner.ExemptionCode = "E4"

		l, err := calc.NewProductLine(doc, product, dec("2"))
		require.NoError(t, err)
		assertDec(t, "56", l.UnitPrice, "unit price")
		assertDec(t, "50", l.UnitCost, "unit cost")
		assertDec(t, "21", l.VATRate, "vat rate")
		assertDec(t, "5.2", l.SurchargeRate, "surcharge rate")
		assertDec(t, "15", l.IRPFRate, "irpf rate")
		assert.Equal(t, "E4", l.ExemptionCode)
		assert.Equal(t, "SKU-1", l.ProductRef)
	})

	t.Run("group tariff fallback", func(t *testing.T) {
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		doc.Partner.TariffCode = "MISSING"
		doc.Partner.GroupTariffCode = "GROUP"

		l, err := calc.NewProductLine(doc, product, dec("1"))
		require.NoError(t, err)
		assertDec(t, "89", l.UnitPrice, "unit price")
	})

	t.Run("zone remap", func(t *testing.T) {
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		doc.Partner.Country = "PT"

		l, err := calc.NewProductLine(doc, product, dec("1"))
		require.NoError(t, err)
		assert.Equal(t, "IVA21", l.SourceTaxCode)
		assert.Equal(t, "IVA10", l.TaxCode)
		assertDec(t, "10", l.VATRate, "vat rate")
	})

	t.Run("unknown tax code", func(t *testing.T) {
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		p := product
		p.TaxCode = "NOPE"

		_, err := calc.NewProductLine(doc, p, dec("1"))
		assert.ErrorIs(t, err, ErrUnknownTaxCode)
	})
}

func TestCalculate_CrossBorderExemptionClearedWhenDomestic(t *testing.T) {
	calc := New(testCatalog())
	doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
	doc.Partner.Country = "US"
	lines := []Line{newLine("1", "100")}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assert.Equal(t, "E2", lines[0].ExemptionCode)

	doc.Partner.Country = doc.Company.Country
	require.True(t, calc.Calculate(context.Background(), doc, lines, false))
	assert.Equal(t, OperationNone, doc.Operation)
	assert.Empty(t, lines[0].ExemptionCode)
	assert.Equal(t, "IVA21", lines[0].TaxCode)
}
