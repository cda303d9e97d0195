package calculator

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sumSubtotals(subtotals []Subtotal) (net, vat, surcharge decimal.Decimal) {
	net, vat, surcharge = decimal.Zero, decimal.Zero, decimal.Zero
	for _, st := range subtotals {
		net = net.Add(st.Net)
		vat = vat.Add(st.VAT)
		surcharge = surcharge.Add(st.Surcharge)
	}
	return net, vat, surcharge
}

func TestCalculate_DocumentDiscountAppliesToSummedTotals(t *testing.T) {
	calc := New(testCatalog())
	doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
	doc.Discount1 = dec("50")
	general := newLine("1", "0.05")
	reduced := newLine("1", "0.05")
	reduced.TaxCode = "IVA10"
	lines := []Line{general, reduced}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))

	// round(0.10 * 0.5), not round(0.05 * 0.5) twice
	assertDec(t, "0.1", doc.Totals.NetBeforeDiscount, "net before discount")
	assertDec(t, "0.05", doc.Totals.Net, "net")
	assertDec(t, "0.01", doc.Totals.VAT, "vat")
	assertDec(t, "0.06", doc.Totals.Total, "total")

	require.Len(t, doc.Totals.Subtotals, 2)
	net, vat, surcharge := sumSubtotals(doc.Totals.Subtotals)
	assertDec(t, "0.05", net, "subtotal net sum")
	assertDec(t, "0.01", vat, "subtotal vat sum")
	assertDec(t, "0", surcharge, "subtotal surcharge sum")
}

func TestCalculate_DocumentDiscountMultiRate(t *testing.T) {
	calc := New(testCatalog())
	doc := newDoc(DirectionSale, RegimeGeneral, RegimeSurcharge)
	doc.Discount1 = dec("7")
	doc.Discount2 = dec("3")
	reduced := newLine("3", "10.33")
	reduced.TaxCode = "IVA10"
	super := newLine("1", "7.77")
	super.TaxCode = "IVA4"
	lines := []Line{newLine("2", "19.99"), reduced, super}

	require.True(t, calc.Calculate(context.Background(), doc, lines, false))

	factor := dec("0.93").Mul(dec("0.97"))
	p := NewRoundingPolicy(DefaultDecimals)
	// 39.98 + 30.99 + 7.77
	assertDec(t, "78.74", doc.Totals.NetBeforeDiscount, "net before discount")
	assertDec(t, p.Round(dec("78.74").Mul(factor)).String(), doc.Totals.Net, "net")

	net, vat, surcharge := sumSubtotals(doc.Totals.Subtotals)
	assert.True(t, net.Equal(doc.Totals.Net), "subtotal net %s != %s", net, doc.Totals.Net)
	assert.True(t, vat.Equal(doc.Totals.VAT), "subtotal vat %s != %s", vat, doc.Totals.VAT)
	assert.True(t, surcharge.Equal(doc.Totals.Surcharge), "subtotal surcharge %s != %s", surcharge, doc.Totals.Surcharge)
}

func TestAggregate_SuppliedLinesHaveNoCost(t *testing.T) {
	p := NewRoundingPolicy(DefaultDecimals)
	lines := []Line{
		{Quantity: dec("2"), UnitCost: dec("60"), Net: dec("200"), TaxBase: dec("200"), VAT: dec("42"), TaxCode: "IVA21", VATRate: dec("21")},
		{Quantity: dec("1"), UnitCost: dec("25"), Net: dec("25"), Supplied: true},
	}

	got := p.Aggregate(DirectionSale, decimal.Zero, decimal.Zero, lines)

	assertDec(t, "120", got.Cost, "cost")
	assertDec(t, "80", got.Profit, "profit")
	assertDec(t, "25", got.Supplied, "supplied")
	assertDec(t, "267", got.Total, "total")
}

func TestAggregate_SubtotalsOrderedByNumericRate(t *testing.T) {
	p := NewRoundingPolicy(DefaultDecimals)
	line := func(rate string) Line {
		return Line{Quantity: dec("1"), Net: dec("10"), TaxBase: dec("10"), TaxCode: "MIX", VATRate: dec(rate)}
	}
	lines := []Line{line("21"), line("4"), line("10")}

	got := p.Aggregate(DirectionSale, decimal.Zero, decimal.Zero, lines)

	require.Len(t, got.Subtotals, 3)
	assertDec(t, "4", got.Subtotals[0].VATRate, "first rate")
	assertDec(t, "10", got.Subtotals[1].VATRate, "second rate")
	assertDec(t, "21", got.Subtotals[2].VATRate, "third rate")
}
