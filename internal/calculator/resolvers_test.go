package calculator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestResolveTaxZone(t *testing.T) {
	rules := []TaxZoneRule{
		{SourceTaxCode: "IVA21", DestTaxCode: "IGIC7", Country: "ES", Province: "Las Palmas", Priority: 10},
		{SourceTaxCode: "IVA21", DestTaxCode: "IVA0", Country: "ES", Province: "Las Palmas", Priority: 5},
		{SourceTaxCode: "IVA21", DestTaxCode: "IPSI4", Country: "ES", Province: "Ceuta", Priority: 10},
		{SourceTaxCode: "IVA21", DestTaxCode: "IVA0", Country: "AD", Priority: 1},
		{SourceTaxCode: "IVA10", DestTaxCode: "IGIC3", Country: "", Province: "Las Palmas", Priority: 1},
		{SourceTaxCode: "IVA4", DestTaxCode: "FIRST", Country: "PT", Priority: 3},
		{SourceTaxCode: "IVA4", DestTaxCode: "SECOND", Country: "PT", Priority: 3},
	}

	tests := []struct {
		name     string
		source   string
		country  string
		province string
		want     string
		matched  bool
	}{
		{"highest priority wins", "IVA21", "ES", "Las Palmas", "IGIC7", true},
		{"province is case-insensitive", "IVA21", "ES", "  las palmas ", "IGIC7", true},
		{"other province", "IVA21", "ES", "Ceuta", "IPSI4", true},
		{"no province match", "IVA21", "ES", "Madrid", "IVA21", false},
		{"country-only rule", "IVA21", "AD", "Andorra la Vella", "IVA0", true},
		{"country is case-sensitive", "IVA21", "ad", "", "IVA21", false},
		{"empty country matches any", "IVA10", "XX", "LAS PALMAS", "IGIC3", true},
		{"first rule wins a tie", "IVA4", "PT", "", "FIRST", true},
		{"unknown source", "IVA5", "ES", "Las Palmas", "IVA5", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, matched := ResolveTaxZone(rules, tt.source, tt.country, tt.province)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.matched, matched)
		})
	}
}

func TestResolveExemption(t *testing.T) {
	company := Company{ExemptionCode: "E1"}

	assert.Equal(t, "E3", ResolveExemption("E3", &TradingPartner{ExemptionCode: "E4"}, company))
	assert.Equal(t, "E4", ResolveExemption("", &TradingPartner{ExemptionCode: "E4"}, company))
	assert.Equal(t, "E1", ResolveExemption("", &TradingPartner{}, company))
	assert.Equal(t, "E1", ResolveExemption("", nil, company))
	assert.Empty(t, ResolveExemption("", nil, Company{}))
}

func TestOperationResolver(t *testing.T) {
	settings := DefaultSettings()

	t.Run("same country never calls the checker", func(t *testing.T) {
		checker := &checkerMock{}
		r := NewOperationResolver(settings, checker, nil)
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)

		res := r.Resolve(context.Background(), doc)
		assert.Equal(t, OperationNone, res.Operation)
		assert.False(t, res.ForceZeroRate)
		checker.AssertNotCalled(t, "CheckVATNumber", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("EU partner without tax id", func(t *testing.T) {
		checker := &checkerMock{}
		r := NewOperationResolver(settings, checker, nil)
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		doc.Partner.Country = "IT"
		doc.Partner.TaxID = ""

		res := r.Resolve(context.Background(), doc)
		assert.Equal(t, OperationNone, res.Operation)
		checker.AssertNotCalled(t, "CheckVATNumber", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("EU partner without checker", func(t *testing.T) {
		r := NewOperationResolver(settings, nil, nil)
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		doc.Partner.Country = "IT"

		res := r.Resolve(context.Background(), doc)
		assert.Equal(t, OperationNone, res.Operation)
	})

	t.Run("country detection overrides partner code", func(t *testing.T) {
		r := NewOperationResolver(settings, nil, nil)
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		doc.Partner.OperationCode = OperationDomestic
		doc.Partner.Country = "CH"

		res := r.Resolve(context.Background(), doc)
		assert.Equal(t, OperationExport, res.Operation)
		assert.True(t, res.ForceZeroRate)
		assert.Equal(t, "E2", res.ExemptionCode)
	})

	t.Run("country codes are case-insensitive", func(t *testing.T) {
		checker := &checkerMock{}
		checker.On("CheckVATNumber", mock.Anything, "IT", "IT01234567890").Return(true, nil)
		r := NewOperationResolver(settings, checker, nil)
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		doc.Partner.Country = "it"
		doc.Partner.TaxID = "IT01234567890"

		res := r.Resolve(context.Background(), doc)
		assert.Equal(t, OperationIntraCommunity, res.Operation)
		checker.AssertExpectations(t)

		doc = newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		doc.Partner.Country = "es"
		res = r.Resolve(context.Background(), doc)
		assert.Equal(t, OperationNone, res.Operation)
	})

	t.Run("company without country skips detection", func(t *testing.T) {
		checker := &checkerMock{}
		r := NewOperationResolver(settings, checker, nil)
		doc := newDoc(DirectionSale, RegimeGeneral, RegimeGeneral)
		doc.Company.Country = ""

		res := r.Resolve(context.Background(), doc)
		assert.Equal(t, OperationNone, res.Operation)
		assert.False(t, res.ForceZeroRate)
		checker.AssertNotCalled(t, "CheckVATNumber", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("forced intra-community keeps its overrides", func(t *testing.T) {
		r := NewOperationResolver(settings, nil, nil)
		doc := newDoc(DirectionPurchase, RegimeGeneral, RegimeGeneral)
		doc.Operation = OperationIntraCommunity
		doc.OperationForced = true

		res := r.Resolve(context.Background(), doc)
		assert.Equal(t, OperationIntraCommunity, res.Operation)
		assert.True(t, res.ForceZeroRate)
		assert.Equal(t, "E6", res.ExemptionCode)
	})
}

func TestRoundingPolicy(t *testing.T) {
	p := NewRoundingPolicy(2)

	assertDec(t, "0.13", p.Round(dec("0.125")), "half up")
	assertDec(t, "-0.13", p.Round(dec("-0.125")), "half away from zero")
	assertDec(t, "10.4", p.Percent(dec("200"), dec("5.2")), "percent")
	assertDec(t, "0", p.Percent(dec("200"), dec("0")), "zero rate")
	assertDec(t, "0.02", p.Sum(dec("0.005"), dec("0.005")), "stepwise sum")
	assertDec(t, "212", p.Sum(dec("200"), dec("42"), dec("-30")), "sum")

	assert.Equal(t, DefaultDecimals, NewRoundingPolicy(-1).Places)
}

func TestComputeLine(t *testing.T) {
	p := NewRoundingPolicy(2)
	in := LineInput{
		Quantity:      dec("2"),
		UnitPrice:     dec("100"),
		UnitCost:      dec("60"),
		VATRate:       dec("21"),
		SurchargeRate: dec("5.2"),
		IRPFRate:      dec("15"),
	}

	got := p.ComputeLine(in, Decision{Outcome: OutcomeStandard, Surcharge: true})
	assertDec(t, "200", got.Net, "net")
	assertDec(t, "42", got.VAT, "vat")
	assertDec(t, "10.4", got.Surcharge, "surcharge")
	assertDec(t, "30", got.IRPF, "irpf")

	got = p.ComputeLine(in, Decision{Outcome: OutcomeMarginSale})
	assertDec(t, "80", got.TaxBase, "margin base")
	assertDec(t, "16.8", got.VAT, "margin vat")
	assertDec(t, "0", got.Surcharge, "margin surcharge")

	got = p.ComputeLine(in, Decision{Outcome: OutcomeMarginPurchaseSuppressed})
	assertDec(t, "200", got.TaxBase, "suppressed base")
	assertDec(t, "0", got.VAT, "suppressed vat")
	assertDec(t, "30", got.IRPF, "suppressed irpf")

	in.Supplied = true
	got = p.ComputeLine(in, Decision{Outcome: OutcomeStandard, Surcharge: true})
	assertDec(t, "200", got.Net, "supplied net")
	assertDec(t, "0", got.VAT, "supplied vat")
	assertDec(t, "0", got.IRPF, "supplied irpf")
}
