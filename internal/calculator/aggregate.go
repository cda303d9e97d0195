package calculator

import (
	"sort"

	"github.com/shopspring/decimal"
)

type subtotalKey struct {
	code      string
	vat       string
	surcharge string
}

// Aggregate folds computed lines into document totals.
//
// The document discount tiers apply to the summed net, VAT and surcharge.
// Lines are also grouped per (tax code, VAT rate, surcharge rate); each group
// is discounted on its own and the rounding difference against the totals is
// carried by the largest group, so the breakdown always adds up. Supplied
// lines bypass the groups, the document discount and the cost.
func (p RoundingPolicy) Aggregate(dir Direction, discount1, discount2 decimal.Decimal, lines []Line) Totals {
	groups := make(map[subtotalKey]*Subtotal)
	var order []subtotalKey

	var (
		netBefore = decimal.Zero
		vat       = decimal.Zero
		surcharge = decimal.Zero
		irpf      = decimal.Zero
		supplied  = decimal.Zero
		cost      = decimal.Zero
	)

	for _, l := range lines {
		if l.Supplied {
			supplied = p.Round(supplied.Add(l.Net))
			continue
		}
		cost = cost.Add(l.Quantity.Mul(l.UnitCost))
		netBefore = p.Round(netBefore.Add(l.Net))
		vat = p.Round(vat.Add(l.VAT))
		surcharge = p.Round(surcharge.Add(l.Surcharge))
		irpf = p.Round(irpf.Add(l.IRPF))

		key := subtotalKey{code: l.TaxCode, vat: l.VATRate.String(), surcharge: l.SurchargeRate.String()}
		st, ok := groups[key]
		if !ok {
			st = &Subtotal{
				TaxCode:       l.TaxCode,
				VATRate:       l.VATRate,
				SurchargeRate: l.SurchargeRate,
				Net:           decimal.Zero,
				Base:          decimal.Zero,
				VAT:           decimal.Zero,
				Surcharge:     decimal.Zero,
			}
			groups[key] = st
			order = append(order, key)
		}
		st.Net = p.Round(st.Net.Add(l.Net))
		st.Base = p.Round(st.Base.Add(l.TaxBase))
		st.VAT = p.Round(st.VAT.Add(l.VAT))
		st.Surcharge = p.Round(st.Surcharge.Add(l.Surcharge))
	}

	t := Totals{
		NetBeforeDiscount: netBefore,
		Net:               netBefore,
		VAT:               vat,
		Surcharge:         surcharge,
		IRPF:              irpf,
		Supplied:          supplied,
		Cost:              p.Round(cost),
		Profit:            decimal.Zero,
		Subtotals:         make([]Subtotal, 0, len(order)),
	}
	for _, key := range order {
		t.Subtotals = append(t.Subtotals, *groups[key])
	}
	sortSubtotals(t.Subtotals)

	if !discount1.IsZero() || !discount2.IsZero() {
		factor := discountFactor(discount1, discount2)
		t.Net = p.Round(netBefore.Mul(factor))
		t.VAT = p.Round(vat.Mul(factor))
		t.Surcharge = p.Round(surcharge.Mul(factor))
		t.IRPF = p.Round(irpf.Mul(factor))
		p.discountSubtotals(t.Subtotals, factor, t.Net, t.VAT, t.Surcharge)
	}

	if dir != DirectionPurchase {
		t.Profit = p.Round(t.Net.Sub(t.Cost))
	}

	t.Total = p.Sum(t.Net, t.VAT, t.Surcharge, t.IRPF.Neg(), t.Supplied)
	return t
}

// discountSubtotals applies factor to every subtotal and moves the cents lost
// to per-group rounding into the group with the largest net.
func (p RoundingPolicy) discountSubtotals(subtotals []Subtotal, factor, net, vat, surcharge decimal.Decimal) {
	if len(subtotals) == 0 {
		return
	}

	largest := 0
	sumNet, sumVAT, sumSurcharge := decimal.Zero, decimal.Zero, decimal.Zero
	for i := range subtotals {
		st := &subtotals[i]
		st.Net = p.Round(st.Net.Mul(factor))
		st.Base = p.Round(st.Base.Mul(factor))
		st.VAT = p.Round(st.VAT.Mul(factor))
		st.Surcharge = p.Round(st.Surcharge.Mul(factor))

		sumNet = sumNet.Add(st.Net)
		sumVAT = sumVAT.Add(st.VAT)
		sumSurcharge = sumSurcharge.Add(st.Surcharge)
		if st.Net.Abs().GreaterThan(subtotals[largest].Net.Abs()) {
			largest = i
		}
	}

	st := &subtotals[largest]
	if diff := net.Sub(sumNet); !diff.IsZero() {
		st.Net = st.Net.Add(diff)
		if st.Base.Equal(st.Net.Sub(diff)) {
			st.Base = st.Net
		}
	}
	st.VAT = st.VAT.Add(vat.Sub(sumVAT))
	st.Surcharge = st.Surcharge.Add(surcharge.Sub(sumSurcharge))
}

// sortSubtotals orders the breakdown by tax code, then numerically by rate.
func sortSubtotals(subtotals []Subtotal) {
	sort.SliceStable(subtotals, func(i, j int) bool {
		a, b := subtotals[i], subtotals[j]
		if a.TaxCode != b.TaxCode {
			return a.TaxCode < b.TaxCode
		}
		if c := a.VATRate.Cmp(b.VATRate); c != 0 {
			return c < 0
		}
		return a.SurchargeRate.Cmp(b.SurchargeRate) < 0
	})
}
