package calculator

import "github.com/shopspring/decimal"

// LineInput is everything a line amount depends on.
type LineInput struct {
	Quantity      decimal.Decimal
	UnitPrice     decimal.Decimal
	Discount1     decimal.Decimal
	Discount2     decimal.Decimal
	UnitCost      decimal.Decimal
	VATRate       decimal.Decimal
	SurchargeRate decimal.Decimal
	IRPFRate      decimal.Decimal
	Supplied      bool
}

// LineAmounts are the computed amounts of one line.
type LineAmounts struct {
	Net       decimal.Decimal
	TaxBase   decimal.Decimal
	VAT       decimal.Decimal
	Surcharge decimal.Decimal
	IRPF      decimal.Decimal
}

// ComputeLine computes a line's amounts under a regime decision.
//
// The net is round(qty * price * (1-d1/100) * (1-d2/100)). The tax base is
// the net, or the margin round(qty * max(netUnit - cost, 0)) under a margin
// scheme. Withholding is always computed on the net. Supplied lines carry
// no tax at all.
func (p RoundingPolicy) ComputeLine(in LineInput, d Decision) LineAmounts {
	netUnit := in.UnitPrice.Mul(discountFactor(in.Discount1, in.Discount2))
	net := p.Round(in.Quantity.Mul(netUnit))

	if in.Supplied {
		return LineAmounts{Net: net, TaxBase: decimal.Zero, VAT: decimal.Zero, Surcharge: decimal.Zero, IRPF: decimal.Zero}
	}

	out := LineAmounts{
		Net:       net,
		TaxBase:   net,
		VAT:       decimal.Zero,
		Surcharge: decimal.Zero,
		IRPF:      p.Percent(net, in.IRPFRate),
	}

	if d.UsesMargin() {
		// A unit sold below cost has no taxable margin; the quantity keeps
		// its sign so credit lines mirror the original sale.
		unitMargin := netUnit.Sub(in.UnitCost)
		if unitMargin.IsNegative() {
			unitMargin = decimal.Zero
		}
		out.TaxBase = p.Round(in.Quantity.Mul(unitMargin))
	}

	if d.ChargesVAT() {
		out.VAT = p.Percent(out.TaxBase, in.VATRate)
	}
	if d.Surcharge {
		out.Surcharge = p.Percent(out.TaxBase, in.SurchargeRate)
	}
	return out
}

func lineInput(l Line) LineInput {
	return LineInput{
		Quantity:      l.Quantity,
		UnitPrice:     l.UnitPrice,
		Discount1:     l.Discount1,
		Discount2:     l.Discount2,
		UnitCost:      l.UnitCost,
		VATRate:       l.VATRate,
		SurchargeRate: l.SurchargeRate,
		IRPFRate:      l.IRPFRate,
		Supplied:      l.Supplied,
	}
}
