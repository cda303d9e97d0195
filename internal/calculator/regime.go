package calculator

// Outcome is the tax treatment chosen by the regime decision table.
type Outcome int

const (
	// OutcomeStandard charges VAT on the full net.
	OutcomeStandard Outcome = iota
	// OutcomeMarginSale charges VAT on the margin (price - cost).
	OutcomeMarginSale
	// OutcomeMarginPurchaseSuppressed is a used-goods purchase: no VAT.
	OutcomeMarginPurchaseSuppressed
	// OutcomeNoTax is an exempt or cross-border operation: no VAT.
	OutcomeNoTax
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStandard:
		return "standard"
	case OutcomeMarginSale:
		return "margin_sale"
	case OutcomeMarginPurchaseSuppressed:
		return "margin_purchase_suppressed"
	case OutcomeNoTax:
		return "no_tax"
	}
	return "unknown"
}

// Decision is the regime decision for a set of lines.
type Decision struct {
	Outcome Outcome
	// Surcharge is only ever true together with OutcomeStandard.
	Surcharge bool
}

// ChargesVAT reports whether VAT is applied at all.
func (d Decision) ChargesVAT() bool {
	return d.Outcome == OutcomeStandard || d.Outcome == OutcomeMarginSale
}

// UsesMargin reports whether the tax base is the margin.
func (d Decision) UsesMargin() bool {
	return d.Outcome == OutcomeMarginSale
}

// RegimeInput carries the signals the decision table reads.
type RegimeInput struct {
	Direction     Direction
	CompanyRegime Regime
	PartnerRegime Regime
	Operation     Operation
	ProductType   ProductType
}

// ResolveRegime evaluates the decision table. Rows are checked top to
// bottom and the first match wins.
//
// A company under the surcharge regime never charges surcharge on its own
// sales. On purchases surcharge is only incurred when both company and
// supplier are under the surcharge regime.
func ResolveRegime(in RegimeInput) Decision {
	sale := in.Direction != DirectionPurchase

	switch {
	case in.Operation.SuppressesVAT():
		return Decision{Outcome: OutcomeNoTax}
	case in.CompanyRegime == RegimeExempt || in.PartnerRegime == RegimeExempt:
		return Decision{Outcome: OutcomeNoTax}
	case in.CompanyRegime == RegimeUsedGoods && !sale:
		return Decision{Outcome: OutcomeMarginPurchaseSuppressed}
	case in.CompanyRegime == RegimeUsedGoods && in.ProductType == ProductSecondHand:
		return Decision{Outcome: OutcomeMarginSale}
	case in.CompanyRegime == RegimeTravelAgency && sale:
		return Decision{Outcome: OutcomeMarginSale}
	case sale && in.CompanyRegime != RegimeSurcharge && in.PartnerRegime == RegimeSurcharge:
		return Decision{Outcome: OutcomeStandard, Surcharge: true}
	case !sale && in.CompanyRegime == RegimeSurcharge && in.PartnerRegime == RegimeSurcharge:
		return Decision{Outcome: OutcomeStandard, Surcharge: true}
	}
	// general, agrarian, simplified and cash-criteria regimes only differ in
	// when VAT is recognised, not in how much.
	return Decision{Outcome: OutcomeStandard}
}

// DocumentRegime holds the decisions resolved once for a document. Only the
// product type varies between its lines.
type DocumentRegime struct {
	general    Decision
	secondHand Decision
}

// ResolveDocumentRegime resolves the decision table for a document and its
// effective operation.
func ResolveDocumentRegime(doc *Document, op Operation) DocumentRegime {
	in := RegimeInput{
		Direction:     doc.Direction,
		CompanyRegime: doc.Company.Regime,
		Operation:     op,
	}
	if doc.Partner != nil {
		in.PartnerRegime = doc.Partner.Regime
	}

	in.ProductType = ProductGeneral
	general := ResolveRegime(in)
	in.ProductType = ProductSecondHand
	secondHand := ResolveRegime(in)

	return DocumentRegime{general: general, secondHand: secondHand}
}

// For returns the decision for a line of the given product type.
func (r DocumentRegime) For(pt ProductType) Decision {
	if pt == ProductSecondHand {
		return r.secondHand
	}
	return r.general
}
