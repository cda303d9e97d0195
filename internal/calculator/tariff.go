package calculator

import "github.com/shopspring/decimal"

// Apply adjusts a unit price with the tariff rule.
//
//	cost basis:  cost + cost*pct/100 + fixed
//	price basis: price - price*pct/100 - fixed
//
// The ceiling clamp runs first and the floor clamp last, so a result that is
// still below cost after capping ends at cost.
func (r TariffRule) Apply(cost, price decimal.Decimal) decimal.Decimal {
	var adjusted decimal.Decimal
	switch r.Basis {
	case TariffBasisCost:
		adjusted = cost.Add(cost.Mul(r.Percentage).Div(hundred)).Add(r.Fixed)
	case TariffBasisPrice:
		adjusted = price.Sub(price.Mul(r.Percentage).Div(hundred)).Sub(r.Fixed)
	default:
		return price
	}

	if r.CeilingAtPrice && adjusted.GreaterThan(price) {
		adjusted = price
	}
	if r.FloorAtCost && adjusted.LessThan(cost) {
		adjusted = cost
	}
	return adjusted
}

// ResolveTariff returns the tariff effective for a partner: its own tariff
// first, then its group's. ok is false when neither resolves.
func ResolveTariff(catalog Catalog, partner *TradingPartner) (TariffRule, bool) {
	if partner == nil || catalog == nil {
		return TariffRule{}, false
	}
	if partner.TariffCode != "" {
		if rule, ok := catalog.Tariff(partner.TariffCode); ok {
			return rule, true
		}
	}
	if partner.GroupTariffCode != "" {
		if rule, ok := catalog.Tariff(partner.GroupTariffCode); ok {
			return rule, true
		}
	}
	return TariffRule{}, false
}

// AdjustPrice applies the partner's effective tariff to a product price.
// Without a tariff the price is returned unchanged.
func AdjustPrice(catalog Catalog, partner *TradingPartner, cost, price decimal.Decimal) decimal.Decimal {
	rule, ok := ResolveTariff(catalog, partner)
	if !ok {
		return price
	}
	return rule.Apply(cost, price)
}
