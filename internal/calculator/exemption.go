package calculator

// ResolveExemption picks the effective VAT exemption code: the product's,
// then the partner's default, then the company's default.
func ResolveExemption(productExemption string, partner *TradingPartner, company Company) string {
	if productExemption != "" {
		return productExemption
	}
	if partner != nil && partner.ExemptionCode != "" {
		return partner.ExemptionCode
	}
	return company.ExemptionCode
}
