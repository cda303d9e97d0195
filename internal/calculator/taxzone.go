package calculator

import "strings"

// ResolveTaxZone returns the destination tax code of the highest-priority
// rule matching the source code and the document's country/province. An
// empty rule country or province matches anything; the province comparison
// ignores case because addresses are free text. Among rules with equal
// priority the first one wins. Without a match the source code is returned
// and matched is false.
func ResolveTaxZone(rules []TaxZoneRule, sourceTaxCode, country, province string) (code string, matched bool) {
	best := -1
	for i, rule := range rules {
		if rule.SourceTaxCode != sourceTaxCode {
			continue
		}
		if rule.Country != "" && rule.Country != country {
			continue
		}
		if rule.Province != "" && !strings.EqualFold(strings.TrimSpace(rule.Province), strings.TrimSpace(province)) {
			continue
		}
		if best == -1 || rule.Priority > rules[best].Priority {
			best = i
		}
	}

	if best == -1 {
		return sourceTaxCode, false
	}
	return rules[best].DestTaxCode, true
}
