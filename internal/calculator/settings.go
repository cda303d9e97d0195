package calculator

import "slices"

// Settings holds the jurisdiction-specific constants used by the resolvers.
// They are configuration data, loaded from the fiscal config file.
type Settings struct {
	Decimals int32

	// EUCountries lists the ISO 3166-1 alpha-2 codes of EU member states.
	EUCountries []string

	// ZeroRateTaxCode replaces line tax codes on cross-border operations.
	ZeroRateTaxCode string

	ExemptionIntraCommunitySale     string
	ExemptionIntraCommunityPurchase string
	ExemptionExport                 string
}

// DefaultSettings returns the settings used when no fiscal config is given.
func DefaultSettings() Settings {
	return Settings{
		Decimals: DefaultDecimals,
		EUCountries: []string{
			"AT", "BE", "BG", "CY", "CZ", "DE", "DK", "EE", "ES", "FI",
			"FR", "GR", "HR", "HU", "IE", "IT", "LT", "LU", "LV", "MT",
			"NL", "PL", "PT", "RO", "SE", "SI", "SK",
		},
		ZeroRateTaxCode:                 "IVA0",
		ExemptionIntraCommunitySale:     "E5",
		ExemptionIntraCommunityPurchase: "E6",
		ExemptionExport:                 "E2",
	}
}

// IsEU reports whether country is an EU member state.
func (s Settings) IsEU(country string) bool {
	country = normalizeCountry(country)
	return country != "" && slices.ContainsFunc(s.EUCountries, func(c string) bool {
		return normalizeCountry(c) == country
	})
}

// operationExemption reports whether code is one of the exemption codes
// applied by cross-border operations.
func (s Settings) operationExemption(code string) bool {
	switch code {
	case "":
		return false
	case s.ExemptionIntraCommunitySale, s.ExemptionIntraCommunityPurchase, s.ExemptionExport:
		return true
	}
	return false
}
