package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/forgecommerce/invoicing/internal/calculator"
)

// Fiscal holds the jurisdiction-specific constants. They are loaded from a
// YAML file so a deployment can target another tax catalog without a
// rebuild.
type Fiscal struct {
	Decimals        int32          `mapstructure:"decimals"`
	EUCountries     []string       `mapstructure:"eu_countries"`
	ZeroRateTaxCode string         `mapstructure:"zero_rate_tax_code"`
	Exemptions      FiscalExempt   `mapstructure:"exemptions"`
	Receipts        FiscalReceipts `mapstructure:"receipts"`
	Accounts        FiscalAccounts `mapstructure:"accounts"`
}

type FiscalExempt struct {
	IntraCommunitySale     string `mapstructure:"intra_community_sale"`
	IntraCommunityPurchase string `mapstructure:"intra_community_purchase"`
	Export                 string `mapstructure:"export"`
}

type FiscalReceipts struct {
	Installments int `mapstructure:"installments"`
	TermDays     int `mapstructure:"term_days"`
}

// FiscalAccounts are the ledger account codes used when posting entries.
type FiscalAccounts struct {
	Customers             string `mapstructure:"customers"`
	Suppliers             string `mapstructure:"suppliers"`
	Sales                 string `mapstructure:"sales"`
	Purchases             string `mapstructure:"purchases"`
	VATOutput             string `mapstructure:"vat_output"`
	VATInput              string `mapstructure:"vat_input"`
	SurchargeOutput       string `mapstructure:"surcharge_output"`
	SurchargeInput        string `mapstructure:"surcharge_input"`
	WithholdingReceivable string `mapstructure:"withholding_receivable"`
	WithholdingPayable    string `mapstructure:"withholding_payable"`
}

// DefaultFiscal returns the built-in fiscal configuration.
func DefaultFiscal() Fiscal {
	s := calculator.DefaultSettings()
	return Fiscal{
		Decimals:        s.Decimals,
		EUCountries:     s.EUCountries,
		ZeroRateTaxCode: s.ZeroRateTaxCode,
		Exemptions: FiscalExempt{
			IntraCommunitySale:     s.ExemptionIntraCommunitySale,
			IntraCommunityPurchase: s.ExemptionIntraCommunityPurchase,
			Export:                 s.ExemptionExport,
		},
		Receipts: FiscalReceipts{
			Installments: 1,
			TermDays:     30,
		},
		Accounts: FiscalAccounts{
			Customers:             "430",
			Suppliers:             "400",
			Sales:                 "700",
			Purchases:             "600",
			VATOutput:             "477",
			VATInput:              "472",
			SurchargeOutput:       "477.1",
			SurchargeInput:        "472.1",
			WithholdingReceivable: "473",
			WithholdingPayable:    "4751",
		},
	}
}

// LoadFiscal reads the fiscal configuration from path. Keys missing from the
// file keep their default value; an empty path returns the defaults.
func LoadFiscal(path string) (Fiscal, error) {
	defaults := DefaultFiscal()
	if path == "" {
		return defaults, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	setFiscalDefaults(v, defaults)

	v.SetEnvPrefix("FISCAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Fiscal{}, fmt.Errorf("reading fiscal config %s: %w", path, err)
	}

	var cfg Fiscal
	if err := v.Unmarshal(&cfg); err != nil {
		return Fiscal{}, fmt.Errorf("decoding fiscal config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Fiscal{}, fmt.Errorf("invalid fiscal config %s: %w", path, err)
	}
	return cfg, nil
}

func setFiscalDefaults(v *viper.Viper, d Fiscal) {
	v.SetDefault("decimals", d.Decimals)
	v.SetDefault("eu_countries", d.EUCountries)
	v.SetDefault("zero_rate_tax_code", d.ZeroRateTaxCode)
	v.SetDefault("exemptions.intra_community_sale", d.Exemptions.IntraCommunitySale)
	v.SetDefault("exemptions.intra_community_purchase", d.Exemptions.IntraCommunityPurchase)
	v.SetDefault("exemptions.export", d.Exemptions.Export)
	v.SetDefault("receipts.installments", d.Receipts.Installments)
	v.SetDefault("receipts.term_days", d.Receipts.TermDays)
	v.SetDefault("accounts.customers", d.Accounts.Customers)
	v.SetDefault("accounts.suppliers", d.Accounts.Suppliers)
	v.SetDefault("accounts.sales", d.Accounts.Sales)
	v.SetDefault("accounts.purchases", d.Accounts.Purchases)
	v.SetDefault("accounts.vat_output", d.Accounts.VATOutput)
	v.SetDefault("accounts.vat_input", d.Accounts.VATInput)
	v.SetDefault("accounts.surcharge_output", d.Accounts.SurchargeOutput)
	v.SetDefault("accounts.surcharge_input", d.Accounts.SurchargeInput)
	v.SetDefault("accounts.withholding_receivable", d.Accounts.WithholdingReceivable)
	v.SetDefault("accounts.withholding_payable", d.Accounts.WithholdingPayable)
}

func (f Fiscal) validate() error {
	if f.Decimals < 0 || f.Decimals > 6 {
		return errors.New("decimals must be between 0 and 6")
	}
	if f.ZeroRateTaxCode == "" {
		return errors.New("zero_rate_tax_code is required")
	}
	if f.Receipts.Installments < 1 {
		return errors.New("receipts.installments must be at least 1")
	}
	if f.Receipts.TermDays < 0 {
		return errors.New("receipts.term_days cannot be negative")
	}
	return nil
}

// CalculatorSettings maps the fiscal configuration onto calculator settings.
func (f Fiscal) CalculatorSettings() calculator.Settings {
	countries := make([]string, len(f.EUCountries))
	for i, c := range f.EUCountries {
		countries[i] = strings.ToUpper(strings.TrimSpace(c))
	}
	return calculator.Settings{
		Decimals:                        f.Decimals,
		EUCountries:                     countries,
		ZeroRateTaxCode:                 f.ZeroRateTaxCode,
		ExemptionIntraCommunitySale:     f.Exemptions.IntraCommunitySale,
		ExemptionIntraCommunityPurchase: f.Exemptions.IntraCommunityPurchase,
		ExemptionExport:                 f.Exemptions.Export,
	}
}
