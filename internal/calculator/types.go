package calculator

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction tells whether the company sells or buys on a document.
type Direction string

const (
	DirectionSale     Direction = "sale"
	DirectionPurchase Direction = "purchase"
)

// DocumentKind is the commercial document type.
type DocumentKind string

const (
	KindQuote        DocumentKind = "quote"
	KindOrder        DocumentKind = "order"
	KindDeliveryNote DocumentKind = "delivery_note"
	KindInvoice      DocumentKind = "invoice"
)

// Regime is a fiscal (VAT) regime of a company or trading partner.
type Regime string

const (
	RegimeGeneral      Regime = "general"
	RegimeSurcharge    Regime = "surcharge"
	RegimeUsedGoods    Regime = "used_goods"
	RegimeTravelAgency Regime = "travel_agency"
	RegimeAgrarian     Regime = "agrarian"
	RegimeSimplified   Regime = "simplified"
	RegimeCashCriteria Regime = "cash_criteria"
	RegimeExempt       Regime = "exempt"
)

// Operation is the document-level operation classification.
type Operation string

const (
	OperationNone           Operation = ""
	OperationDomestic       Operation = "domestic"
	OperationIntraCommunity Operation = "intra_community"
	OperationExport         Operation = "export"
	OperationImport         Operation = "import"
	OperationExempt         Operation = "exempt"
)

// SuppressesVAT reports whether the operation never carries VAT or surcharge.
func (o Operation) SuppressesVAT() bool {
	switch o {
	case OperationIntraCommunity, OperationExport, OperationImport, OperationExempt:
		return true
	}
	return false
}

// ProductType classifies products for margin-scheme purposes.
type ProductType string

const (
	ProductGeneral    ProductType = "general"
	ProductSecondHand ProductType = "second_hand"
	ProductService    ProductType = "service"
)

// TariffBasis selects what a tariff adjusts from.
type TariffBasis string

const (
	TariffBasisCost  TariffBasis = "cost"
	TariffBasisPrice TariffBasis = "price"
)

// Company is the snapshot of the company owning a document.
type Company struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	TaxID         string    `json:"tax_id"`
	Regime        Regime    `json:"regime"`
	ExemptionCode string    `json:"exemption_code,omitempty"`
	OperationCode Operation `json:"operation_code,omitempty"`
	Country       string    `json:"country"`
}

// TradingPartner is the snapshot of a customer or supplier.
type TradingPartner struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	TaxID           string    `json:"tax_id"`
	Regime          Regime    `json:"regime"`
	ExemptionCode   string    `json:"exemption_code,omitempty"`
	RetentionCode   string    `json:"retention_code,omitempty"`
	OperationCode   Operation `json:"operation_code,omitempty"`
	Country         string    `json:"country"`
	Province        string    `json:"province,omitempty"`
	TariffCode      string    `json:"tariff_code,omitempty"`
	GroupTariffCode string    `json:"group_tariff_code,omitempty"`
}

// Document is a quote, order, delivery note or invoice together with its
// computed totals. Totals are only written by the calculator.
type Document struct {
	ID        uuid.UUID       `json:"id"`
	Kind      DocumentKind    `json:"kind"`
	Direction Direction       `json:"direction"`
	Company   Company         `json:"company"`
	Partner   *TradingPartner `json:"partner"`
	// WarehouseCompany is the company owning the document's warehouse, nil
	// when no warehouse is assigned.
	WarehouseCompany *Company `json:"warehouse_company,omitempty"`

	Currency string    `json:"currency"`
	Date     time.Time `json:"date"`
	// Destination address; empty values fall back to the partner's.
	Country  string `json:"country,omitempty"`
	Province string `json:"province,omitempty"`

	Discount1 decimal.Decimal `json:"discount1"`
	Discount2 decimal.Decimal `json:"discount2"`

	Operation       Operation `json:"operation"`
	OperationForced bool      `json:"operation_forced"`
	Editable        bool      `json:"editable"`

	Totals Totals `json:"totals"`
}

// Line is a document line. Rate and exemption fields are snapshots copied
// at creation or recalculation time.
type Line struct {
	ID           uuid.UUID   `json:"id"`
	// ParentLineID is the line this one was copied from when the document
	// was generated from another.
	ParentLineID *uuid.UUID  `json:"parent_line_id,omitempty"`
	ProductRef   string      `json:"product_ref,omitempty"`
	Description  string      `json:"description"`
	ProductType  ProductType `json:"product_type,omitempty"`

	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount1 decimal.Decimal `json:"discount1"`
	Discount2 decimal.Decimal `json:"discount2"`
	UnitCost  decimal.Decimal `json:"unit_cost"`

	// SourceTaxCode is the tax code before tax-zone remapping.
	SourceTaxCode string          `json:"source_tax_code,omitempty"`
	TaxCode       string          `json:"tax_code"`
	VATRate       decimal.Decimal `json:"vat_rate"`
	SurchargeRate decimal.Decimal `json:"surcharge_rate"`
	IRPFRate      decimal.Decimal `json:"irpf_rate"`
	ExemptionCode string          `json:"exemption_code,omitempty"`
	Supplied      bool            `json:"supplied"`

	Net       decimal.Decimal `json:"net"`
	TaxBase   decimal.Decimal `json:"tax_base"`
	VAT       decimal.Decimal `json:"vat"`
	Surcharge decimal.Decimal `json:"surcharge"`
	IRPF      decimal.Decimal `json:"irpf"`
}

// Subtotal is the tax breakdown for one (tax code, VAT, surcharge) group.
type Subtotal struct {
	TaxCode       string          `json:"tax_code"`
	VATRate       decimal.Decimal `json:"vat_rate"`
	SurchargeRate decimal.Decimal `json:"surcharge_rate"`
	Net           decimal.Decimal `json:"net"`
	Base          decimal.Decimal `json:"base"`
	VAT           decimal.Decimal `json:"vat"`
	Surcharge     decimal.Decimal `json:"surcharge"`
}

// Totals are the aggregate document amounts.
type Totals struct {
	NetBeforeDiscount decimal.Decimal `json:"net_before_discount"`
	Net               decimal.Decimal `json:"net"`
	VAT               decimal.Decimal `json:"vat"`
	Surcharge         decimal.Decimal `json:"surcharge"`
	IRPF              decimal.Decimal `json:"irpf"`
	Supplied          decimal.Decimal `json:"supplied"`
	Cost              decimal.Decimal `json:"cost"`
	Profit            decimal.Decimal `json:"profit"`
	Total             decimal.Decimal `json:"total"`
	Subtotals         []Subtotal      `json:"subtotals"`
}

// TaxRateEntry is a tax-rate catalog row.
type TaxRateEntry struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	VAT         decimal.Decimal `json:"vat"`
	Surcharge   decimal.Decimal `json:"surcharge"`
}

// RetentionEntry is a withholding (IRPF) catalog row.
type RetentionEntry struct {
	Code       string          `json:"code"`
	Percentage decimal.Decimal `json:"percentage"`
}

// TaxZoneRule remaps a tax code for documents shipped to a country and,
// optionally, a province.
type TaxZoneRule struct {
	SourceTaxCode string `json:"source_tax_code"`
	DestTaxCode   string `json:"dest_tax_code"`
	Country       string `json:"country,omitempty"`
	Province      string `json:"province,omitempty"`
	Priority      int    `json:"priority"`
}

// TariffRule is a price-list rule scoped to a partner or partner group.
type TariffRule struct {
	Code       string          `json:"code"`
	Basis      TariffBasis     `json:"basis"`
	Percentage decimal.Decimal `json:"percentage"`
	Fixed      decimal.Decimal `json:"fixed"`
	// CeilingAtPrice caps the result at the original price.
	CeilingAtPrice bool `json:"ceiling_at_price"`
	// FloorAtCost keeps the result at or above cost. It wins over the ceiling.
	FloorAtCost bool `json:"floor_at_cost"`
}

// Product is the catalog product a line is created from.
type Product struct {
	Reference     string          `json:"reference"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Cost          decimal.Decimal `json:"cost"`
	TaxCode       string          `json:"tax_code"`
	ExemptionCode string          `json:"exemption_code,omitempty"`
	Type          ProductType     `json:"type"`
}
