package vat

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxRate is a single tax_rates row. A code has at most one active row
// (ValidTo nil); superseded rows are kept for history.
type TaxRate struct {
	ID          string
	Code        string
	Description string
	VAT         decimal.Decimal
	Surcharge   decimal.Decimal
	ValidFrom   time.Time
	ValidTo     *time.Time
	Source      string
	SyncedAt    time.Time
}

// SyncResult holds the outcome of a catalog sync operation.
type SyncResult struct {
	Source       string // "database", "csv", "manual"
	RatesLoaded  int
	RatesChanged int
	SyncedAt     time.Time
	Error        error
}

// RateChange describes a single rate change detected during sync.
type RateChange struct {
	Code         string
	OldVAT       decimal.Decimal
	NewVAT       decimal.Decimal
	OldSurcharge decimal.Decimal
	NewSurcharge decimal.Decimal
}

// VIESResult holds the VIES validation response.
type VIESResult struct {
	Valid              bool
	CompanyName        string
	CompanyAddress     string
	ConsultationNumber string
	CountryCode        string
	VATNumber          string
}

// Sync source identifiers.
const (
	SourceDatabase = "database"
	SourceCSV      = "csv"
	SourceManual   = "manual"
	SourceSeed     = "seed"
)
