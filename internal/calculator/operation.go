package calculator

import (
	"context"
	"log/slog"
	"strings"
)

// VATNumberChecker validates an EU VAT number for cross-border operations.
// An error means the service could not answer.
type VATNumberChecker interface {
	CheckVATNumber(ctx context.Context, country, taxID string) (bool, error)
}

// OperationResult is the resolved operation plus the line overrides it
// implies.
type OperationResult struct {
	Operation Operation
	// ForceZeroRate replaces every line tax code with the zero-rate code.
	ForceZeroRate bool
	// ExemptionCode, when set, replaces every line exemption code.
	ExemptionCode string
}

// OperationResolver picks the operation classification of a document.
type OperationResolver struct {
	settings Settings
	checker  VATNumberChecker
	logger   *slog.Logger
}

// NewOperationResolver creates a resolver. checker may be nil, in which case
// no partner is ever treated as intra-community.
func NewOperationResolver(settings Settings, checker VATNumberChecker, logger *slog.Logger) *OperationResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &OperationResolver{settings: settings, checker: checker, logger: logger}
}

// Resolve returns the document's operation.
//
// A forced operation is kept as is. Otherwise the partner's operation code
// wins, then the code of the company owning the warehouse (or the document's
// company when no warehouse is assigned). Country detection then overrides
// the result: a non-EU partner makes the document an export (sale) or an
// import (purchase), and an EU partner from another country whose VAT number
// validates makes it intra-community. A validation outage keeps the
// non-cross-border result.
func (r *OperationResolver) Resolve(ctx context.Context, doc *Document) OperationResult {
	if doc.OperationForced {
		return r.result(doc.Direction, doc.Operation)
	}

	op := r.chain(doc)
	if detected, ok := r.detect(ctx, doc); ok {
		op = detected
	}
	return r.result(doc.Direction, op)
}

func (r *OperationResolver) chain(doc *Document) Operation {
	if doc.Partner != nil && doc.Partner.OperationCode != OperationNone {
		return doc.Partner.OperationCode
	}
	owner := doc.Company
	if doc.WarehouseCompany != nil {
		owner = *doc.WarehouseCompany
	}
	return owner.OperationCode
}

func (r *OperationResolver) detect(ctx context.Context, doc *Document) (Operation, bool) {
	partner := doc.Partner
	if partner == nil {
		return OperationNone, false
	}
	// Without both countries nothing can be called cross-border.
	country := normalizeCountry(partner.Country)
	home := normalizeCountry(doc.Company.Country)
	if country == "" || home == "" || country == home {
		return OperationNone, false
	}

	if !r.settings.IsEU(country) {
		if doc.Direction == DirectionPurchase {
			return OperationImport, true
		}
		return OperationExport, true
	}

	if r.checker == nil || partner.TaxID == "" {
		return OperationNone, false
	}
	valid, err := r.checker.CheckVATNumber(ctx, country, partner.TaxID)
	if err != nil {
		r.logger.Warn("VAT number check failed, treating partner as domestic",
			"partner_id", partner.ID,
			"country", partner.Country,
			"error", err,
		)
		return OperationNone, false
	}
	if !valid {
		return OperationNone, false
	}
	return OperationIntraCommunity, true
}

func (r *OperationResolver) result(dir Direction, op Operation) OperationResult {
	res := OperationResult{Operation: op}
	switch op {
	case OperationIntraCommunity:
		res.ForceZeroRate = true
		res.ExemptionCode = r.settings.ExemptionIntraCommunitySale
		if dir == DirectionPurchase {
			res.ExemptionCode = r.settings.ExemptionIntraCommunityPurchase
		}
	case OperationExport:
		res.ForceZeroRate = true
		res.ExemptionCode = r.settings.ExemptionExport
	case OperationImport:
		res.ForceZeroRate = true
	}
	return res
}

func normalizeCountry(country string) string {
	return strings.ToUpper(strings.TrimSpace(country))
}
