package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/forgecommerce/invoicing/internal/calculator"
)

// GetCompany returns the fiscal snapshot of a company.
func (q *Queries) GetCompany(ctx context.Context, id uuid.UUID) (calculator.Company, error) {
	var c calculator.Company
	var regime, operation string
	err := q.db.QueryRow(ctx, `
		SELECT id, name, tax_id, regime, exemption_code, operation_code, country
		FROM companies WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.TaxID, &regime, &c.ExemptionCode, &operation, &c.Country)
	if err != nil {
		return calculator.Company{}, fmt.Errorf("getting company %s: %w", id, notFound(err))
	}
	c.Regime = calculator.Regime(regime)
	c.OperationCode = calculator.Operation(operation)
	return c, nil
}

// GetPartner returns the fiscal snapshot of a customer or supplier, with
// its group's tariff code when it belongs to a group.
func (q *Queries) GetPartner(ctx context.Context, id uuid.UUID) (calculator.TradingPartner, error) {
	var p calculator.TradingPartner
	var regime, operation string
	err := q.db.QueryRow(ctx, `
		SELECT p.id, p.name, p.tax_id, p.regime, p.exemption_code,
		       COALESCE(p.retention_code, ''), p.operation_code, p.country, p.province,
		       COALESCE(p.tariff_code, ''), COALESCE(g.tariff_code, '')
		FROM partners p
		LEFT JOIN partner_groups g ON g.id = p.group_id
		WHERE p.id = $1
	`, id).Scan(
		&p.ID, &p.Name, &p.TaxID, &regime, &p.ExemptionCode,
		&p.RetentionCode, &operation, &p.Country, &p.Province,
		&p.TariffCode, &p.GroupTariffCode,
	)
	if err != nil {
		return calculator.TradingPartner{}, fmt.Errorf("getting partner %s: %w", id, notFound(err))
	}
	p.Regime = calculator.Regime(regime)
	p.OperationCode = calculator.Operation(operation)
	return p, nil
}

// GetDefaultWarehouse returns the default warehouse of a company.
func (q *Queries) GetDefaultWarehouse(ctx context.Context, companyID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, `
		SELECT id FROM warehouses WHERE company_id = $1 AND is_default
	`, companyID).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("getting default warehouse of %s: %w", companyID, notFound(err))
	}
	return id, nil
}

// GetProduct returns a catalog product by reference.
func (q *Queries) GetProduct(ctx context.Context, ref string) (calculator.Product, error) {
	var p calculator.Product
	var typ string
	err := q.db.QueryRow(ctx, `
		SELECT reference, description, price, cost, tax_code, exemption_code, type
		FROM products WHERE reference = $1
	`, ref).Scan(&p.Reference, &p.Description, &p.Price, &p.Cost, &p.TaxCode, &p.ExemptionCode, &typ)
	if err != nil {
		return calculator.Product{}, fmt.Errorf("getting product %q: %w", ref, notFound(err))
	}
	p.Type = calculator.ProductType(typ)
	return p, nil
}

// ListActiveTaxRates returns the active tax-rate catalog ordered by code.
func (q *Queries) ListActiveTaxRates(ctx context.Context) ([]calculator.TaxRateEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT code, description, vat, surcharge
		FROM tax_rates
		WHERE valid_to IS NULL
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("listing tax rates: %w", err)
	}
	defer rows.Close()

	var out []calculator.TaxRateEntry
	for rows.Next() {
		var r calculator.TaxRateEntry
		if err := rows.Scan(&r.Code, &r.Description, &r.VAT, &r.Surcharge); err != nil {
			return nil, fmt.Errorf("scanning tax rate: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *Queries) ListRetentions(ctx context.Context) ([]calculator.RetentionEntry, error) {
	rows, err := q.db.Query(ctx, `SELECT code, percentage FROM retentions ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("listing retentions: %w", err)
	}
	defer rows.Close()

	var out []calculator.RetentionEntry
	for rows.Next() {
		var r calculator.RetentionEntry
		if err := rows.Scan(&r.Code, &r.Percentage); err != nil {
			return nil, fmt.Errorf("scanning retention: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *Queries) ListTariffs(ctx context.Context) ([]calculator.TariffRule, error) {
	rows, err := q.db.Query(ctx, `
		SELECT code, basis, percentage, fixed, ceiling_at_price, floor_at_cost
		FROM tariffs ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("listing tariffs: %w", err)
	}
	defer rows.Close()

	var out []calculator.TariffRule
	for rows.Next() {
		var r calculator.TariffRule
		var basis string
		if err := rows.Scan(&r.Code, &basis, &r.Percentage, &r.Fixed, &r.CeilingAtPrice, &r.FloorAtCost); err != nil {
			return nil, fmt.Errorf("scanning tariff: %w", err)
		}
		r.Basis = calculator.TariffBasis(basis)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListZoneRules returns a company's tax-zone rules, highest priority first.
func (q *Queries) ListZoneRules(ctx context.Context, companyID uuid.UUID) ([]calculator.TaxZoneRule, error) {
	rows, err := q.db.Query(ctx, `
		SELECT source_tax_code, dest_tax_code, country, province, priority
		FROM tax_zone_rules
		WHERE company_id = $1
		ORDER BY priority DESC, id
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("listing zone rules of %s: %w", companyID, err)
	}
	defer rows.Close()

	var out []calculator.TaxZoneRule
	for rows.Next() {
		var r calculator.TaxZoneRule
		if err := rows.Scan(&r.SourceTaxCode, &r.DestTaxCode, &r.Country, &r.Province, &r.Priority); err != nil {
			return nil, fmt.Errorf("scanning zone rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateZoneRule adds a tax-zone rule for a company.
func (q *Queries) CreateZoneRule(ctx context.Context, companyID uuid.UUID, r calculator.TaxZoneRule) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO tax_zone_rules (id, company_id, source_tax_code, dest_tax_code, country, province, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New(), companyID, r.SourceTaxCode, r.DestTaxCode, r.Country, r.Province, r.Priority)
	if err != nil {
		return fmt.Errorf("creating zone rule %s -> %s: %w", r.SourceTaxCode, r.DestTaxCode, err)
	}
	return nil
}

// LoadCatalog builds the retention, tariff and zone-rule part of the
// calculator catalog for one company. Tax rates are added only when
// withTaxRates is true; callers holding a rate cache layer it on top.
func (q *Queries) LoadCatalog(ctx context.Context, companyID uuid.UUID, withTaxRates bool) (*calculator.StaticCatalog, error) {
	cat := &calculator.StaticCatalog{}

	retentions, err := q.ListRetentions(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range retentions {
		cat.AddRetention(r)
	}

	tariffs, err := q.ListTariffs(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tariffs {
		cat.AddTariff(t)
	}

	rules, err := q.ListZoneRules(ctx, companyID)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		cat.AddZoneRule(companyID, r)
	}

	if withTaxRates {
		rates, err := q.ListActiveTaxRates(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range rates {
			cat.AddTaxRate(r)
		}
	}

	return cat, nil
}
