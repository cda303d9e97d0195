package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forgecommerce/invoicing/internal/calculator"
)

// FixtureCompany creates a company under regime and returns its snapshot.
func (tdb *TestDB) FixtureCompany(t *testing.T, name string, regime calculator.Regime, country string) calculator.Company {
	t.Helper()

	c := calculator.Company{
		ID:      uuid.New(),
		Name:    name,
		TaxID:   country + "B00000000",
		Regime:  regime,
		Country: country,
	}
	_, err := tdb.Pool.Exec(context.Background(), `
		INSERT INTO companies (id, name, tax_id, regime, country)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.Name, c.TaxID, string(c.Regime), c.Country)
	if err != nil {
		t.Fatalf("creating fixture company %q: %v", name, err)
	}
	return c
}

// FixtureWarehouse creates the default warehouse of a company.
func (tdb *TestDB) FixtureWarehouse(t *testing.T, companyID uuid.UUID, name string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := tdb.Pool.Exec(context.Background(), `
		INSERT INTO warehouses (id, company_id, name, is_default)
		VALUES ($1, $2, $3, true)
	`, id, companyID, name)
	if err != nil {
		t.Fatalf("creating fixture warehouse %q: %v", name, err)
	}
	return id
}

// FixturePartner creates a customer or supplier. retentionCode may be empty.
func (tdb *TestDB) FixturePartner(t *testing.T, kind, name string, regime calculator.Regime, country, retentionCode string) calculator.TradingPartner {
	t.Helper()

	p := calculator.TradingPartner{
		ID:            uuid.New(),
		Name:          name,
		TaxID:         country + "12345678",
		Regime:        regime,
		RetentionCode: retentionCode,
		Country:       country,
	}
	_, err := tdb.Pool.Exec(context.Background(), `
		INSERT INTO partners (id, kind, name, tax_id, regime, retention_code, country)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`, p.ID, kind, p.Name, p.TaxID, string(p.Regime), p.RetentionCode, p.Country)
	if err != nil {
		t.Fatalf("creating fixture partner %q: %v", name, err)
	}
	return p
}

// FixtureTariff creates a price-based tariff rule.
func (tdb *TestDB) FixtureTariff(t *testing.T, code string, basis calculator.TariffBasis, pct string) {
	t.Helper()

	_, err := tdb.Pool.Exec(context.Background(), `
		INSERT INTO tariffs (code, basis, percentage) VALUES ($1, $2, $3)
	`, code, string(basis), decimal.RequireFromString(pct))
	if err != nil {
		t.Fatalf("creating fixture tariff %q: %v", code, err)
	}
}

// FixtureProduct creates a catalog product.
func (tdb *TestDB) FixtureProduct(t *testing.T, ref, price, cost, taxCode string) calculator.Product {
	t.Helper()

	p := calculator.Product{
		Reference:   ref,
		Description: "Product " + ref,
		Price:       decimal.RequireFromString(price),
		Cost:        decimal.RequireFromString(cost),
		TaxCode:     taxCode,
		Type:        calculator.ProductGeneral,
	}
	_, err := tdb.Pool.Exec(context.Background(), `
		INSERT INTO products (reference, description, price, cost, tax_code, type)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.Reference, p.Description, p.Price, p.Cost, p.TaxCode, string(p.Type))
	if err != nil {
		t.Fatalf("creating fixture product %q: %v", ref, err)
	}
	return p
}

// FixtureDocument creates an editable draft document and returns its ID.
func (tdb *TestDB) FixtureDocument(t *testing.T, kind calculator.DocumentKind, dir calculator.Direction, companyID, partnerID uuid.UUID) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := tdb.Pool.Exec(context.Background(), `
		INSERT INTO documents (id, kind, direction, company_id, partner_id, doc_date)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, string(kind), string(dir), companyID, partnerID, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("creating fixture document: %v", err)
	}
	return id
}

// FixtureLine adds a line with the IVA21 code and no computed amounts.
func (tdb *TestDB) FixtureLine(t *testing.T, documentID uuid.UUID, position int, ref, qty, price, cost string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := tdb.Pool.Exec(context.Background(), `
		INSERT INTO document_lines (id, document_id, position, product_ref, description,
			quantity, unit_price, unit_cost, source_tax_code, tax_code, vat_rate, surcharge_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'IVA21', 'IVA21', 21, 5.2)
	`, id, documentID, position, ref, "Line "+ref,
		decimal.RequireFromString(qty), decimal.RequireFromString(price), decimal.RequireFromString(cost))
	if err != nil {
		t.Fatalf("creating fixture line %q: %v", ref, err)
	}
	return id
}
