package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/forgecommerce/invoicing/internal/calculator"
)

const lineColumns = `id, parent_line_id, product_ref, description, product_type,
	quantity, unit_price, discount1, discount2, unit_cost,
	source_tax_code, tax_code, vat_rate, surcharge_rate, irpf_rate, exemption_code, supplied,
	net, tax_base, vat, surcharge, irpf`

// ListLines returns the lines of a document in position order.
func (q *Queries) ListLines(ctx context.Context, documentID uuid.UUID) ([]calculator.Line, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+lineColumns+`
		FROM document_lines
		WHERE document_id = $1
		ORDER BY position
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing lines of %s: %w", documentID, err)
	}
	defer rows.Close()

	var lines []calculator.Line
	for rows.Next() {
		var l calculator.Line
		var productType string
		var parentLineID pgtype.UUID
		if err := rows.Scan(
			&l.ID, &parentLineID, &l.ProductRef, &l.Description, &productType,
			&l.Quantity, &l.UnitPrice, &l.Discount1, &l.Discount2, &l.UnitCost,
			&l.SourceTaxCode, &l.TaxCode, &l.VATRate, &l.SurchargeRate, &l.IRPFRate, &l.ExemptionCode, &l.Supplied,
			&l.Net, &l.TaxBase, &l.VAT, &l.Surcharge, &l.IRPF,
		); err != nil {
			return nil, fmt.Errorf("scanning line: %w", err)
		}
		l.ProductType = calculator.ProductType(productType)
		l.ParentLineID = uuidPtr(parentLineID)
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lines of %s: %w", documentID, err)
	}
	return lines, nil
}

// UpsertLine writes a line at position, inserting it when its ID is new.
// A nil ID is replaced with a fresh one.
func (q *Queries) UpsertLine(ctx context.Context, documentID uuid.UUID, position int, l *calculator.Line) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	productType := l.ProductType
	if productType == "" {
		productType = calculator.ProductGeneral
	}

	_, err := q.db.Exec(ctx, `
		INSERT INTO document_lines (document_id, position, `+lineColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24)
		ON CONFLICT (id) DO UPDATE SET
			position = EXCLUDED.position,
			parent_line_id = EXCLUDED.parent_line_id,
			product_ref = EXCLUDED.product_ref,
			description = EXCLUDED.description,
			product_type = EXCLUDED.product_type,
			quantity = EXCLUDED.quantity,
			unit_price = EXCLUDED.unit_price,
			discount1 = EXCLUDED.discount1,
			discount2 = EXCLUDED.discount2,
			unit_cost = EXCLUDED.unit_cost,
			source_tax_code = EXCLUDED.source_tax_code,
			tax_code = EXCLUDED.tax_code,
			vat_rate = EXCLUDED.vat_rate,
			surcharge_rate = EXCLUDED.surcharge_rate,
			irpf_rate = EXCLUDED.irpf_rate,
			exemption_code = EXCLUDED.exemption_code,
			supplied = EXCLUDED.supplied,
			net = EXCLUDED.net,
			tax_base = EXCLUDED.tax_base,
			vat = EXCLUDED.vat,
			surcharge = EXCLUDED.surcharge,
			irpf = EXCLUDED.irpf
		WHERE document_lines.document_id = EXCLUDED.document_id
	`, documentID, position, l.ID, l.ParentLineID, l.ProductRef, l.Description, string(productType),
		l.Quantity, l.UnitPrice, l.Discount1, l.Discount2, l.UnitCost,
		l.SourceTaxCode, l.TaxCode, l.VATRate, l.SurchargeRate, l.IRPFRate, l.ExemptionCode, l.Supplied,
		l.Net, l.TaxBase, l.VAT, l.Surcharge, l.IRPF)
	if err != nil {
		return fmt.Errorf("saving line %s of %s: %w", l.ID, documentID, err)
	}
	return nil
}
