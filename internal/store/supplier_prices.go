package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SupplierPrice is the last purchase price of a product from a supplier.
type SupplierPrice struct {
	SupplierID uuid.UUID
	ProductRef string
	Price      decimal.Decimal
	DocumentID uuid.UUID
	UpdatedAt  time.Time
}

// UpsertSupplierPrice records p as the latest price for its supplier and
// product.
func (q *Queries) UpsertSupplierPrice(ctx context.Context, p SupplierPrice) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO supplier_prices (supplier_id, product_ref, price, document_id, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (supplier_id, product_ref) DO UPDATE SET
			price = EXCLUDED.price,
			document_id = EXCLUDED.document_id,
			updated_at = EXCLUDED.updated_at
	`, p.SupplierID, p.ProductRef, p.Price, p.DocumentID)
	if err != nil {
		return fmt.Errorf("upserting supplier price %s/%s: %w", p.SupplierID, p.ProductRef, err)
	}
	return nil
}

func (q *Queries) GetSupplierPrice(ctx context.Context, supplierID uuid.UUID, ref string) (SupplierPrice, error) {
	var p SupplierPrice
	err := q.db.QueryRow(ctx, `
		SELECT supplier_id, product_ref, price, document_id, updated_at
		FROM supplier_prices WHERE supplier_id = $1 AND product_ref = $2
	`, supplierID, ref).Scan(&p.SupplierID, &p.ProductRef, &p.Price, &p.DocumentID, &p.UpdatedAt)
	if err != nil {
		return SupplierPrice{}, fmt.Errorf("getting supplier price %s/%s: %w", supplierID, ref, notFound(err))
	}
	return p, nil
}
