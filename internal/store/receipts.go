package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Receipt is one collection or payment installment of an invoice.
type Receipt struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Number     int
	Amount     decimal.Decimal
	DueDate    time.Time
	Paid       bool
	PaidAt     *time.Time
}

func (q *Queries) ListReceipts(ctx context.Context, documentID uuid.UUID) ([]Receipt, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, document_id, number, amount, due_date, paid, paid_at
		FROM receipts
		WHERE document_id = $1
		ORDER BY number
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing receipts of %s: %w", documentID, err)
	}
	defer rows.Close()

	var out []Receipt
	for rows.Next() {
		var r Receipt
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Number, &r.Amount, &r.DueDate, &r.Paid, &r.PaidAt); err != nil {
			return nil, fmt.Errorf("scanning receipt: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteUnpaidReceipts removes the pending receipts of a document and
// returns how many were removed.
func (q *Queries) DeleteUnpaidReceipts(ctx context.Context, documentID uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM receipts WHERE document_id = $1 AND NOT paid`, documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting unpaid receipts of %s: %w", documentID, err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) InsertReceipt(ctx context.Context, r *Receipt) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	_, err := q.db.Exec(ctx, `
		INSERT INTO receipts (id, document_id, number, amount, due_date, paid, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.DocumentID, r.Number, r.Amount, r.DueDate, r.Paid, r.PaidAt)
	if err != nil {
		return fmt.Errorf("inserting receipt %d of %s: %w", r.Number, r.DocumentID, err)
	}
	return nil
}

// MarkReceiptPaid flags a receipt as collected or paid.
func (q *Queries) MarkReceiptPaid(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := q.db.Exec(ctx, `UPDATE receipts SET paid = true, paid_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("marking receipt %s paid: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("marking receipt %s paid: %w", id, ErrNotFound)
	}
	return nil
}
