package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entry is the accounting entry posted for a document.
type Entry struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Date       time.Time
	Concept    string
	Amount     decimal.Decimal
	Lines      []EntryLine
}

// EntryLine is one debit or credit movement of an entry.
type EntryLine struct {
	Account string
	Concept string
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

// UpsertEntry stores e as the document's only entry, replacing its lines.
func (q *Queries) UpsertEntry(ctx context.Context, e *Entry) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO accounting_entries (id, document_id, entry_date, concept, amount)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (document_id) DO UPDATE SET
			entry_date = EXCLUDED.entry_date,
			concept = EXCLUDED.concept,
			amount = EXCLUDED.amount,
			updated_at = now()
		RETURNING id
	`, uuid.New(), e.DocumentID, e.Date, e.Concept, e.Amount).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("upserting entry of %s: %w", e.DocumentID, err)
	}

	if _, err := q.db.Exec(ctx, `DELETE FROM accounting_entry_lines WHERE entry_id = $1`, e.ID); err != nil {
		return fmt.Errorf("clearing lines of entry %s: %w", e.ID, err)
	}

	for i, l := range e.Lines {
		_, err := q.db.Exec(ctx, `
			INSERT INTO accounting_entry_lines (id, entry_id, position, account, concept, debit, credit)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New(), e.ID, i+1, l.Account, l.Concept, l.Debit, l.Credit)
		if err != nil {
			return fmt.Errorf("inserting line %d of entry %s: %w", i+1, e.ID, err)
		}
	}
	return nil
}

// GetEntry returns the entry posted for a document.
func (q *Queries) GetEntry(ctx context.Context, documentID uuid.UUID) (*Entry, error) {
	var e Entry
	err := q.db.QueryRow(ctx, `
		SELECT id, document_id, entry_date, concept, amount
		FROM accounting_entries WHERE document_id = $1
	`, documentID).Scan(&e.ID, &e.DocumentID, &e.Date, &e.Concept, &e.Amount)
	if err != nil {
		return nil, fmt.Errorf("getting entry of %s: %w", documentID, notFound(err))
	}

	rows, err := q.db.Query(ctx, `
		SELECT account, concept, debit, credit
		FROM accounting_entry_lines WHERE entry_id = $1 ORDER BY position
	`, e.ID)
	if err != nil {
		return nil, fmt.Errorf("listing lines of entry %s: %w", e.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var l EntryLine
		if err := rows.Scan(&l.Account, &l.Concept, &l.Debit, &l.Credit); err != nil {
			return nil, fmt.Errorf("scanning entry line: %w", err)
		}
		e.Lines = append(e.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lines of entry %s: %w", e.ID, err)
	}
	return &e, nil
}

// DeleteEntry removes a document's entry. A missing entry is not an error.
func (q *Queries) DeleteEntry(ctx context.Context, documentID uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM accounting_entries WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("deleting entry of %s: %w", documentID, err)
	}
	return nil
}
