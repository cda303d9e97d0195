package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/forgecommerce/invoicing/internal/calculator"
)

// Document is a stored document: the calculator view plus its workflow
// and numbering fields.
type Document struct {
	calculator.Document

	Number      string
	Status      string
	WarehouseID *uuid.UUID
	ParentID    *uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateDocumentParams contains the header fields of a new document.
type CreateDocumentParams struct {
	Kind        calculator.DocumentKind
	Direction   calculator.Direction
	CompanyID   uuid.UUID
	PartnerID   *uuid.UUID
	WarehouseID *uuid.UUID
	ParentID    *uuid.UUID
	Number      string
	Currency    string
	Date        time.Time
	Country     string
	Province    string
	Discount1   decimal.Decimal
	Discount2   decimal.Decimal
	Operation   calculator.Operation
	Forced      bool
	Status      string
}

// CreateDocument inserts a document header and returns its ID.
func (q *Queries) CreateDocument(ctx context.Context, p CreateDocumentParams) (uuid.UUID, error) {
	id := uuid.New()
	if p.Currency == "" {
		p.Currency = "EUR"
	}
	if p.Date.IsZero() {
		p.Date = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = "draft"
	}

	_, err := q.db.Exec(ctx, `
		INSERT INTO documents (id, kind, direction, company_id, partner_id, warehouse_id, parent_id,
			number, currency, doc_date, country, province, discount1, discount2,
			operation, operation_forced, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, id, string(p.Kind), string(p.Direction), p.CompanyID, p.PartnerID, p.WarehouseID, p.ParentID,
		p.Number, p.Currency, p.Date, p.Country, p.Province, p.Discount1, p.Discount2,
		string(p.Operation), p.Forced, p.Status)
	if err != nil {
		return uuid.Nil, fmt.Errorf("creating %s document: %w", p.Kind, err)
	}
	return id, nil
}

// GetDocument loads a document with its company, partner and warehouse
// company snapshots.
func (q *Queries) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	var (
		d                    Document
		kind, dir, operation string
		partnerID            pgtype.UUID
		warehouseID          pgtype.UUID
		parentID             pgtype.UUID
		whCompanyID          pgtype.UUID
		subtotals            []byte
	)
	err := q.db.QueryRow(ctx, `
		SELECT d.id, d.kind, d.direction, d.company_id, d.partner_id, d.warehouse_id, d.parent_id,
		       w.company_id, d.number, d.currency, d.doc_date, d.country, d.province,
		       d.discount1, d.discount2, d.operation, d.operation_forced, d.status, d.editable,
		       d.net_before_discount, d.net, d.vat, d.surcharge, d.irpf, d.supplied,
		       d.cost, d.profit, d.total, d.subtotals, d.created_at, d.updated_at
		FROM documents d
		LEFT JOIN warehouses w ON w.id = d.warehouse_id
		WHERE d.id = $1
	`, id).Scan(
		&d.ID, &kind, &dir, &d.Company.ID, &partnerID, &warehouseID, &parentID,
		&whCompanyID, &d.Number, &d.Currency, &d.Date, &d.Country, &d.Province,
		&d.Discount1, &d.Discount2, &operation, &d.OperationForced, &d.Status, &d.Editable,
		&d.Totals.NetBeforeDiscount, &d.Totals.Net, &d.Totals.VAT, &d.Totals.Surcharge,
		&d.Totals.IRPF, &d.Totals.Supplied, &d.Totals.Cost, &d.Totals.Profit, &d.Totals.Total,
		&subtotals, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("getting document %s: %w", id, notFound(err))
	}
	d.Kind = calculator.DocumentKind(kind)
	d.Direction = calculator.Direction(dir)
	d.Operation = calculator.Operation(operation)
	d.WarehouseID = uuidPtr(warehouseID)
	d.ParentID = uuidPtr(parentID)

	if len(subtotals) > 0 {
		if err := json.Unmarshal(subtotals, &d.Totals.Subtotals); err != nil {
			return nil, fmt.Errorf("decoding subtotals of %s: %w", id, err)
		}
	}

	company, err := q.GetCompany(ctx, d.Company.ID)
	if err != nil {
		return nil, err
	}
	d.Company = company

	if partnerID.Valid {
		partner, err := q.GetPartner(ctx, uuid.UUID(partnerID.Bytes))
		if err != nil {
			return nil, err
		}
		d.Partner = &partner
	}

	if whCompanyID.Valid {
		whCompany, err := q.GetCompany(ctx, uuid.UUID(whCompanyID.Bytes))
		if err != nil {
			return nil, err
		}
		d.WarehouseCompany = &whCompany
	}

	return &d, nil
}

// UpdateTotals writes the operation and totals of a calculated document.
func (q *Queries) UpdateTotals(ctx context.Context, doc *calculator.Document) error {
	subtotals, err := json.Marshal(doc.Totals.Subtotals)
	if err != nil {
		return fmt.Errorf("encoding subtotals: %w", err)
	}
	if doc.Totals.Subtotals == nil {
		subtotals = []byte("[]")
	}

	t := doc.Totals
	tag, err := q.db.Exec(ctx, `
		UPDATE documents SET
			operation = $2,
			net_before_discount = $3, net = $4, vat = $5, surcharge = $6, irpf = $7,
			supplied = $8, cost = $9, profit = $10, total = $11, subtotals = $12,
			updated_at = now()
		WHERE id = $1
	`, doc.ID, string(doc.Operation),
		t.NetBeforeDiscount, t.Net, t.VAT, t.Surcharge, t.IRPF,
		t.Supplied, t.Cost, t.Profit, t.Total, subtotals)
	if err != nil {
		return fmt.Errorf("updating totals of %s: %w", doc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating totals of %s: %w", doc.ID, ErrNotFound)
	}
	return nil
}

// SaveCalculation stores the calculated lines and totals of doc. Run it
// inside a transaction so both land together.
func (q *Queries) SaveCalculation(ctx context.Context, doc *calculator.Document, lines []calculator.Line) error {
	if err := q.UpdateTotals(ctx, doc); err != nil {
		return err
	}
	for i := range lines {
		if err := q.UpsertLine(ctx, doc.ID, i+1, &lines[i]); err != nil {
			return err
		}
	}
	return nil
}

// UpdateStatus sets the workflow status and the editable flag.
func (q *Queries) UpdateStatus(ctx context.Context, id uuid.UUID, status string, editable bool) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE documents SET status = $2, editable = $3, updated_at = now() WHERE id = $1
	`, id, status, editable)
	if err != nil {
		return fmt.Errorf("updating status of %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating status of %s: %w", id, ErrNotFound)
	}
	return nil
}

// Dependents counts what blocks deleting a document.
type Dependents struct {
	Children int
	Receipts int
	Entries  int
}

func (d Dependents) Any() bool {
	return d.Children > 0 || d.Receipts > 0 || d.Entries > 0
}

func (q *Queries) CountDependents(ctx context.Context, id uuid.UUID) (Dependents, error) {
	var d Dependents
	err := q.db.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM documents WHERE parent_id = $1),
			(SELECT count(*) FROM receipts WHERE document_id = $1),
			(SELECT count(*) FROM accounting_entries WHERE document_id = $1)
	`, id).Scan(&d.Children, &d.Receipts, &d.Entries)
	if err != nil {
		return Dependents{}, fmt.Errorf("counting dependents of %s: %w", id, err)
	}
	return d, nil
}

// DeleteDocument removes a document and, through the cascade, its lines.
func (q *Queries) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting document %s: %w", id, ErrNotFound)
	}
	return nil
}

func uuidPtr(u pgtype.UUID) *uuid.UUID {
	if !u.Valid {
		return nil
	}
	id := uuid.UUID(u.Bytes)
	return &id
}
