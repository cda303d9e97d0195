// Package workflow moves documents through their lifecycle and generates
// the follow-up documents of a sales or purchase chain.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forgecommerce/invoicing/internal/calculator"
	"github.com/forgecommerce/invoicing/internal/store"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidSelection  = errors.New("invalid line selection")
	ErrNotDeletable      = errors.New("document cannot be deleted")
)

// Recalculator refreshes the stored amounts of a document.
type Recalculator interface {
	Refresh(ctx context.Context, id uuid.UUID) error
}

// LineSelection picks a line of the parent for the child document. A zero
// Quantity copies the whole line.
type LineSelection struct {
	LineID   uuid.UUID       `json:"line_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ChangeResult is the outcome of a status change.
type ChangeResult struct {
	Status  Status     `json:"status"`
	ChildID *uuid.UUID `json:"child_id,omitempty"`
}

type Service struct {
	store  *store.Store
	recalc Recalculator
	logger *slog.Logger
}

// NewService creates a workflow service. recalc may be nil, in which case
// generated children keep the amounts copied from the parent until they
// are recalculated.
func NewService(s *store.Store, recalc Recalculator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, recalc: recalc, logger: logger}
}

// SetRecalculator sets the recalculator used for generated children.
func (s *Service) SetRecalculator(r Recalculator) {
	s.recalc = r
}

// ChangeStatus moves document id to status. Entering a generating status
// creates the child document in the same transaction, copying the selected
// lines of the parent, or all of them when selection is empty.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, to Status, selection []LineSelection) (ChangeResult, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return ChangeResult{}, err
	}

	target, err := Transition(Status(doc.Status), to)
	if err != nil {
		return ChangeResult{}, err
	}

	result := ChangeResult{Status: to}
	childKind, generates := ChildKind(doc.Kind, to)

	err = s.store.WithTx(ctx, func(q *store.Queries) error {
		if err := q.UpdateStatus(ctx, id, string(to), target.Editable); err != nil {
			return err
		}
		if !generates {
			return nil
		}

		lines, err := q.ListLines(ctx, id)
		if err != nil {
			return err
		}
		childLines, err := SelectLines(lines, selection)
		if err != nil {
			return err
		}

		childID, err := q.CreateDocument(ctx, childParams(doc, childKind))
		if err != nil {
			return err
		}
		for i := range childLines {
			if err := q.UpsertLine(ctx, childID, i+1, &childLines[i]); err != nil {
				return err
			}
		}
		result.ChildID = &childID
		return nil
	})
	if err != nil {
		return ChangeResult{}, fmt.Errorf("changing status of %s to %s: %w", id, to, err)
	}

	s.logger.Info("document status changed",
		"document_id", id,
		"from", doc.Status,
		"to", to,
	)

	if result.ChildID != nil {
		s.logger.Info("child document generated",
			"document_id", id,
			"child_id", *result.ChildID,
			"kind", childKind,
		)
		if s.recalc != nil {
			if err := s.recalc.Refresh(ctx, *result.ChildID); err != nil {
				// The child is stored; it is recalculated on its next edit.
				s.logger.Warn("failed to recalculate generated document",
					"child_id", *result.ChildID,
					"error", err,
				)
			}
		}
	}
	return result, nil
}

// Delete removes a document that is still editable and has no children,
// receipts or accounting entries.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if !doc.Editable {
		return fmt.Errorf("%w: status %s is not editable", ErrNotDeletable, doc.Status)
	}

	deps, err := s.store.CountDependents(ctx, id)
	if err != nil {
		return err
	}
	if deps.Any() {
		return fmt.Errorf("%w: %d children, %d receipts, %d entries",
			ErrNotDeletable, deps.Children, deps.Receipts, deps.Entries)
	}

	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	s.logger.Info("document deleted", "document_id", id)
	return nil
}

// SelectLines returns copies of the selected lines with fresh IDs, each
// pointing back at its source line. An empty selection copies every line. Partial quantities must be positive and not
// exceed the parent line's quantity in absolute value.
func SelectLines(lines []calculator.Line, selection []LineSelection) ([]calculator.Line, error) {
	if len(selection) == 0 {
		out := make([]calculator.Line, len(lines))
		for i, l := range lines {
			out[i] = copyLine(l)
		}
		return out, nil
	}

	byID := make(map[uuid.UUID]calculator.Line, len(lines))
	for _, l := range lines {
		byID[l.ID] = l
	}

	out := make([]calculator.Line, 0, len(selection))
	for _, sel := range selection {
		l, ok := byID[sel.LineID]
		if !ok {
			return nil, fmt.Errorf("%w: line %s not in document", ErrInvalidSelection, sel.LineID)
		}
		if !sel.Quantity.IsZero() {
			if sel.Quantity.IsNegative() || sel.Quantity.GreaterThan(l.Quantity.Abs()) {
				return nil, fmt.Errorf("%w: quantity %s for line %s", ErrInvalidSelection, sel.Quantity, sel.LineID)
			}
			q := sel.Quantity
			if l.Quantity.IsNegative() {
				q = q.Neg()
			}
			l.Quantity = q
		}
		out = append(out, copyLine(l))
	}
	return out, nil
}

func copyLine(l calculator.Line) calculator.Line {
	parent := l.ID
	l.ParentLineID = &parent
	l.ID = uuid.Nil
	return l
}

func childParams(doc *store.Document, kind calculator.DocumentKind) store.CreateDocumentParams {
	p := store.CreateDocumentParams{
		Kind:        kind,
		Direction:   doc.Direction,
		CompanyID:   doc.Company.ID,
		WarehouseID: doc.WarehouseID,
		ParentID:    &doc.ID,
		Currency:    doc.Currency,
		Country:     doc.Country,
		Province:    doc.Province,
		Discount1:   doc.Discount1,
		Discount2:   doc.Discount2,
		Status:      string(StatusDraft),
	}
	if doc.Partner != nil {
		p.PartnerID = &doc.Partner.ID
	}
	if doc.OperationForced {
		p.Operation = doc.Operation
		p.Forced = true
	}
	return p
}
