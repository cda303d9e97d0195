package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forgecommerce/invoicing/internal/calculator"
	"github.com/forgecommerce/invoicing/internal/services/workflow"
	"github.com/forgecommerce/invoicing/internal/store"
)

// DocumentReader loads stored documents; *store.Store satisfies it.
type DocumentReader interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*store.Document, error)
	ListLines(ctx context.Context, documentID uuid.UUID) ([]calculator.Line, error)
	ListReceipts(ctx context.Context, documentID uuid.UUID) ([]store.Receipt, error)
}

// Calculations is implemented by the document service.
type Calculations interface {
	Recalculate(ctx context.Context, id uuid.UUID, persist bool) (*store.Document, []calculator.Line, error)
	Preview(ctx context.Context, doc calculator.Document, lines []calculator.Line) (calculator.Result, error)
	AddProductLine(ctx context.Context, id uuid.UUID, ref string, quantity decimal.Decimal) (calculator.Line, error)
}

// Lifecycle is implemented by the workflow service.
type Lifecycle interface {
	ChangeStatus(ctx context.Context, id uuid.UUID, to workflow.Status, selection []workflow.LineSelection) (workflow.ChangeResult, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// DocumentHandler serves the document API.
type DocumentHandler struct {
	reader    DocumentReader
	calc      Calculations
	lifecycle Lifecycle
	logger    *slog.Logger
}

func NewDocumentHandler(reader DocumentReader, calc Calculations, lifecycle Lifecycle, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentHandler{reader: reader, calc: calc, lifecycle: lifecycle, logger: logger}
}

// RegisterRoutes registers the document routes on mux.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/documents/{id}", h.Get)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.Delete)
	mux.HandleFunc("POST /api/v1/documents/{id}/recalculate", h.Recalculate)
	mux.HandleFunc("POST /api/v1/documents/{id}/lines", h.AddLine)
	mux.HandleFunc("POST /api/v1/documents/{id}/status", h.ChangeStatus)
	mux.HandleFunc("POST /api/v1/calculate", h.Calculate)
}

type documentJSON struct {
	ID        uuid.UUID                  `json:"id"`
	Number    string                     `json:"number,omitempty"`
	Kind      calculator.DocumentKind    `json:"kind"`
	Direction calculator.Direction       `json:"direction"`
	Status    string                     `json:"status"`
	Editable  bool                       `json:"editable"`
	ParentID  *uuid.UUID                 `json:"parent_id,omitempty"`
	Company   calculator.Company         `json:"company"`
	Partner   *calculator.TradingPartner `json:"partner"`
	Currency  string                     `json:"currency"`
	Date      string                     `json:"date"`
	Discount1 decimal.Decimal            `json:"discount1"`
	Discount2 decimal.Decimal            `json:"discount2"`
	Operation calculator.Operation       `json:"operation"`
	Totals    calculator.Totals          `json:"totals"`
	Lines     []calculator.Line          `json:"lines"`
	Receipts  []receiptJSON              `json:"receipts,omitempty"`
}

type receiptJSON struct {
	Number  int             `json:"number"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate string          `json:"due_date"`
	Paid    bool            `json:"paid"`
}

func toDocumentJSON(doc *store.Document, lines []calculator.Line, receipts []store.Receipt) documentJSON {
	if lines == nil {
		lines = []calculator.Line{}
	}
	out := documentJSON{
		ID:        doc.ID,
		Number:    doc.Number,
		Kind:      doc.Kind,
		Direction: doc.Direction,
		Status:    doc.Status,
		Editable:  doc.Editable,
		ParentID:  doc.ParentID,
		Company:   doc.Company,
		Partner:   doc.Partner,
		Currency:  doc.Currency,
		Date:      doc.Date.Format("2006-01-02"),
		Discount1: doc.Discount1,
		Discount2: doc.Discount2,
		Operation: doc.Operation,
		Totals:    doc.Totals,
		Lines:     lines,
	}
	for _, r := range receipts {
		out.Receipts = append(out.Receipts, receiptJSON{
			Number:  r.Number,
			Amount:  r.Amount,
			DueDate: r.DueDate.Format("2006-01-02"),
			Paid:    r.Paid,
		})
	}
	return out
}

// Get handles GET /api/v1/documents/{id}.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	doc, err := h.reader.GetDocument(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	lines, err := h.reader.ListLines(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var receipts []store.Receipt
	if doc.Kind == calculator.KindInvoice {
		if receipts, err = h.reader.ListReceipts(r.Context(), id); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, toDocumentJSON(doc, lines, receipts))
}

type recalculateRequest struct {
	// Persist defaults to true.
	Persist *bool `json:"persist"`
}

// Recalculate handles POST /api/v1/documents/{id}/recalculate. An empty
// body persists the result; {"persist": false} only returns it.
func (h *DocumentHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req recalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid request body"})
		return
	}
	persist := req.Persist == nil || *req.Persist

	doc, lines, err := h.calc.Recalculate(r.Context(), id, persist)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentJSON(doc, lines, nil))
}

type addLineRequest struct {
	ProductRef string          `json:"product_ref"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// AddLine handles POST /api/v1/documents/{id}/lines.
func (h *DocumentHandler) AddLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req addLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid request body"})
		return
	}
	if req.ProductRef == "" || req.Quantity.IsZero() {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "product_ref and a non-zero quantity are required"})
		return
	}

	line, err := h.calc.AddProductLine(r.Context(), id, req.ProductRef, req.Quantity)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, line)
}

type statusRequest struct {
	Status workflow.Status          `json:"status"`
	Lines  []workflow.LineSelection `json:"lines"`
}

// ChangeStatus handles POST /api/v1/documents/{id}/status.
func (h *DocumentHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "status is required"})
		return
	}

	res, err := h.lifecycle.ChangeStatus(r.Context(), id, req.Status, req.Lines)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Delete handles DELETE /api/v1/documents/{id}.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.lifecycle.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type calculateRequest struct {
	Document calculator.Document `json:"document"`
	Lines    []calculator.Line   `json:"lines"`
}

type calculateResponse struct {
	Operation calculator.Operation `json:"operation"`
	Lines     []calculator.Line    `json:"lines"`
	Totals    calculator.Totals    `json:"totals"`
}

// Calculate handles POST /api/v1/calculate. It computes an unsaved
// document and stores nothing.
func (h *DocumentHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid request body"})
		return
	}

	res, err := h.calc.Preview(r.Context(), req.Document, req.Lines)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, calculateResponse{
		Operation: res.Operation.Operation,
		Lines:     res.Lines,
		Totals:    res.Totals,
	})
}

func (h *DocumentHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid document ID"})
		return uuid.Nil, false
	}
	return id, true
}
