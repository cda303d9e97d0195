package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/forgecommerce/invoicing/internal/vat"
)

// VATValidator checks EU VAT numbers; *vat.VIESClient satisfies it.
type VATValidator interface {
	Validate(ctx context.Context, vatNumber string) (vat.VIESResult, error)
}

// VATNumberHandler lets clients check a partner's VAT number before it is
// used for intra-community detection.
type VATNumberHandler struct {
	validator VATValidator
	logger    *slog.Logger
}

func NewVATNumberHandler(validator VATValidator, logger *slog.Logger) *VATNumberHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VATNumberHandler{validator: validator, logger: logger}
}

// RegisterRoutes registers the VAT number validation route.
func (h *VATNumberHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/vat-numbers/validate", h.Validate)
}

type vatNumberRequest struct {
	VATNumber string `json:"vat_number"`
}

type vatNumberResponse struct {
	Valid              bool   `json:"valid"`
	VATNumber          string `json:"vat_number"`
	CompanyName        string `json:"company_name,omitempty"`
	Address            string `json:"address,omitempty"`
	ConsultationNumber string `json:"consultation_number,omitempty"`
}

// Validate handles POST /api/v1/vat-numbers/validate.
func (h *VATNumberHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req vatNumberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid request body"})
		return
	}

	vatNumber := strings.TrimSpace(strings.ToUpper(req.VATNumber))
	if vatNumber == "" {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "vat_number is required"})
		return
	}

	result, err := h.validator.Validate(r.Context(), vatNumber)
	if err != nil {
		h.logger.Warn("VIES validation error", "error", err, "vat_number", vatNumber)
		writeJSON(w, http.StatusServiceUnavailable, errorJSON{Error: "VAT number validation service is currently unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, vatNumberResponse{
		Valid:              result.Valid,
		VATNumber:          vatNumber,
		CompanyName:        result.CompanyName,
		Address:            result.CompanyAddress,
		ConsultationNumber: result.ConsultationNumber,
	})
}
