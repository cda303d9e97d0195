package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/invopop/validation"

	"github.com/forgecommerce/invoicing/internal/calculator"
	"github.com/forgecommerce/invoicing/internal/services/workflow"
	"github.com/forgecommerce/invoicing/internal/store"
)

type errorJSON struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent.
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// writeError maps service errors to HTTP statuses. Unknown errors are
// logged and reported as 500 without details.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, msg := http.StatusInternalServerError, "internal server error"
	switch {
	case errors.Is(err, store.ErrNotFound):
		status, msg = http.StatusNotFound, "document not found"
	case errors.Is(err, calculator.ErrNotEditable):
		status, msg = http.StatusConflict, "document is not editable"
	case errors.Is(err, workflow.ErrInvalidTransition):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, workflow.ErrNotDeletable):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, calculator.ErrMissingPartner),
		errors.Is(err, calculator.ErrUnknownTaxCode),
		errors.Is(err, workflow.ErrInvalidSelection):
		status, msg = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, calculator.ErrInvalidDocument):
		writeJSON(w, http.StatusUnprocessableEntity, errorJSON{
			Error:  "invalid document",
			Fields: fieldErrors(err),
		})
		return
	default:
		logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorJSON{Error: msg})
}

func fieldErrors(err error) map[string]string {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for field, e := range verrs {
		out[field] = e.Error()
	}
	return out
}
