package calculator

import "errors"

var (
	ErrNotEditable     = errors.New("document is not editable")
	ErrMissingPartner  = errors.New("document has no trading partner")
	ErrUnknownTaxCode  = errors.New("unknown tax code")
	ErrInvalidDocument = errors.New("invalid document")
)
