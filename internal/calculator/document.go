package calculator

import (
	"errors"
	"fmt"

	"github.com/invopop/validation"
	"github.com/shopspring/decimal"
)

// Validate checks the document fields the calculator depends on. The
// returned error wraps ErrInvalidDocument and a validation.Errors map keyed
// by JSON field name.
func (d *Document) Validate() error {
	err := validation.ValidateStruct(d,
		validation.Field(&d.Kind, validation.Required,
			validation.In(KindQuote, KindOrder, KindDeliveryNote, KindInvoice)),
		validation.Field(&d.Direction, validation.Required,
			validation.In(DirectionSale, DirectionPurchase)),
		validation.Field(&d.Partner, validation.Required),
		validation.Field(&d.Discount1, validation.By(validPercentage)),
		validation.Field(&d.Discount2, validation.By(validPercentage)),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return nil
}

// Validate checks a single line.
func (l *Line) Validate() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.Discount1, validation.By(validPercentage)),
		validation.Field(&l.Discount2, validation.By(validPercentage)),
	)
}

func validateLines(lines []Line) error {
	errs := validation.Errors{}
	for i := range lines {
		if err := lines[i].Validate(); err != nil {
			errs[fmt.Sprintf("lines.%d", i)] = err
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, errs)
	}
	return nil
}

var errPercentageRange = errors.New("must be between 0 and 100")

func validPercentage(value any) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return nil
	}
	if d.IsNegative() || d.GreaterThan(hundred) {
		return errPercentageRange
	}
	return nil
}
