package workflow

import (
	"fmt"

	"github.com/forgecommerce/invoicing/internal/calculator"
)

// Status is a document lifecycle status.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusApproved  Status = "approved"
	StatusClosed    Status = "closed"
	StatusCancelled Status = "cancelled"
)

// State describes a status: whether documents in it can be recalculated and
// which statuses it can move to.
type State struct {
	Status   Status
	Editable bool
	// Generates is set on statuses that create a child document when
	// entered.
	Generates bool
	Next      []Status
}

var states = map[Status]State{
	StatusDraft: {
		Status:   StatusDraft,
		Editable: true,
		Next:     []Status{StatusApproved, StatusCancelled},
	},
	StatusApproved: {
		Status:    StatusApproved,
		Generates: true,
		Next:      []Status{StatusClosed},
	},
	StatusClosed:    {Status: StatusClosed},
	StatusCancelled: {Status: StatusCancelled},
}

// nextKind is the document a kind turns into when approved.
var nextKind = map[calculator.DocumentKind]calculator.DocumentKind{
	calculator.KindQuote:        calculator.KindOrder,
	calculator.KindOrder:        calculator.KindDeliveryNote,
	calculator.KindDeliveryNote: calculator.KindInvoice,
}

// Lookup returns the state of status.
func Lookup(status Status) (State, bool) {
	s, ok := states[status]
	return s, ok
}

// ChildKind returns the kind of document generated when a document of kind
// enters status, or false when none is.
func ChildKind(kind calculator.DocumentKind, status Status) (calculator.DocumentKind, bool) {
	s, ok := states[status]
	if !ok || !s.Generates {
		return "", false
	}
	next, ok := nextKind[kind]
	return next, ok
}

// Transition validates moving from one status to another and returns the
// target state.
func Transition(from, to Status) (State, error) {
	current, ok := states[from]
	if !ok {
		return State{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	target, ok := states[to]
	if !ok {
		return State{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	for _, s := range current.Next {
		if s == to {
			return target, nil
		}
	}
	return State{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
