// Package apperr holds the error taxonomy shared by the stock and alert
// services and its mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrMissingReason       = errors.New("missing reason")
	ErrInvalidSnoozeWindow = errors.New("invalid snooze window")
	ErrNotFound            = errors.New("not found")
	ErrAuditWriteFailed    = errors.New("audit write failed")
	ErrInvalidInput        = errors.New("invalid input")
)

// FieldError names the field that failed validation.
type FieldError struct {
	Field  string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s %s", e.Err, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return e.Err }

func InvalidQuantity(field, reason string) error {
	return &FieldError{Field: field, Reason: reason, Err: ErrInvalidQuantity}
}

func InvalidInput(field, reason string) error {
	return &FieldError{Field: field, Reason: reason, Err: ErrInvalidInput}
}

func MissingReason(field string) error {
	return &FieldError{Field: field, Reason: "must not be blank", Err: ErrMissingReason}
}

func InvalidSnoozeWindow(field, reason string) error {
	return &FieldError{Field: field, Reason: reason, Err: ErrInvalidSnoozeWindow}
}

// NotFound never says whether the id existed once; deleted and unknown rows
// produce the same message.
func NotFound(entity string) error {
	return fmt.Errorf("%s %w", entity, ErrNotFound)
}

// HTTPStatus picks the response code for an error coming out of a service.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrMissingReason),
		errors.Is(err, ErrInvalidSnoozeWindow),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
