package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error types for consistent error handling across the ledger and chat layers.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrInsufficientFunds indicates not enough available balance for the operation.
type ErrInsufficientFunds struct {
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient funds: available=%s requested=%s",
		e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

// ErrConflict indicates a uniqueness violation, e.g. a duplicate account number.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrStorage wraps a failure of the underlying store.
type ErrStorage struct {
	Op  string
	Err error
}

func (e *ErrStorage) Error() string {
	return fmt.Sprintf("storage error [%s]: %v", e.Op, e.Err)
}

func (e *ErrStorage) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrUnauthorized indicates an invalid or missing session token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrorKind is the stable, machine readable name of an error category.
type ErrorKind string

const (
	KindInvalidInput      ErrorKind = "invalid_input"
	KindNotFound          ErrorKind = "not_found"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindConflict          ErrorKind = "conflict"
	KindStorage           ErrorKind = "storage"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindUnavailable       ErrorKind = "unavailable"
	KindInternal          ErrorKind = "internal"
)

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	var (
		validation   *ErrValidation
		notFound     *ErrNotFound
		insufficient *ErrInsufficientFunds
		conflict     *ErrConflict
		storage      *ErrStorage
		unauthorized *ErrUnauthorized
		circuitOpen  *ErrCircuitOpen
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return KindInvalidInput
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &insufficient):
		return KindInsufficientFunds
	case errors.As(err, &conflict):
		return KindConflict
	case errors.As(err, &circuitOpen):
		return KindUnavailable
	case errors.As(err, &storage):
		return KindStorage
	case errors.As(err, &unauthorized):
		return KindUnauthorized
	default:
		return KindInternal
	}
}

// ErrorPayload is the structured form of an error carried in replies and
// HTTP responses.
type ErrorPayload struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Field     string    `json:"field,omitempty"`
	Available string    `json:"available,omitempty"`
	Requested string    `json:"requested,omitempty"`
}

// NewErrorPayload builds the structured payload for err.
func NewErrorPayload(err error) *ErrorPayload {
	if err == nil {
		return nil
	}
	p := &ErrorPayload{Kind: KindOf(err), Message: err.Error()}

	var validation *ErrValidation
	if errors.As(err, &validation) {
		p.Field = validation.Field
		p.Message = validation.Message
	}

	var insufficient *ErrInsufficientFunds
	if errors.As(err, &insufficient) {
		p.Available = FormatMoney(insufficient.Available)
		p.Requested = FormatMoney(insufficient.Requested)
	}

	if p.Kind == KindStorage || p.Kind == KindInternal {
		// Driver details stay in the logs.
		p.Message = "the operation could not be completed, please try again later"
	}
	return p
}
