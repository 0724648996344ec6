package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrDuplicateRequest   = errors.New("duplicate request")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInfrastructure     = errors.New("infrastructure failure")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ProductError carries the product identity of a rejected order line.
type ProductError struct {
	Err       error
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e *ProductError) Error() string {
	if errors.Is(e.Err, ErrInsufficientStock) {
		return fmt.Sprintf("insufficient stock for product %d (%s): requested %d, available %d",
			e.ProductID, e.Name, e.Requested, e.Available)
	}
	if e.Name == "" {
		return fmt.Sprintf("product %d is unavailable", e.ProductID)
	}
	return fmt.Sprintf("product %d (%s) is unavailable", e.ProductID, e.Name)
}

func (e *ProductError) Unwrap() error { return e.Err }

type InfraError struct {
	Op  string
	Err error
}

func (e *InfraError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *InfraError) Unwrap() []error { return []error{ErrInfrastructure, e.Err} }

// Infra wraps a storage or broker failure. Domain errors pass through untouched.
func Infra(op string, err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != "internal" {
		return err
	}
	return &InfraError{Op: op, Err: err}
}

func NotFound(entity string, id any) error {
	return fmt.Errorf("%s %v: %w", entity, id, ErrNotFound)
}

func InvalidTransition(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

// Kind maps an error to the stable code used by HTTP problems and socket error events.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate_request"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInfrastructure):
		return "infrastructure"
	}
	return "internal"
}
