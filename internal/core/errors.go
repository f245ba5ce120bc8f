package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnknownCurrency = errors.New("unknown currency")
	ErrDegradedData    = errors.New("degraded data")
	ErrIntegrity       = errors.New("data integrity violation")
	ErrValidation      = errors.New("validation failed")
)

// ValidationError reports a rejected input with a human-readable message.
type ValidationError struct {
	Field   string
	Message string
	Err     error // optional sentinel, e.g. ErrUnknownCurrency
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

// UnknownCurrency reports a currency code with no known rate.
func UnknownCurrency(code string) *ValidationError {
	return &ValidationError{Field: "currency", Message: fmt.Sprintf("unknown currency %q", code), Err: ErrUnknownCurrency}
}

// ConflictError reports a lost race on per-owner state. Callers may retry.
type ConflictError struct {
	Resource string
	Message  string
}

func NewConflictError(resource, message string) *ConflictError {
	return &ConflictError{Resource: resource, Message: message}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Message)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// IntegrityError reports stored records that contradict their own invariants.
type IntegrityError struct {
	Entity  string
	ID      string
	Message string
}

func NewIntegrityError(entity, id, message string) *IntegrityError {
	return &IntegrityError{Entity: entity, ID: id, Message: message}
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Message)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// DegradedDataError is returned when a computation needs exchange rates that
// are neither fetchable nor cached.
type DegradedDataError struct {
	Reason string
	Err    error
}

func (e *DegradedDataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("degraded data: %s: %v", e.Reason, e.Err)
	}
	return "degraded data: " + e.Reason
}

func (e *DegradedDataError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDegradedData, e.Err}
	}
	return []error{ErrDegradedData}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
