package model

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every domain error wraps exactly one of them.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrConflict           = errors.New("conflict")
)

var (
	ErrSlotNotFound        = fmt.Errorf("slot %w", ErrNotFound)
	ErrBookingNotFound     = fmt.Errorf("booking %w", ErrNotFound)
	ErrApplicationNotFound = fmt.Errorf("application %w", ErrNotFound)

	ErrSlotDeleted           = fmt.Errorf("%w: slot is no longer offered", ErrInvalidState)
	ErrBookingNotPending     = fmt.Errorf("%w: booking status is final", ErrInvalidState)
	ErrBookingManaged        = fmt.Errorf("%w: booking is managed by its application", ErrInvalidState)
	ErrApplicationNotPending = fmt.Errorf("%w: application is already approved", ErrInvalidState)

	ErrSlotFull = fmt.Errorf("%w: this slot is full, choose another", ErrCapacityExceeded)

	ErrNoScheduleSelected = fmt.Errorf("%w: no schedule selected", ErrPreconditionFailed)

	ErrSlotHasBookings  = fmt.Errorf("%w: slot still has bookings", ErrConflict)
	ErrLimitBelowBooked = fmt.Errorf("%w: limit is below the number of booked seats", ErrConflict)

	// ErrCounterUnderflow means a cancellation found booked == 0 while a booking
	// still referenced the slot.
	ErrCounterUnderflow = errors.New("booked counter underflow")
)

// FieldError is used to indicate an error with a specific field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Fields []FieldError
}

func NewValidationError(flds ...FieldError) *ValidationError {
	return &ValidationError{Fields: flds}
}

func (e *ValidationError) Add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Error: msg})
}

func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

// OrNil returns nil when no field failed, so callers can `return verr.OrNil()`.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	if e.Empty() {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Error)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// FieldMap flattens the field errors for JSON responses.
func (e *ValidationError) FieldMap() map[string]string {
	m := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		m[f.Field] = f.Error
	}
	return m
}
