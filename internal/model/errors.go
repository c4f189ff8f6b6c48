package model

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks caller mistakes: unknown enumerations, empty or
	// malformed batches, bad options.
	ErrValidation = errors.New("validation error")

	// ErrDataProcessing marks computations that could not proceed on the
	// supplied data.
	ErrDataProcessing = errors.New("data processing error")
)

// ValidationError describes a rejected input
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// DataProcessingError carries the vehicle or column a computation failed on
type DataProcessingError struct {
	Op        string
	VehicleID string
	Column    string
	Err       error
}

func (e *DataProcessingError) Error() string {
	msg := e.Op
	if e.VehicleID != "" {
		msg += fmt.Sprintf(" (vehicle %s)", e.VehicleID)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(" (column %s)", e.Column)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataProcessingError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrDataProcessing) match
func (e *DataProcessingError) Is(target error) bool {
	return target == ErrDataProcessing
}
