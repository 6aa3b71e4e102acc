package models

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is by callers that only care about the kind
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInsufficientData = errors.New("insufficient data")
)

// ValidationError represents a malformed dataset or source row
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

// InvalidParameterError is returned when a caller-supplied parameter fails
// membership or ordering checks. It is never recovered internally.
type InvalidParameterError struct {
	Parameter string
	Value     string
	Message   string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%q: %s", e.Parameter, e.Value, e.Message)
}

// Is lets errors.Is match ErrInvalidParameter
func (e *InvalidParameterError) Is(target error) bool {
	return target == ErrInvalidParameter
}

// IsTransient returns false as parameter errors are permanent
func (e *InvalidParameterError) IsTransient() bool {
	return false
}

// InsufficientDataError is returned when an operation has fewer usable
// observations than it needs
type InsufficientDataError struct {
	Operation string
	Required  int
	Got       int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s needs at least %d usable observations, got %d", e.Operation, e.Required, e.Got)
}

// Is lets errors.Is match ErrInsufficientData
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// IsTransient returns false; more data will not appear without a new selection
func (e *InsufficientDataError) IsTransient() bool {
	return false
}
