package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrValidation signals a rejected search request. No job is created.
	ErrValidation = errors.New("validation failed")
	// ErrPipeline signals an external tool failure (missing binary, timeout, non-zero exit, oversized output).
	ErrPipeline = errors.New("pipeline failed")
	// ErrParse signals malformed aligner output.
	ErrParse = errors.New("malformed aligner output")
	// ErrMappingUnavailable signals that the identity table could not be loaded.
	ErrMappingUnavailable = errors.New("identity mapping unavailable")
	// ErrIndexNotReady signals a missing or unusable search index.
	ErrIndexNotReady = errors.New("search index not ready")
	// ErrShuttingDown signals that the runner no longer accepts jobs.
	ErrShuttingDown = errors.New("runner is shutting down")
)

// ValidationError wraps ErrValidation with the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a validation error for field.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
