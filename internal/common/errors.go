package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Pipeline error taxonomy. Every failure in the core wraps exactly one of
// these sentinels so callers can classify without string matching.
var (
	ErrValidation       = errors.New("validation failed")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrExtractionEmpty  = errors.New("extraction produced no text")
	ErrRedaction        = errors.New("redaction failed")
	ErrPersistence      = errors.New("persistence failed")
	ErrNotFound         = errors.New("resource not found")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func ValidationErrorf(format string, args ...any) error {
	return NewAppError("VALIDATION", fmt.Sprintf(format, args...), ErrValidation)
}

// PersistenceError wraps a store failure so it classifies as ErrPersistence
// while keeping the underlying cause in the message chain.
func PersistenceError(message string, cause error) error {
	return NewAppError("PERSISTENCE", fmt.Sprintf("%s: %v", message, cause), ErrPersistence)
}
