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

// Common application errors
var (
	// ErrUnsupportedFileType rejects uploads whose extension is not an
	// accepted raster/document format.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrSessionNotFound is the normal, expected miss for an unknown or
	// expired session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrFieldIndexExhausted guards cursor access past a completed session.
	ErrFieldIndexExhausted = errors.New("field index exhausted")

	// ErrCursorConflict reports a lost compare-and-swap on current_index,
	// i.e. a concurrent respond already advanced this session.
	ErrCursorConflict = errors.New("session cursor conflict")

	// ErrExtractionFailed wraps any failure of the field extraction step.
	ErrExtractionFailed = errors.New("field extraction failed")

	// ErrExtractionParse marks unusable model output during extraction.
	ErrExtractionParse = errors.New("extraction response parse error")

	// ErrJudgmentParse marks unusable model output during answer validation.
	ErrJudgmentParse = errors.New("judgment response parse error")

	ErrInvalidInput = errors.New("invalid input")
	ErrDatabase     = errors.New("database error")
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
