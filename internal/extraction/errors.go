package extraction

import (
	"errors"
	"fmt"
)

// Common extraction errors
var (
	// ErrInvalidDetection is returned when a detector or OCR record is
	// malformed (non-positive box dimensions, confidence outside [0,1],
	// unknown symbol class). Invalid records are dropped individually;
	// the rest of the batch continues.
	ErrInvalidDetection = errors.New("invalid detection record")

	// ErrEmptyBatch is returned when a batch contains no usable records
	// at all. Unlike a single bad record this aborts the whole page.
	ErrEmptyBatch = errors.New("detection batch contains no valid records")
)

// ExtractionError wraps errors with context about normalization failures.
type ExtractionError struct {
	// Op is the operation that failed (e.g., "NormalizeSymbols").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("extraction: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("extraction: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *ExtractionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapExtractionError wraps an error as an ExtractionError if it isn't already one.
func WrapExtractionError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return err // Already wrapped
	}

	return &ExtractionError{Op: op, Err: err, Details: details}
}
