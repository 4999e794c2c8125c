package ingest

import (
	"errors"
	"fmt"
)

// Common ingest errors
var (
	// ErrMissingCredentials is returned when neither GOOGLE_APPLICATION_CREDENTIALS
	// nor GOOGLE_CREDENTIALS environment variables are configured.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrInvalidConfiguration is returned when the adapter configuration is invalid.
	ErrInvalidConfiguration = errors.New("invalid OCR adapter configuration")

	// ErrProcessingFailed is returned when the cloud OCR engine fails to
	// process the page.
	ErrProcessingFailed = errors.New("OCR processing failed")

	// ErrEmptyPage is returned when the engine detects no text at all.
	ErrEmptyPage = errors.New("page contains no detectable text")

	// ErrPageTooLarge is returned when the page image exceeds the
	// synchronous processing size limit (20MB).
	ErrPageTooLarge = errors.New("page exceeds the maximum size limit (20MB)")
)

// IngestError wraps errors with context about the OCR ingest failure.
type IngestError struct {
	// Op is the operation that failed (e.g., "ExtractText").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *IngestError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ingest: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ingest: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *IngestError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *IngestError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapIngestError wraps an error as an IngestError if it isn't already one.
func WrapIngestError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ingErr *IngestError
	if errors.As(err, &ingErr) {
		return err // Already wrapped
	}

	return &IngestError{Op: op, Err: err, Details: details}
}
