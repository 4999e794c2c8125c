package validation

import (
	"errors"
	"fmt"
)

// Common validation session errors
var (
	// ErrEntityNotFound is returned when an edit action references an
	// entity that does not exist in the session. The action is rejected
	// and the edit history is left untouched.
	ErrEntityNotFound = errors.New("entity not found in session")

	// ErrEntityExists is returned when an add action targets an id that
	// is already present.
	ErrEntityExists = errors.New("entity already exists in session")

	// ErrStaleSession is returned when a save carries a version that is
	// older than the stored one. The caller must refetch and retry;
	// stale writes are never merged.
	ErrStaleSession = errors.New("session version is stale")

	// ErrValidationIncomplete is returned when completion is requested
	// while the checklist still has pending items and the policy
	// requires full verification.
	ErrValidationIncomplete = errors.New("validation checklist incomplete")

	// ErrInvalidTransition is returned for session state transitions the
	// lifecycle does not allow (e.g. completing a session never opened).
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrInvalidAction is returned when an edit action is malformed
	// (unknown type, missing entity id, bad payload).
	ErrInvalidAction = errors.New("invalid edit action")

	// ErrCorruptHistory is returned when a persisted edit history cannot
	// be replayed on load. This is fatal for the session.
	ErrCorruptHistory = errors.New("corrupted edit history")

	// ErrSessionNotFound is returned by a SessionStore when no persisted
	// session exists for the drawing. It is the only load failure that
	// lets the manager start a fresh session.
	ErrSessionNotFound = errors.New("no persisted session for drawing")
)

// SessionError wraps errors with context about the failing session
// operation, including enough detail for the caller to retry correctly.
type SessionError struct {
	// Op is the operation that failed (e.g., "Apply", "Save").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string

	// EntityID is the entity an edit action referenced (if relevant).
	EntityID string

	// ExpectedVersion and ActualVersion describe a version conflict
	// (set when Err is ErrStaleSession).
	ExpectedVersion int64
	ActualVersion   int64
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	switch {
	case errors.Is(e.Err, ErrStaleSession):
		return fmt.Sprintf("validation: %s failed: %v (expected version %d, got %d)", e.Op, e.Err, e.ExpectedVersion, e.ActualVersion)
	case e.EntityID != "":
		return fmt.Sprintf("validation: %s failed for entity %s: %v", e.Op, e.EntityID, e.Err)
	case e.Details != "":
		return fmt.Sprintf("validation: %s failed: %s: %v", e.Op, e.Details, e.Err)
	default:
		return fmt.Sprintf("validation: %s failed: %v", e.Op, e.Err)
	}
}

// Unwrap returns the underlying error for error unwrapping.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *SessionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newSessionError(op string, err error, details string) *SessionError {
	return &SessionError{Op: op, Err: err, Details: details}
}

func newEntityError(op string, err error, entityID string) *SessionError {
	return &SessionError{Op: op, Err: err, EntityID: entityID}
}
