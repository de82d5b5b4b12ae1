package scheduling

import "fmt"

// ValidationError reports malformed input: bad date ranges, inverted time
// windows, unsupported durations.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError formats a ValidationError.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError reports an overlapping block on generation or a lost race on
// a claim. Callers are expected to re-query and pick a different interval.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// NewConflictError formats a ConflictError.
func NewConflictError(format string, args ...any) *ConflictError {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown doctor, block or appointment.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ProtectedResourceError reports a disable or delete attempted on a block that
// currently holds a non-cancelled appointment.
type ProtectedResourceError struct {
	Msg string
}

func (e *ProtectedResourceError) Error() string { return e.Msg }

// NewProtectedResourceError formats a ProtectedResourceError.
func NewProtectedResourceError(format string, args ...any) *ProtectedResourceError {
	return &ProtectedResourceError{Msg: fmt.Sprintf(format, args...)}
}
