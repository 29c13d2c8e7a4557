package domain

import (
	"errors"
	"fmt"
)

// Error codes shared by every service. They double as the machine-readable
// "error" field of API responses.
const (
	CodeValidation   = "validation_error"
	CodeConflict     = "conflict_error"
	CodeForbidden    = "authorization_error"
	CodeUnauthorized = "unauthorized"
	CodeNotFound     = "not_found"
	CodeInvalidState = "invalid_state"
	CodeConcurrent   = "concurrent_modification"
	CodeTransient    = "transient_store_error"
)

// DomainError is a typed error carrying an API-facing code.
type DomainError struct {
	Code    string
	Message string
	// Kind refines Code, e.g. the conflict kind of a scheduling conflict.
	Kind string
	err  error
}

func (e *DomainError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s(%s): %s", e.Code, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *DomainError) Unwrap() error { return e.err }

// NewValidationError reports malformed or missing input.
func NewValidationError(msg string) *DomainError {
	return &DomainError{Code: CodeValidation, Message: msg}
}

// NewNotFoundError reports an unknown entity.
func NewNotFoundError(entity, id string) *DomainError {
	return &DomainError{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// NewConflictError reports a lost optimistic-locking race.
func NewConflictError(msg string) *DomainError {
	return &DomainError{Code: CodeConcurrent, Message: msg}
}

// NewSchedulingConflictError reports a booking that collides with existing state.
func NewSchedulingConflictError(kind, msg string) *DomainError {
	return &DomainError{Code: CodeConflict, Kind: kind, Message: msg}
}

// NewForbiddenError reports a role or ownership mismatch.
func NewForbiddenError(msg string) *DomainError {
	return &DomainError{Code: CodeForbidden, Message: msg}
}

// NewUnauthorizedError reports a missing or invalid identity.
func NewUnauthorizedError(msg string) *DomainError {
	return &DomainError{Code: CodeUnauthorized, Message: msg}
}

// NewInvalidStateError reports a state machine transition that is not allowed.
func NewInvalidStateError(from, to string) *DomainError {
	return &DomainError{
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

// NewTransientError wraps a store failure that is safe to retry.
func NewTransientError(msg string, cause error) *DomainError {
	return &DomainError{Code: CodeTransient, Message: msg, err: cause}
}

// AsDomainError extracts a *DomainError from err's chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	de, ok := AsDomainError(err)
	return ok && de.Code == code
}

// IsConflictKind reports whether err is a scheduling conflict of the given kind.
func IsConflictKind(err error, kind string) bool {
	de, ok := AsDomainError(err)
	return ok && de.Code == CodeConflict && de.Kind == kind
}
