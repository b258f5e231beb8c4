package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError rejects bad input before any write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError is surfaced after bounded retries on concurrent modification.
type ConflictError struct {
	Attempts int
	Last     error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("operation conflicted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ConflictError) Unwrap() error { return e.Last }

// ExternalServiceError wraps failures of collaborators outside the data
// transaction (AI suggestions, bank aggregator, blob storage). Never fatal
// to the enclosing ledger operation.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func NewExternalServiceError(service string, err error) error {
	return &ExternalServiceError{Service: service, Err: err}
}

// InvariantViolation means a fund balance no longer equals the replayed sum
// of its transactions. The offending operation must halt, never paper over.
type InvariantViolation struct {
	Detail string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Detail
}

func NewInvariantViolation(format string, args ...any) error {
	return &InvariantViolation{Detail: fmt.Sprintf(format, args...)}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrorRecordNotFound)
}
