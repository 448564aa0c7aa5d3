package errors

import (
	"errors"
	"fmt"
)

// Common error types used across the beatflow packages

var (
	// ErrClosed indicates that an operation was attempted on a closed resource
	ErrClosed = errors.New("resource is closed")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrNotFound indicates that a schedule entry is absent from the store
	ErrNotFound = errors.New("entry not found")

	// ErrUnsupportedType indicates a value the codec cannot encode
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrInvalidState indicates an illegal entry state transition
	ErrInvalidState = errors.New("invalid state")

	// ErrLockUnavailable indicates the scheduler lock is held by another process
	ErrLockUnavailable = errors.New("lock unavailable")
)

// NotFoundError reports a missing schedule entry.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("entry %q not found", e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// UnsupportedTypeError reports a value with no known wire representation.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("object of type %s cannot be encoded: implement schedule.Encodable for compatibility", e.Type)
}

func (e *UnsupportedTypeError) Unwrap() error { return ErrUnsupportedType }

// InvalidStateError reports a rejected state transition.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return "invalid state: " + e.Reason
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// LockUnavailableError reports that another owner holds the lock at Key.
type LockUnavailableError struct {
	Key string
}

func (e *LockUnavailableError) Error() string {
	return fmt.Sprintf("lock %q is held by another scheduler", e.Key)
}

func (e *LockUnavailableError) Unwrap() error { return ErrLockUnavailable }

// ValidationError describes a rejected configuration or constructor value.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
}

// NewValidationError creates a ValidationError without a hint.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// WithHint sets a remediation hint and returns the same error for chaining.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }

// OperationError wraps a failure of a backing-store operation.
type OperationError struct {
	Module    string
	Operation string
	Cause     error
	Context   string
}

// NewOperationError creates an OperationError for module.operation.
func NewOperationError(module, operation string, cause error) *OperationError {
	return &OperationError{
		Module:    module,
		Operation: operation,
		Cause:     cause,
	}
}

// WithContext attaches extra detail and returns the same error for chaining.
func (e *OperationError) WithContext(context string) *OperationError {
	e.Context = context
	return e
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s.%s failed: %v", e.Module, e.Operation, e.Cause)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg
}

func (e *OperationError) Unwrap() error { return e.Cause }

// IsRetryable returns true if the error indicates a condition that the next
// scheduler tick may resolve.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrLockUnavailable) {
		return true
	}
	var opErr *OperationError
	return errors.As(err, &opErr)
}

// IsTemporary returns true if the error indicates a temporary condition
func IsTemporary(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrLockUnavailable)
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
