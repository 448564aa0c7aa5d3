package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCommonErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ErrClosed", ErrClosed, "resource is closed"},
		{"ErrTimeout", ErrTimeout, "operation timed out"},
		{"ErrInvalidConfiguration", ErrInvalidConfiguration, "invalid configuration"},
		{"ErrNotFound", ErrNotFound, "entry not found"},
		{"ErrUnsupportedType", ErrUnsupportedType, "unsupported type"},
		{"ErrInvalidState", ErrInvalidState, "invalid state"},
		{"ErrLockUnavailable", ErrLockUnavailable, "lock unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		contains string
	}{
		{"not found", &NotFoundError{Name: "backup"}, ErrNotFound, `"backup"`},
		{"unsupported", &UnsupportedTypeError{Type: "chan int"}, ErrUnsupportedType, "chan int"},
		{"invalid state", &InvalidStateError{Reason: "zero instant"}, ErrInvalidState, "zero instant"},
		{"lock", &LockUnavailableError{Key: "beat::lock"}, ErrLockUnavailable, "beat::lock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.sentinel)
			}
			if !strings.Contains(tt.err.Error(), tt.contains) {
				t.Errorf("Error() = %q, want substring %q", tt.err.Error(), tt.contains)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "without hint",
			err: &ValidationError{
				Module: "entry",
				Field:  "name",
				Value:  "",
				Reason: "cannot be empty",
			},
			want: "entry: invalid name= (cannot be empty)",
		},
		{
			name: "with hint",
			err: &ValidationError{
				Module: "config",
				Field:  "beat_max_interval",
				Value:  0,
				Reason: "must be positive",
				Hint:   "use a value greater than 0",
			},
			want: "config: invalid beat_max_interval=0 (must be positive) - use a value greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationError_Unwrap(t *testing.T) {
	verr := NewValidationError("test", "field", 0, "test")

	if !errors.Is(verr, ErrInvalidConfiguration) {
		t.Error("ValidationError should wrap ErrInvalidConfiguration")
	}

	result := verr.WithHint("hint")
	if result != verr {
		t.Error("WithHint should return the same instance")
	}
}

func TestOperationError(t *testing.T) {
	cause := errors.New("connection refused")
	opErr := NewOperationError("store", "Save", cause).WithContext("beat:backup")

	want := "store.Save failed: connection refused (beat:backup)"
	if got := opErr.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(opErr, cause) {
		t.Error("OperationError should wrap the cause error")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", ErrTimeout, true},
		{"lock", &LockUnavailableError{Key: "k"}, true},
		{"store transport", NewOperationError("store", "Load", errors.New("i/o timeout")), true},
		{"not found", &NotFoundError{Name: "x"}, false},
		{"invalid config", ErrInvalidConfiguration, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
