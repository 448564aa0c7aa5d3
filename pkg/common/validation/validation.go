// Package validation provides common validation utilities for beatflow.
package validation

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	bferrors "github.com/vnykmshr/beatflow/pkg/common/errors"
)

// ValidatePositiveDuration validates that a duration is greater than zero.
func ValidatePositiveDuration(module, field string, value time.Duration) error {
	if value <= 0 {
		return bferrors.NewValidationError(module, field, value, "must be positive").
			WithHint("use a duration greater than 0")
	}
	return nil
}

// ValidateNonNegativeDuration validates that a duration is zero or greater.
func ValidateNonNegativeDuration(module, field string, value time.Duration) error {
	if value < 0 {
		return bferrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 to disable or a positive duration")
	}
	return nil
}

// ValidateNotNil validates that an interface value is not nil, including
// typed nil pointers stored in an interface.
func ValidateNotNil(module, field string, value interface{}) error {
	if value == nil {
		return bferrors.NewValidationError(module, field, nil, "cannot be nil").
			WithHint("provide a valid " + field)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		if rv.IsNil() {
			return bferrors.NewValidationError(module, field, nil, "cannot be nil").
				WithHint("provide a valid " + field)
		}
	}
	return nil
}

// ValidateNotEmpty validates that a string value is not blank.
func ValidateNotEmpty(module, field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return bferrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	return nil
}

// ValidateRange validates that value lies in the closed interval [lo, hi].
func ValidateRange(module, field string, value, lo, hi int) error {
	if value < lo || value > hi {
		return bferrors.NewValidationError(module, field, value, "out of range").
			WithHint("use a value between " + strconv.Itoa(lo) + " and " + strconv.Itoa(hi))
	}
	return nil
}
