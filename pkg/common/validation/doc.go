// Package validation provides common validation utilities for configuration
// parameters and entry constructors across beatflow.
//
// Every function returns a *errors.ValidationError so callers can report
// consistent messages and match with errors.Is(err, errors.ErrInvalidConfiguration).
package validation
