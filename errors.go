// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package marginvar

import (
	"errors"
	"fmt"
)

// ErrorKind classifies estimation failures.
type ErrorKind string

// Error kinds
const (
	KindInvalidConfiguration ErrorKind = "INVALID_CONFIGURATION"
	KindDimensionMismatch    ErrorKind = "DIMENSION_MISMATCH"
	KindNonPSDCovariance     ErrorKind = "NON_PSD_COVARIANCE"
	KindRefitFailure         ErrorKind = "REFIT_FAILURE"
	KindMissingCollaborator  ErrorKind = "MISSING_COLLABORATOR"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrInvalidConfiguration = &Error{Kind: KindInvalidConfiguration}
	ErrDimensionMismatch    = &Error{Kind: KindDimensionMismatch}
	ErrNonPSDCovariance     = &Error{Kind: KindNonPSDCovariance}
	ErrRefitFailure         = &Error{Kind: KindRefitFailure}
	ErrMissingCollaborator  = &Error{Kind: KindMissingCollaborator}
)

// Error is an estimation error with a kind
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func invalidConfig(format string, args ...any) *Error {
	return newError(KindInvalidConfiguration, nil, format, args...)
}

func dimensionMismatch(format string, args ...any) *Error {
	return newError(KindDimensionMismatch, nil, format, args...)
}

func missingCollaborator(format string, args ...any) *Error {
	return newError(KindMissingCollaborator, nil, format, args...)
}

// IsKind reports whether err or anything it wraps is an *Error of kind.
func IsKind(err error, kind ErrorKind) bool {
	return errors.Is(err, &Error{Kind: kind})
}
