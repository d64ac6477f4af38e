package service

import (
	"errors"
	"fmt"
)

// ErrRegistrationClosed is returned when an operation lands outside the
// event's registration window.
var ErrRegistrationClosed = errors.New("registration is closed")

// ErrInvalidToken is returned for any capability-token failure. It is
// deliberately generic: the caller never learns which part failed.
var ErrInvalidToken = errors.New("invalid token")

// ValidationError reports a malformed field or answer.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
