// Package apperror defines the error taxonomy shared by the stores, the portal
// service and the HTTP layer.
package apperror

import (
	"errors"
	"fmt"
)

// ErrNoRefillsRemaining is returned when a refill is requested for a
// prescription whose refill allowance is exhausted.
var ErrNoRefillsRemaining = errors.New("no refills remaining")

// ValidationError reports missing or malformed input
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

// NotFoundError reports a reference to an id that does not exist
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// UnexpectedError wraps a failure nobody planned for. Its message is safe to
// return to callers; the cause is only for logs.
type UnexpectedError struct {
	Op    string
	Cause error
}

func (e *UnexpectedError) Error() string {
	return "unexpected error during " + e.Op
}

func (e *UnexpectedError) Unwrap() error { return e.Cause }

// Validation builds a ValidationError
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Required reports a missing required field
func Required(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}

// NotFound builds a NotFoundError
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Unexpected wraps err as an UnexpectedError unless it already belongs to the
// taxonomy.
func Unexpected(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsValidation(err) || IsNotFound(err) || errors.Is(err, ErrNoRefillsRemaining) {
		return err
	}
	var ue *UnexpectedError
	if errors.As(err, &ue) {
		return err
	}
	return &UnexpectedError{Op: op, Cause: err}
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
