// Package errors extends the standard "errors" package with multi errors and prefixed (nested) errors.
// Use this package instead of the standard one, it re-exports Is, As and Unwrap.
package errors

import (
	"errors"
	"fmt"
)

type wrappedError struct {
	msg string
	err error
}

func New(message string) error {
	return errors.New(message) // nolint: forbidigo
}

// Errorf creates a new error, the %w verb wraps an error.
func Errorf(format string, a ...any) error {
	return fmt.Errorf(format, a...) // nolint: forbidigo
}

// Wrap returns an error with a new message, the original error is accessible by Unwrap.
func Wrap(err error, message string) error {
	return &wrappedError{msg: message, err: err}
}

func Wrapf(err error, format string, a ...any) error {
	return &wrappedError{msg: fmt.Sprintf(format, a...), err: err}
}

func Is(err, target error) bool {
	return errors.Is(err, target) // nolint: forbidigo
}

func As(err error, target any) bool {
	return errors.As(err, target) // nolint: forbidigo
}

func Unwrap(err error) error {
	return errors.Unwrap(err) // nolint: forbidigo
}

func (e *wrappedError) Error() string {
	return e.msg
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
