package errors

import (
	"fmt"
	"sync"
)

// MultiError collects errors, it is safe for concurrent use.
type MultiError interface {
	error
	Len() int
	Unwrap() []error
	WrappedErrors() []error
	Append(errs ...error)
	AppendWithPrefix(err error, prefix string)
	AppendWithPrefixf(err error, format string, a ...any)
	ErrorOrNil() error
}

type multiError struct {
	lock   *sync.Mutex
	errors []error
}

func NewMultiError() MultiError {
	return &multiError{lock: &sync.Mutex{}}
}

func (e *multiError) Len() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.errors)
}

func (e *multiError) Error() string {
	return Format(e)
}

func (e *multiError) Unwrap() []error {
	return e.WrappedErrors()
}

func (e *multiError) WrappedErrors() []error {
	e.lock.Lock()
	defer e.lock.Unlock()
	out := make([]error, len(e.errors))
	copy(out, e.errors)
	return out
}

// Append errors, nil values are skipped, nested multi errors are flattened.
func (e *multiError) Append(errs ...error) {
	for _, err := range errs {
		if err == nil {
			continue
		}
		if v, ok := err.(MultiError); ok { // nolint: errorlint
			e.Append(v.WrappedErrors()...)
			continue
		}
		e.lock.Lock()
		e.errors = append(e.errors, err)
		e.lock.Unlock()
	}
}

func (e *multiError) AppendWithPrefix(err error, prefix string) {
	if err != nil {
		e.Append(PrefixError(err, prefix))
	}
}

func (e *multiError) AppendWithPrefixf(err error, format string, a ...any) {
	e.AppendWithPrefix(err, fmt.Sprintf(format, a...))
}

// ErrorOrNil returns nil if there is no error, the only error if there is one, otherwise the MultiError itself.
func (e *multiError) ErrorOrNil() error {
	switch e.Len() {
	case 0:
		return nil
	case 1:
		return e.WrappedErrors()[0]
	default:
		return e
	}
}
