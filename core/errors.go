package core

import "github.com/pkg/errors"

// ErrUnavailable is returned (possibly wrapped) when the remote store cannot be reached.
var ErrUnavailable = errors.New("remote store unavailable")

// IsUnavailable reports whether err was caused by an unreachable remote store.
func IsUnavailable(err error) bool {
	return errors.Cause(err) == ErrUnavailable
}

// FieldError is the error of a single input field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is a user input error. Err is the overall error, Fields the per-field ones.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err *ValidationError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	if len(err.Fields) > 0 {
		return err.Fields[0].Field + ": " + err.Fields[0].Error
	}
	return "invalid input"
}

func (err *ValidationError) Unwrap() error { return err.Err }

// FieldMap returns the field errors by field name, nil when there are none.
func (err *ValidationError) FieldMap() map[string]string {
	if len(err.Fields) == 0 {
		return nil
	}
	res := make(map[string]string, len(err.Fields))
	for _, f := range err.Fields {
		if _, ok := res[f.Field]; !ok {
			res[f.Field] = f.Error
		}
	}
	return res
}

// ShutdownError means the process cannot keep serving, e.g. its database handle was closed.
type ShutdownError struct {
	Reason string
}

func NewShutdownError(reason string) error {
	return errors.WithStack(&ShutdownError{Reason: reason})
}

func (err *ShutdownError) Error() string {
	return "shutting down: " + err.Reason
}

func IsShutdown(err error) bool {
	var sErr *ShutdownError
	return errors.As(err, &sErr)
}
