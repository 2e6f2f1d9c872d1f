package store

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the store wraps exactly one of these.
var (
	ErrConnectionFailed   = errors.New("connection failed")
	ErrQueryFailed        = errors.New("query failed")
	ErrTransactionFailed  = errors.New("transaction failed")
	ErrMigrationFailed    = errors.New("migration failed")
	ErrValidationFailed   = errors.New("validation failed")
	ErrCircularDependency = errors.New("circular dependency")
)

// OpError records the operation, the error kind and the underlying cause
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opErr(op string, kind, err error) error {
	// Keep the innermost classification when an OpError is wrapped again
	var inner *OpError
	if errors.As(err, &inner) {
		return err
	}
	return &OpError{Op: op, Kind: kind, Err: err}
}

// IsNotRetryable reports whether err is a caller mistake rather than an I/O failure
func IsNotRetryable(err error) bool {
	return errors.Is(err, ErrValidationFailed) || errors.Is(err, ErrCircularDependency)
}
