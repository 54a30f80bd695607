package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a rejected submission or query. Nothing is written.
	ErrValidation = errors.New("validation failed")
	// ErrStorage marks a persistence failure. Callers may retry the whole operation.
	ErrStorage = errors.New("storage failure")
	// ErrMissingFields is reported when a required submit field is absent.
	ErrMissingFields = &ValidationError{Reason: "Missing required fields"}
)

// ValidationError describes why input was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StorageError wraps a failure from the score store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
