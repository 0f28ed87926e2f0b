package rag

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("invalid request")
	ErrDuplicateDocument = errors.New("a document with this name already exists")
	ErrDuplicateKey      = errors.New("chunk key already exists")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrBackend           = errors.New("backend service failure")
	ErrNotFound          = errors.New("document not found")
)

// BackendError reports a failed call to an embedding or completion service.
type BackendError struct {
	Service string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %v", e.Service, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

// NewBackendError wraps err as a failure of the named service.
func NewBackendError(service string, err error) error {
	return &BackendError{Service: service, Err: err}
}

// DimensionMismatchError reports two vectors of different length.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
