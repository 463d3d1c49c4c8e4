package models

import (
	"errors"
	"fmt"
)

// ValidationError reports client-fault input: a missing required field or
// an out-of-range value. It never reaches a collaborator.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// StorageError wraps a query or transaction failure from the storage
// engine. It aborts the enclosing batch transaction when raised inside
// one.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err with the failing operation name.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// VectorizerError wraps an embedding failure. The operation that needed
// the embedding aborts; a placeholder embedding is never persisted.
type VectorizerError struct {
	Err error
}

func (e *VectorizerError) Error() string {
	return fmt.Sprintf("vectorizer: %v", e.Err)
}

func (e *VectorizerError) Unwrap() error { return e.Err }

// NewVectorizerError wraps err as a vectorizer fault.
func NewVectorizerError(err error) *VectorizerError {
	return &VectorizerError{Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsVectorizer reports whether err is (or wraps) a VectorizerError.
func IsVectorizer(err error) bool {
	var ve *VectorizerError
	return errors.As(err, &ve)
}
