// Package apperrors holds errors shared by the stores, the loader, the
// verifier and the API layer.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
)

// StorageUnavailableError reports a connection-level store failure. Loads and
// verifications stop when they see one.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }

// Unavailable wraps err as a StorageUnavailableError unless it already is one.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var sue *StorageUnavailableError
	if errors.As(err, &sue) {
		return err
	}
	return &StorageUnavailableError{Op: op, Err: err}
}

// IsStorageUnavailable reports whether err is or wraps a StorageUnavailableError.
func IsStorageUnavailable(err error) bool {
	var sue *StorageUnavailableError
	return errors.As(err, &sue)
}

// ValidationError carries field-level messages for a rejected entity or patch.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
