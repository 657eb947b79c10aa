package biz

import (
	"errors"
	"fmt"
)

var (
	// ErrMediaNotFound media record does not exist
	ErrMediaNotFound = errors.New("media file not found")
)

// ValidationError rejects an upload before anything was written
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid upload: " + e.Reason
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// StorageError is a filesystem or catalog failure
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("media storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DeleteError collects the failures of an explicit deletion
type DeleteError struct {
	ID     int64
	Errors []string
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete media %d: %v", e.ID, e.Errors)
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsStorage reports whether err is a StorageError
func IsStorage(err error) bool {
	var s *StorageError
	return errors.As(err, &s)
}
