// Package apperror defines the tagged error outcomes shared by the data
// access and HTTP layers: a row being absent, a uniqueness conflict, a
// forbidden action and a validation failure are distinct results, so callers
// never have to guess whether the store was unavailable or the record simply
// does not exist.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation error")
)

// AppError pairs one of the sentinel errors above with a human-readable
// message suitable for an HTTP response body.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s %s not found", resource, id),
	}
}

func Conflict(message string) *AppError {
	return &AppError{Err: ErrConflict, Message: message}
}

func Forbidden(message string) *AppError {
	return &AppError{Err: ErrForbidden, Message: message}
}

func ValidationFailed(message string) *AppError {
	return &AppError{Err: ErrValidation, Message: message}
}
