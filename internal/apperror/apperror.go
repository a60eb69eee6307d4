package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrAuthentication  = errors.New("authentication failed")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidImage    = errors.New("invalid image format")
)

type AppError struct {
	Err     error             // actual error
	Message string            // Human-readable error message
	Field   string            // Optional: field causing the error
	Fields  map[string]string // Optional: per-field messages for form re-rendering
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
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
		Fields:  map[string]string{field: message},
	}
}

// Invalid reports several field failures at once. Field holds the
// alphabetically first failing field so the result is deterministic.
func Invalid(fields map[string]string) *AppError {
	e := &AppError{
		Err:     ErrValidation,
		Message: "please correct the highlighted fields",
		Fields:  fields,
	}
	for f := range fields {
		if e.Field == "" || f < e.Field {
			e.Field = f
		}
	}
	return e
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers turn this into a warning flash and a redirect.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// AuthenticationFailed never says whether the email or the password was
// wrong.
func AuthenticationFailed() *AppError {
	return &AppError{
		Err:     ErrAuthentication,
		Message: "Login failed. Check email and password.",
	}
}

func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

func InvalidImage(filename string) *AppError {
	return &AppError{
		Err:     ErrInvalidImage,
		Message: "Invalid image format. Allowed: png, jpg, jpeg, gif",
		Field:   "image",
		Fields:  map[string]string{"image": fmt.Sprintf("%q is not an allowed image", filename)},
	}
}
