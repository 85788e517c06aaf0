package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrAlreadyExists    = errors.New("resource already exists")
	ErrInternal         = errors.New("internal error")
)

// AppError represents an application error with an RPC error kind and HTTP status.
// Kind values are the machine-readable codes the callable surface exposes:
// unauthenticated, invalid-argument, not-found, already-exists, permission-denied,
// internal.
type AppError struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// ErrorResponse represents the JSON error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ToResponse converts an AppError to ErrorResponse.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Kind:    e.Kind,
			Message: e.Message,
		},
	}
}

// Common error constructors.

// Unauthenticated creates an unauthenticated error.
func Unauthenticated(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return &AppError{
		Kind:       "unauthenticated",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Err:        ErrUnauthenticated,
	}
}

// InvalidArgument creates an invalid-argument error.
func InvalidArgument(message string) *AppError {
	return &AppError{
		Kind:       "invalid-argument",
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        ErrInvalidArgument,
	}
}

// NotFound creates a not-found error.
func NotFound(message string) *AppError {
	return &AppError{
		Kind:       "not-found",
		Message:    message,
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// AlreadyExists creates an already-exists error.
func AlreadyExists(message string) *AppError {
	return &AppError{
		Kind:       "already-exists",
		Message:    message,
		StatusCode: http.StatusConflict,
		Err:        ErrAlreadyExists,
	}
}

// PermissionDenied creates a permission-denied error.
func PermissionDenied(message string) *AppError {
	if message == "" {
		message = "access denied"
	}
	return &AppError{
		Kind:       "permission-denied",
		Message:    message,
		StatusCode: http.StatusForbidden,
		Err:        ErrPermissionDenied,
	}
}

// Internal creates an internal error.
func Internal(message string, err error) *AppError {
	if message == "" {
		message = "an unexpected error occurred"
	}
	return &AppError{
		Kind:       "internal",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// GetStatusCode returns the appropriate HTTP status code for an error.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
