package apperror

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound            = errors.New("resource not found")
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrForbidden           = errors.New("forbidden")
	ErrBadRequest          = errors.New("bad request")
	ErrInternal            = errors.New("internal server error")
	ErrInvalidInput        = errors.New("invalid input")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrTransactionConflict = errors.New("transaction conflict")
	ErrNetwork             = errors.New("network error")
)

// AppError is a custom error type that can hold an HTTP status code
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// MapErrorToStatus maps common errors to HTTP status codes
func MapErrorToStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != 0 {
		return appErr.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTransactionConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNetwork):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// UserMessage returns the text shown inline to the user when a mutation fails.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAuthenticated):
		return "Please sign in again."
	case errors.Is(err, ErrNotFound):
		return "That user could not be found."
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrInvalidInput):
		return "That action is not allowed."
	case errors.Is(err, ErrRateLimitExceeded):
		return "Too many requests, slow down a little."
	case errors.Is(err, ErrTransactionConflict), errors.Is(err, ErrNetwork):
		return "Something went wrong. Please try again."
	}
	return "Something went wrong. Please try again."
}
