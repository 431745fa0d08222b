// Package errors defines the sentinel errors and the AppError type used to
// carry an HTTP status and a stable machine-readable kind across layers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidJSON     = errors.New("invalid json body")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrIntegrity       = errors.New("integrity check failed")
	ErrInternal        = errors.New("internal error")
)

// Kinds reported in the "error" field of JSON error responses.
const (
	KindBadRequest      = "BadRequest"
	KindInvalidJSON     = "InvalidJSON"
	KindPayloadTooLarge = "PayloadTooLarge"
	KindNotFound        = "NotFound"
	KindRateLimited     = "RateLimited"
	KindInternal        = "InternalError"
)

type AppError struct {
	Err        error
	Kind       string
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Kind:       kindFor(sentinel),
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

// BadRequest is shorthand for a 400 caused by invalid client input.
func BadRequest(format string, args ...any) *AppError {
	return Newf(ErrInvalidInput, http.StatusBadRequest, format, args...)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidJSON):
		return http.StatusBadRequest
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Kind returns the machine-readable kind for err. Errors that are not
// AppErrors and match no client-facing sentinel are reported as internal.
func Kind(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != "" {
		return appErr.Kind
	}
	return kindFor(err)
}

func kindFor(err error) string {
	switch {
	case errors.Is(err, ErrInvalidJSON):
		return KindInvalidJSON
	case errors.Is(err, ErrInvalidInput):
		return KindBadRequest
	case errors.Is(err, ErrPayloadTooLarge):
		return KindPayloadTooLarge
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	default:
		return KindInternal
	}
}
