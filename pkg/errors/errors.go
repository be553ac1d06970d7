package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingDocument   = errors.New("document missing")
	ErrMalformedDocument = errors.New("document malformed")
	ErrCacheWrite        = errors.New("index cache write failed")
	ErrIndexNotReady     = errors.New("index not ready")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInternal          = errors.New("internal error")
)

type AppError struct {
	Err        error
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
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// DocumentError reports a blob document that could not be read or decoded.
// Kind is ErrMissingDocument or ErrMalformedDocument; errors.Is matches both
// the kind and the underlying cause.
type DocumentError struct {
	Name string
	Kind error
	Err  error
}

func (e *DocumentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Name, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Name, e.Kind, e.Err)
}

func (e *DocumentError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Missing(name string, cause error) *DocumentError {
	return &DocumentError{Name: name, Kind: ErrMissingDocument, Err: cause}
}

func Malformed(name string, cause error) *DocumentError {
	return &DocumentError{Name: name, Kind: ErrMalformedDocument, Err: cause}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexNotReady), errors.Is(err, ErrMissingDocument), errors.Is(err, ErrMalformedDocument):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
