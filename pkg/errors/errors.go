// Package errors defines the platform's sentinel errors and a typed AppError
// carrying an HTTP status code. Per-query validation failures (alphabet, too
// short) are recoverable and map to 4xx responses; an unbuilt or empty
// reference index maps to a retryable 503.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidAlphabet reports a sequence containing characters outside
	// the accepted IUPAC nucleotide alphabet.
	ErrInvalidAlphabet = errors.New("sequence contains invalid characters")
	// ErrSequenceTooShort reports a sequence shorter than the engine's
	// k-mer size after canonicalization.
	ErrSequenceTooShort = errors.New("sequence too short")
	// ErrServiceNotReady reports that no reference index has been built,
	// so no query can be served.
	ErrServiceNotReady = errors.New("reference index not ready")
	// ErrEmptyReference reports an index build over a reference set with
	// zero usable entries.
	ErrEmptyReference = errors.New("no usable reference sequences")
	// ErrTimeout reports a batch item unresolved when the batch deadline
	// fired. Callers may retry timed-out items individually.
	ErrTimeout = errors.New("operation timed out")

	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
)

// AppError wraps a sentinel error with a human-readable message and the
// HTTP status code the REST layer should return.
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

// HTTPStatusCode maps an error to the HTTP status the API should respond
// with. AppError status codes take precedence over sentinel mapping.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidAlphabet),
		errors.Is(err, ErrSequenceTooShort),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrServiceNotReady), errors.Is(err, ErrEmptyReference):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Kind returns a short machine-readable error code for embedding in batch
// response items, so callers can distinguish retryable timeouts from
// permanent validation failures.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAlphabet):
		return "invalid_alphabet"
	case errors.Is(err, ErrSequenceTooShort):
		return "too_short"
	case errors.Is(err, ErrServiceNotReady):
		return "service_not_ready"
	case errors.Is(err, ErrTimeout):
		return "timed_out"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}
