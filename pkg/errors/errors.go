package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrCorruptIndex  = errors.New("corrupt index")
	ErrDuplicateKey  = errors.New("duplicate key")
	ErrOutOfOrderKey = errors.New("key out of order")
	ErrKeyTooLong    = errors.New("key too long")
	ErrPartNotFound  = errors.New("index part not found")
	ErrBadOperator   = errors.New("bad operator")
	ErrConstruction  = errors.New("iterator construction failed")
	ErrShardFailed   = errors.New("shard failed")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInternal      = errors.New("internal error")
	ErrTimeout       = errors.New("operation timed out")
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

// HTTPStatusCode maps an error chain onto the status the query API returns.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrPartNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadOperator), errors.Is(err, ErrConstruction), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrShardFailed), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
