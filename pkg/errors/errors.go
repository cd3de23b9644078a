package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrShardNotFound    = errors.New("shard not found")
	ErrShardCorrupt     = errors.New("shard corrupt")
	ErrShardSchema      = errors.New("shard schema violation")
	ErrShardTimeout     = errors.New("shard load timed out")
	ErrShardUnavailable = errors.New("shard unavailable")
	ErrInvalidInput     = errors.New("invalid input")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
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

// LoadError records why a shard could not be loaded. The shard store never
// returns it to callers; it is logged and counted, and the shard is published
// as degraded.
type LoadError struct {
	ShardID string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading shard %q: %v", e.ShardID, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Reason returns a short label for the failure class, suitable for metrics.
func (e *LoadError) Reason() string {
	switch {
	case errors.Is(e.Err, ErrShardNotFound):
		return "not_found"
	case errors.Is(e.Err, ErrShardCorrupt):
		return "corrupt"
	case errors.Is(e.Err, ErrShardSchema):
		return "schema"
	case errors.Is(e.Err, ErrShardTimeout):
		return "timeout"
	default:
		return "unavailable"
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrShardNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrShardUnavailable), errors.Is(err, ErrShardTimeout), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}

}
