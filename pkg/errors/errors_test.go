package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{New(ErrInvalidInput, http.StatusTeapot, "odd"), http.StatusTeapot},
		{fmt.Errorf("wrapped: %w", ErrInvalidInput), http.StatusBadRequest},
		{ErrShardNotFound, http.StatusNotFound},
		{ErrRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("fetch: %w", ErrShardUnavailable), http.StatusServiceUnavailable},
		{ErrShardTimeout, http.StatusServiceUnavailable},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatusCode(tt.err), tt.err.Error())
	}
}

func TestAppError(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "limit %d", -1)
	assert.Equal(t, "invalid input: limit -1", err.Error())
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestLoadErrorReason(t *testing.T) {
	tests := map[error]string{
		ErrShardNotFound:                        "not_found",
		fmt.Errorf("crc: %w", ErrShardCorrupt):  "corrupt",
		ErrShardSchema:                          "schema",
		ErrShardTimeout:                         "timeout",
		fmt.Errorf("http 500: %w", ErrInternal): "unavailable",
	}
	for cause, want := range tests {
		err := &LoadError{ShardID: "n", Err: cause}
		assert.Equal(t, want, err.Reason())
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), `"n"`)
	}
}
