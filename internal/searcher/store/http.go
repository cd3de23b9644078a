package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/resilience"
)

const maxShardBytes = 64 << 20

// HTTPFetcher downloads shard files from a static file server. Transient
// failures are retried with backoff; repeated failures open a circuit
// breaker so a dead origin fails fast. A 404 is an answer, not a failure.
type HTTPFetcher struct {
	baseURL  string
	fileName func(shard.ID) string
	client   *http.Client
	breaker  *resilience.CircuitBreaker
	retry    resilience.RetryConfig
	logger   *slog.Logger
}

// NewHTTPFetcher creates a fetcher for baseURL. m may be nil.
func NewHTTPFetcher(baseURL string, fileName func(shard.ID) string, m *metrics.Metrics) *HTTPFetcher {
	if fileName == nil {
		fileName = shard.FileName
	}
	return &HTTPFetcher{
		baseURL:  strings.TrimRight(baseURL, "/"),
		fileName: fileName,
		client:   &http.Client{Timeout: 30 * time.Second},
		breaker: resilience.NewCircuitBreaker("shard-origin", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
			OnStateChange: func(name string, state resilience.State) {
				m.SetBreakerState(name, int(state))
			},
		}),
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Retryable:    transient,
		},
		logger: slog.Default().With("component", "shard-http-fetcher"),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, id shard.ID) ([]byte, error) {
	var data []byte
	err := f.breaker.ExecuteIf(func() error {
		return resilience.Retry(ctx, "fetch shard "+string(id), f.retry, func() error {
			var err error
			data, err = f.get(ctx, f.baseURL+"/"+f.fileName(id))
			return err
		})
	}, transient)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrShardUnavailable, err)
	}
	return data, err
}

// Ping checks that the origin answers at all.
func (f *HTTPFetcher) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, f.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("shard origin: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("shard origin: status %d", resp.StatusCode)
	}
	return nil
}

func (f *HTTPFetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrShardUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrShardNotFound, url)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s returned %d", apperrors.ErrShardUnavailable, url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxShardBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", apperrors.ErrShardUnavailable, url, err)
	}
	if len(data) > maxShardBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", apperrors.ErrShardCorrupt, url, maxShardBytes)
	}
	return data, nil
}

// transient reports whether err is worth retrying and counts against the
// breaker.
func transient(err error) bool {
	if errors.Is(err, apperrors.ErrShardNotFound) || errors.Is(err, apperrors.ErrShardCorrupt) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
