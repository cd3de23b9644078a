// Package handler exposes the query engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/tracing"
)

type Searcher interface {
	Search(ctx context.Context, raw string, limit int) (query.Result, error)
}

type StatsSource interface {
	Stats() store.Stats
}

// ShardCache is the shared shard-blob cache, if one is configured.
type ShardCache interface {
	Invalidate(ctx context.Context) error
	Stats() (hits, misses int64)
}

// Tracker receives an event for every answered, non-idle query.
type Tracker interface {
	Track(analytics.QueryEvent)
}

type Handler struct {
	searcher   Searcher
	stats      StatsSource
	cache      ShardCache
	tracker    Tracker
	maxResults int
	logger     *slog.Logger
}

// New creates a handler. cache and tracker may be nil.
func New(searcher Searcher, stats StatsSource, cache ShardCache, tracker Tracker, maxResults int) *Handler {
	return &Handler{
		searcher:   searcher,
		stats:      stats,
		cache:      cache,
		tracker:    tracker,
		maxResults: maxResults,
		logger:     slog.Default().With("component", "search-handler"),
	}
}

// Search serves GET ?q=&limit=. A present but empty q yields the idle
// result.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	params := r.URL.Query()
	if !params.Has("q") {
		h.fail(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}
	raw := params.Get("q")

	limit := 0
	if limitStr := params.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.fail(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer, got %q", limitStr))
			return
		}
		limit = min(parsed, h.maxResults)
	}

	ctx, span := tracing.StartSpan(ctx, "search", logger.RequestID(ctx))
	result, err := h.searcher.Search(ctx, raw, limit)
	span.End()
	span.Log(log)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.Warn("search abandoned while loading shard", "query", raw, "error", err)
			h.fail(w, apperrors.New(apperrors.ErrTimeout, http.StatusServiceUnavailable, "search timed out"))
			return
		}
		log.Error("search failed", "query", raw, "error", err)
		h.fail(w, fmt.Errorf("search %q: %w", raw, err))
		return
	}

	latency := time.Since(start)
	log.Info("search completed",
		"query", raw,
		"shard_id", result.Shard,
		"groups", len(result.Groups),
		"total", result.Total,
		"truncated", result.Truncated,
		"degraded", result.Degraded,
		"latency_ms", latency.Milliseconds(),
	)
	if h.tracker != nil && !result.Idle {
		h.tracker.Track(analytics.NewQueryEvent(analytics.SourceHTTP, result, latency, logger.RequestID(ctx)))
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Shards reports which shards are loaded and which are degraded.
func (h *Handler) Shards(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.stats.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate drops the shared shard blobs. Shards already loaded into
// this process stay loaded.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// fail maps err onto a status with apperrors.HTTPStatusCode. AppError
// messages reach the client; anything else is reported generically.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	message := "internal error"
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	h.writeError(w, apperrors.HTTPStatusCode(err), message)
}
