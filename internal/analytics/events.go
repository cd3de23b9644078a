package analytics

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/query"
)

// Source names the surface a query arrived through.
type Source string

const (
	SourceHTTP      Source = "http"
	SourceTypeahead Source = "typeahead"
)

// QueryEvent describes one answered query. Idle queries are not tracked.
type QueryEvent struct {
	Source     Source    `json:"source"`
	Query      string    `json:"query"`
	Normalized string    `json:"normalized"`
	ShardID    string    `json:"shard_id"`
	Groups     int       `json:"groups"`
	Returned   int       `json:"returned"`
	Total      int       `json:"total"`
	Truncated  bool      `json:"truncated"`
	Degraded   bool      `json:"degraded"`
	LatencyMs  int64     `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

// NewQueryEvent builds the event for a delivered result.
func NewQueryEvent(source Source, r query.Result, latency time.Duration, requestID string) QueryEvent {
	return QueryEvent{
		Source:     source,
		Query:      r.Query,
		Normalized: r.Normalized,
		ShardID:    string(r.Shard),
		Groups:     len(r.Groups),
		Returned:   r.ReferenceCount(),
		Total:      r.Total,
		Truncated:  r.Truncated,
		Degraded:   r.Degraded,
		LatencyMs:  latency.Milliseconds(),
		Timestamp:  time.Now().UTC(),
		RequestID:  requestID,
	}
}
