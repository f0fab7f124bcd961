// Package events defines the messages exchanged over kafka between the
// indexer and the searchers.
package events

import "time"

type Type string

const (
	TypeIndexBuilt Type = "index_built"
	TypeQuery      Type = "query"
)

// IndexBuilt announces a finished shard directory. Searchers reload the
// shard set named by Shards.
type IndexBuilt struct {
	Type      Type      `json:"type"`
	BuildID   int64     `json:"build_id"`
	Shard     int       `json:"shard"`
	Dir       string    `json:"dir"`
	Shards    []string  `json:"shards"`
	Documents int64     `json:"documents"`
	Parts     []string  `json:"parts"`
	Timestamp time.Time `json:"timestamp"`
}

// Query records one executed query.
type Query struct {
	Type       Type      `json:"type"`
	QueryID    string    `json:"query_id"`
	Query      string    `json:"query"`
	Requested  int       `json:"requested"`
	Returned   int       `json:"returned"`
	Candidates int64     `json:"candidates"`
	Truncated  bool      `json:"truncated"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	ShardCount int       `json:"shard_count"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
