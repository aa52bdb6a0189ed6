// Package analytics records how the statistics service is used. Request
// handlers Track a StatsEvent per answered request; the Collector publishes
// them to Kafka and the Aggregator consumes and summarises them.
package analytics

import "time"

type Kind string

const (
	KindSearch Kind = "search"
	KindField  Kind = "field"
	KindMatrix Kind = "matrix"
)

// StatsEvent describes one answered search or statistics request.
type StatsEvent struct {
	Kind         Kind      `json:"kind"`
	Query        string    `json:"query"`
	Fields       []string  `json:"fields,omitempty"`
	Hits         int64     `json:"hits"`
	Irrelevant   int64     `json:"irrelevant"`
	LatencyMs    int64     `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	ShardsFailed int       `json:"shards_failed"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}
