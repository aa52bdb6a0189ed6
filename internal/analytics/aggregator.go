package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalRequests     int64          `json:"total_requests"`
	RequestsByKind    map[Kind]int64 `json:"requests_by_kind"`
	CacheHits         int64          `json:"cache_hits"`
	CacheMisses       int64          `json:"cache_misses"`
	CacheHitRate      float64        `json:"cache_hit_rate"`
	PartialResults    int64          `json:"partial_results"`
	ZeroHitCount      int64          `json:"zero_hit_count"`
	TotalHits         int64          `json:"total_hits"`
	IrrelevantHits    int64          `json:"irrelevant_hits"`
	AvgLatencyMs      float64        `json:"avg_latency_ms"`
	P50LatencyMs      int64          `json:"p50_latency_ms"`
	P95LatencyMs      int64          `json:"p95_latency_ms"`
	P99LatencyMs      int64          `json:"p99_latency_ms"`
	TopQueries        []Count        `json:"top_queries"`
	TopFields         []Count        `json:"top_fields"`
	ZeroHitQueries    []Count        `json:"zero_hit_queries"`
	RequestsPerMinute float64        `json:"requests_per_minute"`
	CapturedAt        time.Time      `json:"captured_at"`
}

type Count struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// Aggregator summarises StatsEvents in memory.
type Aggregator struct {
	mu             sync.RWMutex
	totalRequests  int64
	byKind         map[Kind]int64
	cacheHits      int64
	cacheMisses    int64
	partial        int64
	zeroHits       int64
	totalHits      int64
	irrelevantHits int64
	latencies      []int64
	nextLatency    int
	queryCounts    map[string]int64
	fieldCounts    map[string]int64
	zeroHitQueries map[string]int64
	startTime      time.Time
	now            func() time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byKind:         make(map[Kind]int64),
		latencies:      make([]int64, 0, 1024),
		queryCounts:    make(map[string]int64),
		fieldCounts:    make(map[string]int64),
		zeroHitQueries: make(map[string]int64),
		startTime:      time.Now(),
		now:            time.Now,
		logger:         slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent decodes StatsEvent messages from the analytics topic.
// Undecodable messages are logged and skipped.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[StatsEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// Track records event in process, for deployments without the analytics
// topic.
func (a *Aggregator) Track(event StatsEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = a.now()
	}
	a.Record(event)
}

func (a *Aggregator) Record(event StatsEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalRequests++
	a.byKind[event.Kind]++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if event.ShardsFailed > 0 {
		a.partial++
	}
	a.totalHits += event.Hits
	a.irrelevantHits += event.Irrelevant
	if event.Hits == 0 {
		a.zeroHits++
		a.zeroHitQueries[event.Query]++
	}
	a.queryCounts[event.Query]++
	for _, f := range event.Fields {
		a.fieldCounts[f]++
	}

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.nextLatency] = event.LatencyMs
		a.nextLatency = (a.nextLatency + 1) % maxLatencySamples
	}
}

// Restore seeds the counters from a persisted snapshot so totals survive a
// restart. Latency samples and per-query counts start empty.
func (a *Aggregator) Restore(prev AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalRequests += prev.TotalRequests
	for kind, n := range prev.RequestsByKind {
		a.byKind[kind] += n
	}
	a.cacheHits += prev.CacheHits
	a.cacheMisses += prev.CacheMisses
	a.partial += prev.PartialResults
	a.zeroHits += prev.ZeroHitCount
	a.totalHits += prev.TotalHits
	a.irrelevantHits += prev.IrrelevantHits
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	now := a.now()
	stats := AggregatedStats{
		TotalRequests:  a.totalRequests,
		RequestsByKind: make(map[Kind]int64, len(a.byKind)),
		CacheHits:      a.cacheHits,
		CacheMisses:    a.cacheMisses,
		PartialResults: a.partial,
		ZeroHitCount:   a.zeroHits,
		TotalHits:      a.totalHits,
		IrrelevantHits: a.irrelevantHits,
		CapturedAt:     now.UTC(),
	}
	for kind, n := range a.byKind {
		stats.RequestsByKind[kind] = n
	}
	if lookups := a.cacheHits + a.cacheMisses; lookups > 0 {
		stats.CacheHitRate = float64(a.cacheHits) / float64(lookups)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.TopFields = topN(a.fieldCounts, 10)
	stats.ZeroHitQueries = topN(a.zeroHitQueries, 10)
	if elapsed := now.Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.RequestsPerMinute = float64(a.totalRequests) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n largest counts, ties broken by value.
func topN(counts map[string]int64, n int) []Count {
	result := make([]Count, 0, len(counts))
	for value, count := range counts {
		result = append(result, Count{Value: value, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Value < result[j].Value
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
