package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"
)

type Stats struct {
	mu          sync.Mutex
	total       int64
	success     int64
	errors      int64
	cacheHits   int64
	partial     int64
	latencies   []time.Duration
	byKind      map[string]int64
	statusCodes map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		byKind:      make(map[string]int64),
		statusCodes: make(map[int]int64),
	}
}

func (s *Stats) Record(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.byKind[r.Kind]++
	if r.Err != nil {
		s.errors++
		return
	}
	s.statusCodes[r.Status]++
	if r.Status >= 200 && r.Status < 300 {
		s.success++
	} else {
		s.errors++
	}
	if r.CacheHit {
		s.cacheHits++
	}
	if r.Partial {
		s.partial++
	}
	s.latencies = append(s.latencies, r.Duration)
}

// printReport writes the summary and reports whether any request completed.
func printReport(w io.Writer, s *Stats, duration time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", s.total)
	fmt.Fprintf(w, "Successful:      %d\n", s.success)
	fmt.Fprintf(w, "Errors:          %d\n", s.errors)
	fmt.Fprintf(w, "Partial:         %d\n", s.partial)
	if s.total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(s.errors)/float64(s.total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(s.total)/duration.Seconds())
	}
	if s.success > 0 {
		fmt.Fprintf(w, "Cache Hit Rate:  %.2f%%\n", float64(s.cacheHits)/float64(s.success)*100)
	}

	kinds := make([]string, 0, len(s.byKind))
	for k := range s.byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== By Kind ===")
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-7s %d\n", k, s.byKind[k])
	}

	if len(s.latencies) > 0 {
		latencies := make([]time.Duration, len(s.latencies))
		copy(latencies, s.latencies)
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P90:    %s\n", percentile(latencies, 90))
		fmt.Fprintf(w, "P95:    %s\n", percentile(latencies, 95))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
		fmt.Fprintf(w, "StdDev: %s\n", stddev(latencies, avg))
	}

	codes := make([]int, 0, len(s.statusCodes))
	for code := range s.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, s.statusCodes[code])
	}

	if s.total == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the service running?")
		return false
	}
	return true
}

func stddev(latencies []time.Duration, avg time.Duration) time.Duration {
	var sumSquared float64
	for _, l := range latencies {
		diff := float64(l - avg)
		sumSquared += diff * diff
	}
	return time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
