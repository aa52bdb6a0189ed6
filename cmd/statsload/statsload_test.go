package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want time.Duration
	}{
		{0, 1}, {50, 5}, {90, 9}, {99, 10}, {100, 10},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); got != tt.want {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("empty percentile = %v", got)
	}
}

func TestSyntheticEventsAreIngestible(t *testing.T) {
	events := syntheticEvents(0, 20)
	if len(events) != 20 {
		t.Fatalf("got %d events", len(events))
	}
	seen := map[string]bool{}
	for _, ev := range events {
		if ev.Issue == nil || ev.Issue.ID == "" || ev.Issue.ProjectID == "" || ev.Issue.IssueTypeID == "" {
			t.Fatalf("incomplete event: %+v", ev)
		}
		if seen[ev.Issue.ID] {
			t.Fatalf("duplicate issue id %s", ev.Issue.ID)
		}
		seen[ev.Issue.ID] = true
	}
}

func TestRunAgainstServer(t *testing.T) {
	var seeded, served atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var body struct {
				Events []json.RawMessage `json:"events"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			seeded.Add(int64(len(body.Events)))
			w.WriteHeader(http.StatusAccepted)
			return
		}
		served.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"cache_hit":true}`))
	}))
	defer srv.Close()

	if err := seedIssues(t.Context(), srv.Client(), srv.URL, 300); err != nil {
		t.Fatal(err)
	}
	if seeded.Load() != 300 {
		t.Errorf("seeded %d events, want 300", seeded.Load())
	}

	stats := runLoadTest(srv.Client(), Config{
		BaseURL:     srv.URL,
		Concurrency: 2,
		Duration:    100 * time.Millisecond,
		Requests:    defaultWorkload(),
	})
	if stats.success == 0 || stats.cacheHits != stats.success {
		t.Errorf("success=%d cacheHits=%d", stats.success, stats.cacheHits)
	}

	var out bytes.Buffer
	if !printReport(&out, stats, time.Second) {
		t.Error("report should succeed after completed requests")
	}
	if !strings.Contains(out.String(), "Cache Hit Rate:  100.00%") {
		t.Errorf("report missing cache hit rate:\n%s", out.String())
	}
}
