package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/metrics"
)

type recordingListener struct {
	mu     sync.Mutex
	events []issue.Event
	err    error
}

func (l *recordingListener) HandleIssueEvent(ctx context.Context, ev issue.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return l.err
}

func newTestHandler(t *testing.T, listener events.Listener) (*http.ServeMux, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	d := events.NewDispatcher(m)
	if err := d.Register("recorder", listener); err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	New(publisher.New(publisher.NewDispatchSink(d), m)).Register(mux)
	return mux, m
}

const validBody = `{"events":[
	{"type_id":1,"issue":{"id":"10001","project_id":"ops","issue_type_id":"bug","summary":"Login fails","fields":{"status":["Open"]}}},
	{"type_id":8,"issue_id":"10002","timestamp":"2026-01-02T03:04:05Z"}
]}`

func TestIngestDispatchesEvents(t *testing.T) {
	rec := &recordingListener{}
	mux, m := newTestHandler(t, rec)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(validBody)))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Accepted int `json:"accepted"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Accepted != 2 || len(rec.events) != 2 {
		t.Fatalf("accepted %d, dispatched %d", resp.Accepted, len(rec.events))
	}
	first := rec.events[0]
	if first.IssueID != "10001" {
		t.Errorf("issue id not filled from payload: %+v", first)
	}
	if first.Timestamp.IsZero() {
		t.Error("missing timestamp should be stamped on receipt")
	}
	if got := rec.events[1].Timestamp.Year(); got != 2026 {
		t.Errorf("explicit timestamp overwritten, year %d", got)
	}
	if got := testutil.ToFloat64(m.IssueEventsTotal.WithLabelValues("issue_created", "ingested")); got != 1 {
		t.Errorf("ingested created events = %v, want 1", got)
	}
}

func TestIngestRejectsInvalid(t *testing.T) {
	rec := &recordingListener{}
	mux, _ := newTestHandler(t, rec)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"events":`},
		{"empty", `{"events":[]}`},
		{"no payload", `{"events":[{"type_id":2,"issue_id":"1"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(tt.body)))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
	if len(rec.events) != 0 {
		t.Errorf("invalid batches dispatched %d events", len(rec.events))
	}
}

func TestIngestSinkFailure(t *testing.T) {
	mux, _ := newTestHandler(t, &recordingListener{err: errors.New("index full")})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(validBody)))
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

type fakeProducer struct {
	batches [][]kafka.Event
}

func (p *fakeProducer) PublishBatch(ctx context.Context, evs []kafka.Event) error {
	p.batches = append(p.batches, evs)
	return nil
}

func TestKafkaSinkKeysByIssue(t *testing.T) {
	prod := &fakeProducer{}
	sink := publisher.NewKafkaSink(prod)
	err := sink.Send(context.Background(), []issue.Event{
		{TypeID: issue.EventIssueDeleted, IssueID: "a"},
		{TypeID: issue.EventIssueDeleted, IssueID: "b"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(prod.batches) != 1 || len(prod.batches[0]) != 2 {
		t.Fatalf("expected one batch of two, got %+v", prod.batches)
	}
	if prod.batches[0][0].Key != "a" || prod.batches[0][1].Key != "b" {
		t.Errorf("events not keyed by issue id: %+v", prod.batches[0])
	}
}
