// Package publisher hands accepted issue events to the indexing pipeline,
// either through the Kafka issue event topic or straight to the in-process
// dispatcher.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
	apperrors "github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/metrics"
)

// Sink delivers a validated batch.
type Sink interface {
	Send(ctx context.Context, events []issue.Event) error
}

// BatchProducer is the write side of the issue event topic; *kafka.Producer
// satisfies it.
type BatchProducer interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// KafkaSink publishes events keyed by issue ID so every issue's events stay
// on one partition, in order.
type KafkaSink struct {
	producer BatchProducer
}

func NewKafkaSink(producer BatchProducer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Send(ctx context.Context, events []issue.Event) error {
	batch := make([]kafka.Event, 0, len(events))
	for _, ev := range events {
		batch = append(batch, kafka.Event{Key: ev.IssueID, Value: ev})
	}
	return s.producer.PublishBatch(ctx, batch)
}

// Dispatcher is the in-process event fan-out; *events.Dispatcher satisfies
// it.
type Dispatcher interface {
	Dispatch(ctx context.Context, event issue.Event) error
}

// DispatchSink delivers events synchronously, for deployments without
// Kafka.
type DispatchSink struct {
	dispatcher Dispatcher
}

func NewDispatchSink(d Dispatcher) *DispatchSink {
	return &DispatchSink{dispatcher: d}
}

func (s *DispatchSink) Send(ctx context.Context, events []issue.Event) error {
	var errs []error
	for _, ev := range events {
		if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("issue %s: %w", ev.IssueID, err))
		}
	}
	return errors.Join(errs...)
}

// Publisher normalises accepted events and sends them to a Sink.
type Publisher struct {
	sink    Sink
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a Publisher. m may be nil.
func New(sink Sink, m *metrics.Metrics) *Publisher {
	return &Publisher{
		sink:    sink,
		metrics: m,
		now:     time.Now,
		logger:  slog.Default().With("component", "publisher"),
	}
}

// Ingest fills the issue ID from the payload, stamps events that carry no
// timestamp with the receive time, and sends the batch.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	received := p.now().UTC()
	batch := make([]issue.Event, len(req.Events))
	for i, ev := range req.Events {
		if ev.IssueID == "" && ev.Issue != nil {
			ev.IssueID = ev.Issue.ID
		}
		if ev.Issue != nil && ev.Issue.ID == "" {
			iss := *ev.Issue
			iss.ID = ev.IssueID
			ev.Issue = &iss
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = received
		}
		batch[i] = ev
	}

	if err := p.sink.Send(ctx, batch); err != nil {
		p.count(batch, "rejected")
		p.logger.Error("failed to hand off issue events", "count", len(batch), "error", err)
		return nil, apperrors.Newf(apperrors.ErrInternal, http.StatusBadGateway, "delivering %d events: %v", len(batch), err)
	}
	p.count(batch, "ingested")
	return &ingestion.IngestResponse{Accepted: len(batch), Status: "ACCEPTED"}, nil
}

func (p *Publisher) count(batch []issue.Event, outcome string) {
	if p.metrics == nil {
		return
	}
	for _, ev := range batch {
		p.metrics.IssueEventsTotal.WithLabelValues(ev.TypeID.String(), outcome).Inc()
	}
}
