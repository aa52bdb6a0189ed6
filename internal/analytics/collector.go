package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/metrics"
)

// Publisher is the write side of the analytics topic; *kafka.Producer
// implements it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Collector buffers events and publishes them from a single goroutine so
// request handlers never wait on Kafka. When the buffer is full new events
// are dropped, as are events tracked after Close.
type Collector struct {
	publisher Publisher
	eventCh   chan StatsEvent
	metrics   *metrics.Metrics
	logger    *slog.Logger
	done      chan struct{}

	// mu guards closed; Track holds it shared while sending.
	mu     sync.RWMutex
	closed bool
}

// NewCollector creates a collector with room for bufferSize pending events.
// m may be nil.
func NewCollector(publisher Publisher, bufferSize int, m *metrics.Metrics) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan StatsEvent, bufferSize),
		metrics:   m,
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

// Start publishes buffered events until ctx is cancelled or Close is called.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues event without blocking.
func (c *Collector) Track(event StatsEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.drop(event, "collector closed")
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.drop(event, "buffer full")
	}
}

func (c *Collector) drop(event StatsEvent, reason string) {
	if c.metrics != nil {
		c.metrics.AnalyticsDropped.Inc()
	}
	c.logger.Warn("analytics event dropped", "kind", event.Kind, "reason", reason)
}

// Close stops accepting events and waits for the publisher goroutine. Start
// must have been called. Close may be called more than once.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event StatsEvent) {
	if err := c.publisher.Publish(ctx, kafka.Event{Key: string(event.Kind), Value: event}); err != nil {
		c.logger.Error("failed to publish analytics event", "kind", event.Kind, "error", err)
	}
}

func (c *Collector) drainRemaining() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(ctx, event)
		default:
			return
		}
	}
}
