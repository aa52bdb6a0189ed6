// Package events delivers issue events to registered listeners.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/metrics"
)

// Listener reacts to issue events.
type Listener interface {
	HandleIssueEvent(ctx context.Context, event issue.Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, event issue.Event) error

func (f ListenerFunc) HandleIssueEvent(ctx context.Context, event issue.Event) error {
	return f(ctx, event)
}

// Handlers is a Listener with one optional callback per event type. Types
// without a callback are ignored.
type Handlers struct {
	Created        ListenerFunc
	Updated        ListenerFunc
	Assigned       ListenerFunc
	Resolved       ListenerFunc
	Closed         ListenerFunc
	Commented      ListenerFunc
	Reopened       ListenerFunc
	Deleted        ListenerFunc
	Moved          ListenerFunc
	Worklogged     ListenerFunc
	WorkStarted    ListenerFunc
	WorkStopped    ListenerFunc
	Generic        ListenerFunc
	CommentEdited  ListenerFunc
	WorklogUpdated ListenerFunc
	WorklogDeleted ListenerFunc
	CommentDeleted ListenerFunc
}

func (h Handlers) HandleIssueEvent(ctx context.Context, event issue.Event) error {
	if fn := h.forType(event.TypeID); fn != nil {
		return fn(ctx, event)
	}
	return nil
}

func (h Handlers) forType(t issue.EventType) ListenerFunc {
	switch t {
	case issue.EventIssueCreated:
		return h.Created
	case issue.EventIssueUpdated:
		return h.Updated
	case issue.EventIssueAssigned:
		return h.Assigned
	case issue.EventIssueResolved:
		return h.Resolved
	case issue.EventIssueClosed:
		return h.Closed
	case issue.EventIssueCommented:
		return h.Commented
	case issue.EventIssueReopened:
		return h.Reopened
	case issue.EventIssueDeleted:
		return h.Deleted
	case issue.EventIssueMoved:
		return h.Moved
	case issue.EventIssueWorklogged:
		return h.Worklogged
	case issue.EventIssueWorkStarted:
		return h.WorkStarted
	case issue.EventIssueWorkStopped:
		return h.WorkStopped
	case issue.EventIssueGeneric:
		return h.Generic
	case issue.EventIssueCommentEdited:
		return h.CommentEdited
	case issue.EventIssueWorklogUpdated:
		return h.WorklogUpdated
	case issue.EventIssueWorklogDeleted:
		return h.WorklogDeleted
	case issue.EventIssueCommentDeleted:
		return h.CommentDeleted
	}
	return nil
}

type namedListener struct {
	name     string
	listener Listener
}

// Dispatcher fans each event out to its listeners in registration order.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []namedListener
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. m may be nil.
func NewDispatcher(m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		metrics: m,
		logger:  slog.Default().With("component", "event-dispatcher"),
	}
}

// Register adds a listener. Names must be unique.
func (d *Dispatcher) Register(name string, l Listener) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.listeners {
		if existing.name == name {
			return fmt.Errorf("listener %q already registered", name)
		}
	}
	d.listeners = append(d.listeners, namedListener{name: name, listener: l})
	d.logger.Info("listener registered", "listener", name)
	return nil
}

// Listeners returns the registered names in dispatch order.
func (d *Dispatcher) Listeners() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.listeners))
	for i, l := range d.listeners {
		names[i] = l.name
	}
	return names
}

// Dispatch delivers event to every listener. An unknown event type is logged
// and dropped without error. Every listener runs even if an earlier one
// fails; the failures are joined into the returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, event issue.Event) error {
	log := logger.FromContext(ctx)
	if !event.TypeID.IsKnown() {
		log.Warn("discarding event with unknown type",
			"type_id", int64(event.TypeID),
			"issue_id", event.IssueID,
		)
		d.count(event.TypeID, "unknown")
		return nil
	}

	d.mu.RLock()
	listeners := make([]namedListener, len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.RUnlock()

	var errs []error
	for _, l := range listeners {
		if err := l.listener.HandleIssueEvent(ctx, event); err != nil {
			log.Error("listener failed",
				"listener", l.name,
				"event_type", event.TypeID.String(),
				"issue_id", event.IssueID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("listener %s: %w", l.name, err))
		}
	}
	if len(errs) > 0 {
		d.count(event.TypeID, "failed")
		return errors.Join(errs...)
	}
	d.count(event.TypeID, "dispatched")
	return nil
}

func (d *Dispatcher) count(t issue.EventType, outcome string) {
	if d.metrics == nil {
		return
	}
	label := t.String()
	if !t.IsKnown() {
		label = "unknown"
	}
	d.metrics.IssueEventsTotal.WithLabelValues(label, outcome).Inc()
}
