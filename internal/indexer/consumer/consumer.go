// Package consumer applies issue events to the sharded index: content events
// upsert the issue carried in the event, deletions write a tombstone.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/metrics"
)

// IndexListener is an events.Listener that keeps the index current.
type IndexListener struct {
	router  *shard.Router
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewIndexListener creates a listener writing to router. m may be nil.
func NewIndexListener(router *shard.Router, m *metrics.Metrics) *IndexListener {
	return &IndexListener{
		router:  router,
		metrics: m,
		now:     time.Now,
	}
}

func (l *IndexListener) HandleIssueEvent(ctx context.Context, event issue.Event) error {
	log := logger.FromContext(ctx).With("component", "index-listener")
	issueID := event.IssueID
	if issueID == "" && event.Issue != nil {
		issueID = event.Issue.ID
	}
	if issueID == "" {
		log.Warn("issue event without issue id ignored", "event_type", event.TypeID.String())
		return nil
	}

	switch {
	case event.TypeID == issue.EventIssueDeleted:
		rev := l.deleteRevision(event)
		changed, err := l.router.EngineFor(issueID).DeleteIssue(issueID, rev)
		if err != nil {
			return fmt.Errorf("deleting issue %s: %w", issueID, err)
		}
		l.record("delete", changed)
		log.Debug("issue delete applied", "issue_id", issueID, "version", rev.Version, "changed", changed)
		return nil

	case event.TypeID.ChangesContent():
		if event.Issue == nil {
			log.Debug("content event without issue payload ignored",
				"event_type", event.TypeID.String(),
				"issue_id", issueID,
			)
			return nil
		}
		iss := *event.Issue
		iss.ID = issueID
		if iss.UpdatedAt.IsZero() {
			iss.UpdatedAt = l.eventTime(event)
		}
		changed, err := l.router.EngineFor(issueID).IndexIssue(&iss)
		if err != nil {
			return fmt.Errorf("indexing issue %s: %w", issueID, err)
		}
		l.record("upsert", changed)
		log.Debug("issue upsert applied",
			"issue_id", issueID,
			"event_type", event.TypeID.String(),
			"version", iss.Version,
			"changed", changed,
		)
	}
	return nil
}

// eventTime is the event timestamp, falling back to the arrival time. It
// orders revisions only among those with equal issue versions.
func (l *IndexListener) eventTime(event issue.Event) time.Time {
	if !event.Timestamp.IsZero() {
		return event.Timestamp
	}
	return l.now()
}

// deleteRevision takes the version of the payload, when one is carried, and
// the event time.
func (l *IndexListener) deleteRevision(event issue.Event) index.Revision {
	rev := index.Revision{Stamp: l.eventTime(event).UnixNano()}
	if event.Issue != nil {
		rev.Version = event.Issue.Version
	}
	return rev
}

func (l *IndexListener) record(op string, changed bool) {
	if l.metrics == nil {
		return
	}
	if !changed {
		op = "stale"
	}
	l.metrics.IssuesIndexedTotal.WithLabelValues(op).Inc()
}

// StartShardReporter publishes per-shard document counts every interval
// until ctx is cancelled.
func StartShardReporter(ctx context.Context, router *shard.Router, m *metrics.Metrics, interval time.Duration) {
	if m == nil || interval <= 0 {
		return
	}
	logger := slog.Default().With("component", "shard-reporter")
	report := func() {
		m.ActiveShards.Set(float64(router.NumShards()))
		for id, engine := range router.Engines() {
			m.ShardDocCount.WithLabelValues(strconv.Itoa(id)).Set(float64(engine.GetTotalDocs()))
		}
	}
	report()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Debug("shard reporter stopping")
				return
			case <-ticker.C:
				report()
			}
		}
	}()
}
