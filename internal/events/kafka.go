package events

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/logger"
)

// MessageHandler decodes issue events from Kafka and dispatches them.
// Undecodable messages are logged and acknowledged; dispatch failures are
// returned so the consumer retries the message.
func MessageHandler(d *Dispatcher) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[issue.Event](value)
		if err != nil {
			logger.FromContext(ctx).Error("failed to decode issue event",
				"key", string(key),
				"error", err,
			)
			if d.metrics != nil {
				d.metrics.IssueEventsTotal.WithLabelValues("unknown", "undecodable").Inc()
			}
			return nil
		}
		if event.IssueID == "" && event.Issue != nil {
			event.IssueID = event.Issue.ID
		}
		return d.Dispatch(ctx, event)
	}
}
