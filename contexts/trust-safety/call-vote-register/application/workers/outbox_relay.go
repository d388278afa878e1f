package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "istruecaller/contexts/trust-safety/call-vote-register/application"
	"istruecaller/contexts/trust-safety/call-vote-register/ports"
)

// OutboxRelay publishes persisted register events to the event bus.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	// Topic overrides the per-event topic when set. Empty publishes each
	// envelope on a topic named after its event type.
	Topic     string
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce publishes a bounded batch of pending outbox rows and marks each row
// published only after the broker accepted it. It stops on the first failure
// so the next cycle picks up the remaining rows.
func (r OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("register outbox list failed",
			"event", "register_outbox_list_failed",
			"module", "trust-safety/call-vote-register",
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}
	if len(pending) == 0 {
		logger.Debug("register outbox relay found no pending rows",
			"event", "register_outbox_relay_noop",
			"module", "trust-safety/call-vote-register",
			"layer", "worker",
			"batch_size", limit,
		)
		return 0, nil
	}

	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}

	published := 0
	for _, row := range pending {
		var event ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			logger.Error("register outbox decode failed",
				"event", "register_outbox_decode_failed",
				"module", "trust-safety/call-vote-register",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return published, err
		}
		topic := strings.TrimSpace(r.Topic)
		if topic == "" {
			topic = event.EventType
		}
		if topic == "" {
			topic = row.EventType
		}
		if err := r.Publisher.Publish(ctx, topic, event); err != nil {
			logger.Error("register outbox publish failed",
				"event", "register_outbox_publish_failed",
				"module", "trust-safety/call-vote-register",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_id", event.EventID,
				"event_type", event.EventType,
				"topic", topic,
				"error", err.Error(),
			)
			return published, err
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, now); err != nil {
			logger.Error("register outbox mark published failed",
				"event", "register_outbox_mark_published_failed",
				"module", "trust-safety/call-vote-register",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return published, err
		}
		published++
	}

	logger.Info("register outbox relay cycle completed",
		"event", "register_outbox_relay_completed",
		"module", "trust-safety/call-vote-register",
		"layer", "worker",
		"published_count", published,
	)
	return published, nil
}
