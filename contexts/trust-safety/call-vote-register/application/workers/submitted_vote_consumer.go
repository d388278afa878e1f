package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "istruecaller/contexts/trust-safety/call-vote-register/application"
	"istruecaller/contexts/trust-safety/call-vote-register/application/commands"
	domainerrors "istruecaller/contexts/trust-safety/call-vote-register/domain/errors"
	"istruecaller/contexts/trust-safety/call-vote-register/ports"
)

const (
	DefaultSubmittedVotesTopic = "call.votes.submitted"
	defaultSubmittedVotesCG    = "call-vote-register-ingest-cg"
	EventVoteSubmitted         = "call.vote.submitted"
)

// SubmittedVotePayload is the data section of a call.vote.submitted envelope.
type SubmittedVotePayload struct {
	CallID     string `json:"call_id"`
	Legitimate bool   `json:"legitimate"`
	Fraudulent bool   `json:"fraudulent"`
}

// SubmittedVoteConsumer feeds votes arriving on the message bus into the
// register. Dedup is keyed by event id and only absorbs broker redeliveries;
// two distinct events carrying the same ballot are both counted.
type SubmittedVoteConsumer struct {
	Subscriber    ports.EventSubscriber
	Dedup         ports.EventDedupStore
	Votes         commands.VoteUseCase
	Clock         ports.Clock
	Topic         string
	ConsumerGroup string
	DedupTTL      time.Duration
	Logger        *slog.Logger
}

func (c SubmittedVoteConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	topic := strings.TrimSpace(c.Topic)
	if topic == "" {
		topic = DefaultSubmittedVotesTopic
	}
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultSubmittedVotesCG
	}
	if err := c.Subscriber.Subscribe(ctx, topic, group, c.Handle); err != nil {
		logger.Error("submitted vote consumer subscribe failed",
			"event", "register_ingest_subscribe_failed",
			"module", "trust-safety/call-vote-register",
			"layer", "worker",
			"topic", topic,
			"consumer_group", group,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("submitted vote consumer subscription active",
		"event", "register_ingest_started",
		"module", "trust-safety/call-vote-register",
		"layer", "worker",
		"topic", topic,
		"consumer_group", group,
	)
	return nil
}

// Handle applies one submitted-vote envelope.
func (c SubmittedVoteConsumer) Handle(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)

	var payload SubmittedVotePayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		logger.Error("submitted vote payload decode failed",
			"event", "register_ingest_decode_failed",
			"module", "trust-safety/call-vote-register",
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return domainerrors.ErrInvalidVotePayload
	}
	if strings.TrimSpace(payload.CallID) == "" {
		logger.Warn("submitted vote without call id dropped",
			"event", "register_ingest_call_id_missing",
			"module", "trust-safety/call-vote-register",
			"layer", "worker",
			"event_id", event.EventID,
		)
		return domainerrors.ErrInvalidCallID
	}

	reserved := false
	if c.Dedup != nil && strings.TrimSpace(event.EventID) != "" {
		alreadyProcessed, err := c.Dedup.ReserveEvent(ctx, event.EventID, hashPayload(event.Data), c.now().Add(c.dedupTTL()))
		if err != nil {
			logger.Error("submitted vote dedupe failed",
				"event", "register_ingest_dedupe_failed",
				"module", "trust-safety/call-vote-register",
				"layer", "worker",
				"event_id", event.EventID,
				"error", err.Error(),
			)
			return err
		}
		if alreadyProcessed {
			logger.Debug("submitted vote redelivery skipped",
				"event", "register_ingest_replayed",
				"module", "trust-safety/call-vote-register",
				"layer", "worker",
				"event_id", event.EventID,
			)
			return nil
		}
		reserved = true
	}

	_, err := c.Votes.AddVote(ctx, commands.AddVoteCommand{
		CallID:     payload.CallID,
		Legitimate: payload.Legitimate,
		Fraudulent: payload.Fraudulent,
	})
	if err != nil && reserved {
		// The vote was not recorded; a redelivery must be applied, not skipped.
		if releaseErr := c.Dedup.ReleaseEvent(context.WithoutCancel(ctx), event.EventID); releaseErr != nil {
			logger.Error("submitted vote dedupe release failed",
				"event", "register_ingest_dedupe_release_failed",
				"module", "trust-safety/call-vote-register",
				"layer", "worker",
				"event_id", event.EventID,
				"error", releaseErr.Error(),
			)
		}
	}
	return err
}

func (c SubmittedVoteConsumer) now() time.Time {
	if c.Clock != nil {
		return c.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (c SubmittedVoteConsumer) dedupTTL() time.Duration {
	if c.DedupTTL <= 0 {
		return 24 * time.Hour
	}
	return c.DedupTTL
}
