package ports

import (
	"context"
	"time"

	contractsv1 "istruecaller/contracts/gen/events/v1"
	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
)

// VoteRegister is the serialized owner of the call id -> votes table.
// AppendVote, Tally, ClearCall and ClearAll are linearizable with respect to
// each other. Votes and CallIDs are served from the last committed state.
type VoteRegister interface {
	AppendVote(ctx context.Context, callID string, vote entities.Vote) (entities.Tally, error)
	Tally(ctx context.Context, callID string) (entities.Tally, bool, error)
	// ClearCall returns the emptied tally, stamped with the revision of the clear.
	ClearCall(ctx context.Context, callID string) (entities.Tally, bool, error)
	// ClearAll returns the number of removed call ids and the resulting revision.
	ClearAll(ctx context.Context) (int, uint64, error)
	Votes(ctx context.Context, callID string) ([]entities.Vote, bool, error)
	CallIDs(ctx context.Context) ([]string, error)
}

// Checkpointable registers can produce a consistent cut of their state.
type Checkpointable interface {
	Checkpoint(ctx context.Context) (entities.RegisterSnapshot, error)
	Revision() uint64
}

type SnapshotStore interface {
	LoadSnapshot(ctx context.Context) (entities.RegisterSnapshot, bool, error)
	SaveSnapshot(ctx context.Context, snapshot entities.RegisterSnapshot) error
}

// VerdictNotifier receives committed verdict changes. Updates may arrive out
// of order; receivers order them by Revision. NotifyReset reports that every
// call id was cleared at revision.
type VerdictNotifier interface {
	NotifyVerdict(ctx context.Context, update entities.VerdictUpdate)
	NotifyReset(ctx context.Context, revision uint64, occurredAt time.Time)
}

type RegisterMetrics interface {
	VoteRecorded(shape entities.BallotShape)
	VerdictIssued(verdict entities.Verdict)
	RegisterCleared(scope string)
	ObserveCommand(operation string, elapsed time.Duration)
	CheckpointFinished(outcome string)
}

// EventDedupStore reserves consumed event ids. A reservation whose event could
// not be applied must be released so a redelivery is applied again.
type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
	ReleaseEvent(ctx context.Context, eventID string) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type EventEnvelope = contractsv1.Envelope

// EventPublisher publishes canonical envelopes to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

// EventSubscriber registers a topic consumer callback.
type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}
