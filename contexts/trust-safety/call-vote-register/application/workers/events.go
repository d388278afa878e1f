package workers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"istruecaller/contexts/trust-safety/call-vote-register/ports"
)

func hashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// NewSubmittedVoteEnvelope builds the envelope producers put on the submitted
// votes topic.
func NewSubmittedVoteEnvelope(eventID string, payload SubmittedVotePayload, occurredAt time.Time) (ports.EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        EventVoteSubmitted,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "call-vote-register",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "call_id",
		PartitionKey:     payload.CallID,
		Data:             data,
	}, nil
}
