package commands

import (
	"encoding/json"
	"time"

	"istruecaller/contexts/trust-safety/call-vote-register/ports"
)

func newRegisterEnvelope(
	eventID string,
	eventType string,
	callID string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	// Partitioned by call id so per-call events keep their order downstream.
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "call-vote-register",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "call_id",
		PartitionKey:     callID,
		Data:             payload,
	}, nil
}
