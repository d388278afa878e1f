package messaging

import (
	"encoding/json"
	"testing"
	"time"

	contractsv1 "istruecaller/contracts/gen/events/v1"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeMessage(t *testing.T) {
	event := contractsv1.Envelope{
		EventID:       "evt-1",
		EventType:     "call.vote.added",
		OccurredAt:    time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
		SourceService: "call-vote-register",
		SchemaVersion: 1,
		PartitionKey:  "call-42",
		Data:          json.RawMessage(`{"call_id":"call-42"}`),
	}

	msg, err := encodeMessage("call.register.events", event)
	require.NoError(t, err)
	require.Equal(t, "call.register.events", msg.Topic)
	require.Equal(t, []byte("call-42"), msg.Key)
	require.Contains(t, msg.Headers, kafka.Header{Key: headerEventType, Value: []byte("call.vote.added")})

	decoded, err := decodeMessage(msg)
	require.NoError(t, err)
	require.Equal(t, event.EventID, decoded.EventID)
	require.Equal(t, event.PartitionKey, decoded.PartitionKey)
	require.JSONEq(t, string(event.Data), string(decoded.Data))
	require.True(t, event.OccurredAt.Equal(decoded.OccurredAt))
}

func TestDecodeMessageFallsBackToKey(t *testing.T) {
	decoded, err := decodeMessage(kafka.Message{
		Key:   []byte("call-7"),
		Value: []byte(`{"event_id":"evt-2","data":{}}`),
	})
	require.NoError(t, err)
	require.Equal(t, "call-7", decoded.PartitionKey)
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	_, err := decodeMessage(kafka.Message{Value: []byte("{")})
	require.Error(t, err)
}

func TestNewKafkaRequiresBrokers(t *testing.T) {
	_, err := NewKafka(nil, nil)
	require.Error(t, err)
}

func TestKafkaStopConsumersKeepsWriterUsableUntilClose(t *testing.T) {
	k, err := NewKafka([]string{"localhost:9092"}, nil)
	require.NoError(t, err)
	require.NoError(t, k.StopConsumers())
	require.NoError(t, k.StopConsumers())
	require.NotNil(t, k.writer)
	require.NoError(t, k.Close())
}
