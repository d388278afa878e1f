package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	contractsv1 "istruecaller/contracts/gen/events/v1"

	"github.com/segmentio/kafka-go"
)

const (
	headerEventType     = "event_type"
	headerSchemaVersion = "schema_version"
	maxHandlerAttempts  = 3
)

// Kafka publishes and consumes canonical envelopes on a Kafka cluster. One
// writer serves every topic; each Subscribe call owns a consumer-group reader.
type Kafka struct {
	brokers []string
	writer  *kafka.Writer
	logger  *slog.Logger

	mu      sync.Mutex
	readers []*kafka.Reader
	wg      sync.WaitGroup
}

// NewKafka builds the writer. Messages with the same partition key land on
// the same partition, so events of one call id keep their order.
func NewKafka(brokers []string, logger *slog.Logger) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{
		brokers: brokers,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           10 * time.Millisecond,
			MaxAttempts:            5,
			Compression:            kafka.Snappy,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}, nil
}

func (k *Kafka) Publish(ctx context.Context, topic string, event contractsv1.Envelope) error {
	msg, err := encodeMessage(topic, event)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.logger.Error("kafka publish failed",
			"event", "kafka_publish_failed",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"topic", topic,
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return fmt.Errorf("write kafka message: %w", err)
	}
	k.logger.Debug("event published",
		"event", "kafka_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
	)
	return nil
}

// Subscribe starts a consumer-group reader for topic. Offsets are committed
// after the handler ran; a message whose handler keeps failing is logged and
// skipped after a few attempts so one poison message cannot stall the
// partition.
func (k *Kafka) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, contractsv1.Envelope) error,
) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.brokers,
		Topic:       topic,
		GroupID:     consumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})

	k.mu.Lock()
	k.readers = append(k.readers, reader)
	k.mu.Unlock()

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		k.consume(ctx, reader, topic, consumerGroup, handler)
	}()
	return nil
}

func (k *Kafka) consume(
	ctx context.Context,
	reader *kafka.Reader,
	topic string,
	consumerGroup string,
	handler func(context.Context, contractsv1.Envelope) error,
) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			k.logger.Error("kafka fetch failed",
				"event", "kafka_fetch_failed",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"consumer_group", consumerGroup,
				"error", err.Error(),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		event, err := decodeMessage(msg)
		if err != nil {
			k.logger.Error("kafka message decode failed",
				"event", "kafka_decode_failed",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err.Error(),
			)
		} else {
			k.handle(ctx, topic, consumerGroup, event, handler)
		}

		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			k.logger.Error("kafka commit failed",
				"event", "kafka_commit_failed",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"consumer_group", consumerGroup,
				"offset", msg.Offset,
				"error", err.Error(),
			)
		}
	}
}

func (k *Kafka) handle(
	ctx context.Context,
	topic string,
	consumerGroup string,
	event contractsv1.Envelope,
	handler func(context.Context, contractsv1.Envelope) error,
) {
	var err error
	for attempt := 1; attempt <= maxHandlerAttempts; attempt++ {
		if err = handler(ctx, event); err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	k.logger.Error("consumer handler failed, message skipped",
		"event", "kafka_consume_failed",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"consumer_group", consumerGroup,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"attempts", maxHandlerAttempts,
		"error", err.Error(),
	)
}

// StopConsumers closes every reader and waits for in-flight handlers to
// return. The writer stays open so Publish keeps working.
func (k *Kafka) StopConsumers() error {
	k.mu.Lock()
	readers := k.readers
	k.readers = nil
	k.mu.Unlock()

	var errs []error
	for _, reader := range readers {
		if err := reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka reader: %w", err))
		}
	}
	k.wg.Wait()
	return errors.Join(errs...)
}

// Close stops the consumers and flushes the writer.
func (k *Kafka) Close() error {
	var errs []error
	if err := k.StopConsumers(); err != nil {
		errs = append(errs, err)
	}
	if err := k.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close kafka writer: %w", err))
	}
	return errors.Join(errs...)
}

func encodeMessage(topic string, event contractsv1.Envelope) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal envelope: %w", err)
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(event.PartitionKey),
		Value: value,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(event.EventType)},
			{Key: headerSchemaVersion, Value: []byte(fmt.Sprint(event.SchemaVersion))},
		},
		Time: event.OccurredAt,
	}, nil
}

func decodeMessage(msg kafka.Message) (contractsv1.Envelope, error) {
	var event contractsv1.Envelope
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return contractsv1.Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if event.PartitionKey == "" && len(msg.Key) > 0 {
		event.PartitionKey = string(msg.Key)
	}
	return event, nil
}
