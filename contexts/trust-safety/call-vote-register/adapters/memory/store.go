package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
	domainerrors "istruecaller/contexts/trust-safety/call-vote-register/domain/errors"
	"istruecaller/contexts/trust-safety/call-vote-register/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message ports.OutboxMessage
}

type dedupRecord struct {
	payloadHash string
	expiresAt   time.Time
}

// Store keeps the register's supporting state in process memory: the event
// outbox, consumer dedup reservations and the last saved checkpoint.
type Store struct {
	mu sync.RWMutex

	outbox     map[string]outboxRecord
	eventDedup map[string]dedupRecord

	snapshot    entities.RegisterSnapshot
	hasSnapshot bool
}

func NewStore() *Store {
	return &Store{
		outbox:     make(map[string]outboxRecord),
		eventDedup: make(map[string]dedupRecord),
	}
}

func (s *Store) LoadSnapshot(_ context.Context) (entities.RegisterSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasSnapshot {
		return entities.RegisterSnapshot{}, false, nil
	}
	return cloneSnapshot(s.snapshot), true, nil
}

func (s *Store) SaveSnapshot(_ context.Context, snapshot entities.RegisterSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = cloneSnapshot(snapshot)
	s.hasSnapshot = true
	return nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		items = append(items, row.message)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].OutboxID < items[j].OutboxID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.TrimSpace(outboxID)
	if _, ok := s.outbox[key]; !ok {
		return domainerrors.ErrConflict
	}
	// Published rows are dropped; every vote produces one, so keeping them
	// would grow without bound.
	delete(s.outbox, key)
	return nil
}

// ReserveEvent records eventID as processed. It returns true when the event
// was already reserved with the same payload, i.e. a broker redelivery.
func (s *Store) ReserveEvent(
	_ context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(eventID)
	existing, ok := s.eventDedup[key]
	if ok {
		if !existing.expiresAt.IsZero() && time.Now().UTC().After(existing.expiresAt.UTC()) {
			delete(s.eventDedup, key)
		} else {
			if existing.payloadHash != strings.TrimSpace(payloadHash) {
				return false, domainerrors.ErrConflict
			}
			return true, nil
		}
	}

	s.eventDedup[key] = dedupRecord{
		payloadHash: strings.TrimSpace(payloadHash),
		expiresAt:   expiresAt.UTC(),
	}
	return false, nil
}

// ReleaseEvent drops the reservation of eventID. Releasing an unknown id is a
// no-op.
func (s *Store) ReleaseEvent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.eventDedup, strings.TrimSpace(eventID))
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func cloneSnapshot(snapshot entities.RegisterSnapshot) entities.RegisterSnapshot {
	calls := make([]entities.CallRecord, 0, len(snapshot.Calls))
	for _, call := range snapshot.Calls {
		calls = append(calls, entities.CallRecord{
			CallID: call.CallID,
			Votes:  slices.Clone(call.Votes),
		})
	}
	return entities.RegisterSnapshot{
		CheckpointID: snapshot.CheckpointID,
		TakenAt:      snapshot.TakenAt,
		Revision:     snapshot.Revision,
		Calls:        calls,
	}
}

var _ ports.SnapshotStore = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.EventDedupStore = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
