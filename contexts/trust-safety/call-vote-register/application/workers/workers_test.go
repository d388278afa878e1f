package workers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"istruecaller/contexts/trust-safety/call-vote-register/adapters/memory"
	"istruecaller/contexts/trust-safety/call-vote-register/application/commands"
	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
	domainerrors "istruecaller/contexts/trust-safety/call-vote-register/domain/errors"
	"istruecaller/contexts/trust-safety/call-vote-register/ports"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type stubSubscriber struct {
	handlers map[string]func(context.Context, ports.EventEnvelope) error
	groups   map[string]string
}

func (s *stubSubscriber) Subscribe(
	_ context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	if s.handlers == nil {
		s.handlers = map[string]func(context.Context, ports.EventEnvelope) error{}
		s.groups = map[string]string{}
	}
	s.handlers[topic] = handler
	s.groups[topic] = consumerGroup
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []ports.EventEnvelope
	failAt int
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAt > 0 && len(p.events)+1 == p.failAt {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

type failingSnapshots struct {
	saves int
}

func (s *failingSnapshots) LoadSnapshot(context.Context) (entities.RegisterSnapshot, bool, error) {
	return entities.RegisterSnapshot{}, false, errors.New("store offline")
}

func (s *failingSnapshots) SaveSnapshot(context.Context, entities.RegisterSnapshot) error {
	s.saves++
	return errors.New("store offline")
}

func newRegister(t *testing.T, seed entities.RegisterSnapshot) *memory.Register {
	t.Helper()
	register := memory.NewRegister(memory.RegisterConfig{Shards: 2, Seed: seed})
	t.Cleanup(func() { _ = register.Close() })
	return register
}

func TestSubmittedVoteConsumerAppliesVotesOnce(t *testing.T) {
	now := time.Now().UTC()
	register := newRegister(t, entities.RegisterSnapshot{})
	store := memory.NewStore()
	sub := &stubSubscriber{}
	consumer := SubmittedVoteConsumer{
		Subscriber: sub,
		Dedup:      store,
		Votes:      commands.VoteUseCase{Register: register},
	}

	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("start submitted vote consumer failed: %v", err)
	}
	handler := sub.handlers[DefaultSubmittedVotesTopic]
	if handler == nil {
		t.Fatalf("expected %s handler registration", DefaultSubmittedVotesTopic)
	}
	if sub.groups[DefaultSubmittedVotesTopic] != defaultSubmittedVotesCG {
		t.Fatalf("unexpected consumer group %q", sub.groups[DefaultSubmittedVotesTopic])
	}

	envelope, err := NewSubmittedVoteEnvelope("event-1", SubmittedVotePayload{CallID: "C1", Fraudulent: true}, now)
	if err != nil {
		t.Fatalf("build envelope failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := handler(context.Background(), envelope); err != nil {
			t.Fatalf("handler delivery %d failed: %v", i+1, err)
		}
	}

	second, err := NewSubmittedVoteEnvelope("event-2", SubmittedVotePayload{CallID: "C1", Fraudulent: true}, now)
	if err != nil {
		t.Fatalf("build envelope failed: %v", err)
	}
	if err := handler(context.Background(), second); err != nil {
		t.Fatalf("second event failed: %v", err)
	}

	votes, found, err := register.Votes(context.Background(), "C1")
	if err != nil || !found {
		t.Fatalf("expected votes for C1, found=%v err=%v", found, err)
	}
	if len(votes) != 2 {
		t.Fatalf("expected redelivery to be absorbed and distinct events counted, got %d votes", len(votes))
	}
}

// flakyRegister fails the first failures appends and then delegates.
type flakyRegister struct {
	*memory.Register
	failures int
}

func (r *flakyRegister) AppendVote(ctx context.Context, callID string, vote entities.Vote) (entities.Tally, error) {
	if r.failures > 0 {
		r.failures--
		return entities.Tally{}, domainerrors.ErrRegisterClosed
	}
	return r.Register.AppendVote(ctx, callID, vote)
}

func TestSubmittedVoteConsumerRetriesFailedApply(t *testing.T) {
	register := &flakyRegister{Register: newRegister(t, entities.RegisterSnapshot{}), failures: 1}
	consumer := SubmittedVoteConsumer{
		Dedup: memory.NewStore(),
		Votes: commands.VoteUseCase{Register: register},
	}

	envelope, err := NewSubmittedVoteEnvelope("event-retry", SubmittedVotePayload{CallID: "C1", Legitimate: true}, time.Now())
	if err != nil {
		t.Fatalf("build envelope failed: %v", err)
	}
	if err := consumer.Handle(context.Background(), envelope); !errors.Is(err, domainerrors.ErrRegisterClosed) {
		t.Fatalf("expected first delivery to fail with register closed, got %v", err)
	}
	if err := consumer.Handle(context.Background(), envelope); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if err := consumer.Handle(context.Background(), envelope); err != nil {
		t.Fatalf("third delivery failed: %v", err)
	}

	votes, found, err := register.Votes(context.Background(), "C1")
	if err != nil || !found {
		t.Fatalf("expected redelivered vote to be recorded, found=%v err=%v", found, err)
	}
	if len(votes) != 1 {
		t.Fatalf("expected exactly one vote after retry, got %d", len(votes))
	}
}

func TestSubmittedVoteConsumerRejectsBadPayloads(t *testing.T) {
	register := newRegister(t, entities.RegisterSnapshot{})
	consumer := SubmittedVoteConsumer{
		Dedup: memory.NewStore(),
		Votes: commands.VoteUseCase{Register: register},
	}

	err := consumer.Handle(context.Background(), ports.EventEnvelope{EventID: "bad-1", Data: json.RawMessage(`"nope"`)})
	if !errors.Is(err, domainerrors.ErrInvalidVotePayload) {
		t.Fatalf("expected invalid payload error, got %v", err)
	}

	envelope, _ := NewSubmittedVoteEnvelope("bad-2", SubmittedVotePayload{CallID: "  "}, time.Now())
	err = consumer.Handle(context.Background(), envelope)
	if !errors.Is(err, domainerrors.ErrInvalidCallID) {
		t.Fatalf("expected invalid call id error, got %v", err)
	}

	ids, _ := register.CallIDs(context.Background())
	if len(ids) != 0 {
		t.Fatalf("expected no calls recorded, got %v", ids)
	}
}

func TestOutboxRelayPublishesAndMarks(t *testing.T) {
	register := newRegister(t, entities.RegisterSnapshot{})
	store := memory.NewStore()
	uc := commands.VoteUseCase{Register: register, Outbox: store, IDGen: store}
	for _, id := range []string{"C1", "C2"} {
		if _, err := uc.AddVote(context.Background(), commands.AddVoteCommand{CallID: id, Legitimate: true}); err != nil {
			t.Fatalf("add vote failed: %v", err)
		}
	}

	publisher := &recordingPublisher{}
	relay := OutboxRelay{Outbox: store, Publisher: publisher, Topic: "call.register.events"}
	published, err := relay.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("relay run failed: %v", err)
	}
	if published != 2 {
		t.Fatalf("expected 2 published rows, got %d", published)
	}
	for _, topic := range publisher.topics {
		if topic != "call.register.events" {
			t.Fatalf("expected topic override, got %q", topic)
		}
	}
	if publisher.events[0].EventType != commands.EventVoteAdded {
		t.Fatalf("unexpected event type %q", publisher.events[0].EventType)
	}

	pending, _ := store.ListPendingOutbox(context.Background(), 10)
	if len(pending) != 0 {
		t.Fatalf("expected outbox drained, %d rows left", len(pending))
	}
}

func TestOutboxRelayStopsOnPublishFailure(t *testing.T) {
	store := memory.NewStore()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"evt-a", "evt-b", "evt-c"} {
		if err := store.AppendOutbox(context.Background(), ports.EventEnvelope{
			EventID:    id,
			EventType:  commands.EventVoteAdded,
			OccurredAt: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("append outbox failed: %v", err)
		}
	}

	publisher := &recordingPublisher{failAt: 2}
	relay := OutboxRelay{Outbox: store, Publisher: publisher}
	published, err := relay.RunOnce(context.Background())
	if err == nil {
		t.Fatalf("expected publish failure")
	}
	if published != 1 {
		t.Fatalf("expected 1 row published before failure, got %d", published)
	}
	if publisher.topics[0] != commands.EventVoteAdded {
		t.Fatalf("expected event type topic, got %q", publisher.topics[0])
	}

	pending, _ := store.ListPendingOutbox(context.Background(), 10)
	if len(pending) != 2 || pending[0].OutboxID != "evt-b" {
		t.Fatalf("expected evt-b and evt-c left pending, got %+v", pending)
	}
}

func TestCheckpointerSkipsUnchangedRevision(t *testing.T) {
	register := newRegister(t, entities.RegisterSnapshot{})
	store := memory.NewStore()
	checkpointer := &Checkpointer{
		Register:  register,
		Snapshots: store,
		Clock:     fixedClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)},
	}
	uc := commands.VoteUseCase{Register: register}
	if _, err := uc.AddVote(context.Background(), commands.AddVoteCommand{CallID: "C1", Legitimate: true}); err != nil {
		t.Fatalf("add vote failed: %v", err)
	}

	saved, err := checkpointer.RunOnce(context.Background())
	if err != nil || !saved {
		t.Fatalf("expected first checkpoint saved, saved=%v err=%v", saved, err)
	}
	saved, err = checkpointer.RunOnce(context.Background())
	if err != nil || saved {
		t.Fatalf("expected unchanged register to skip, saved=%v err=%v", saved, err)
	}

	snapshot, found, err := store.LoadSnapshot(context.Background())
	if err != nil || !found {
		t.Fatalf("expected stored snapshot, found=%v err=%v", found, err)
	}
	if snapshot.CheckpointID != "rev-1" || snapshot.Revision != 1 {
		t.Fatalf("unexpected checkpoint identity %q revision %d", snapshot.CheckpointID, snapshot.Revision)
	}
	if len(snapshot.Calls) != 1 || snapshot.Calls[0].CallID != "C1" {
		t.Fatalf("unexpected snapshot calls %+v", snapshot.Calls)
	}
}

func TestCheckpointRestoreRoundTrip(t *testing.T) {
	store := memory.NewStore()
	first := newRegister(t, entities.RegisterSnapshot{})
	uc := commands.VoteUseCase{Register: first}
	for _, vote := range []commands.AddVoteCommand{
		{CallID: "C1", Legitimate: true},
		{CallID: "C1", Fraudulent: true},
		{CallID: "C2", Legitimate: true, Fraudulent: true},
	} {
		if _, err := uc.AddVote(context.Background(), vote); err != nil {
			t.Fatalf("add vote failed: %v", err)
		}
	}
	if _, err := (&Checkpointer{Register: first, Snapshots: store, IDGen: store}).RunOnce(context.Background()); err != nil {
		t.Fatalf("checkpoint failed: %v", err)
	}

	seed, found, err := LoadSeed(context.Background(), store, nil)
	if err != nil || !found {
		t.Fatalf("load seed failed, found=%v err=%v", found, err)
	}
	second := newRegister(t, seed)
	checkpointer := &Checkpointer{Register: second, Snapshots: store}
	checkpointer.MarkRestored()
	saved, err := checkpointer.RunOnce(context.Background())
	if err != nil || saved {
		t.Fatalf("expected restored register not to be rewritten, saved=%v err=%v", saved, err)
	}

	votes, _, err := second.Votes(context.Background(), "C1")
	if err != nil {
		t.Fatalf("votes after restore failed: %v", err)
	}
	if len(votes) != 2 || !votes[0].Legitimate || !votes[1].Fraudulent {
		t.Fatalf("unexpected restored votes %+v", votes)
	}
}

func TestCheckpointerRetriesAfterSaveFailure(t *testing.T) {
	register := newRegister(t, entities.RegisterSnapshot{})
	snapshots := &failingSnapshots{}
	checkpointer := &Checkpointer{Register: register, Snapshots: snapshots}

	for i := 0; i < 2; i++ {
		if _, err := checkpointer.RunOnce(context.Background()); err == nil {
			t.Fatalf("expected save failure on attempt %d", i+1)
		}
	}
	if snapshots.saves != 2 {
		t.Fatalf("expected a save attempt per cycle, got %d", snapshots.saves)
	}

	if _, _, err := LoadSeed(context.Background(), snapshots, nil); err == nil {
		t.Fatalf("expected load failure to surface")
	}
}
