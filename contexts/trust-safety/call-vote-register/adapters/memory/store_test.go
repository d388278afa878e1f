package memory

import (
	"context"
	"testing"
	"time"

	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
	domainerrors "istruecaller/contexts/trust-safety/call-vote-register/domain/errors"
	"istruecaller/contexts/trust-safety/call-vote-register/ports"

	"github.com/stretchr/testify/require"
)

func TestStoreSnapshotIsCopied(t *testing.T) {
	store := NewStore()
	_, found, err := store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.False(t, found)

	snapshot := entities.RegisterSnapshot{
		CheckpointID: "cp-1",
		Revision:     3,
		Calls:        []entities.CallRecord{{CallID: "C1", Votes: []entities.Vote{{Legitimate: true}}}},
	}
	require.NoError(t, store.SaveSnapshot(context.Background(), snapshot))
	snapshot.Calls[0].Votes[0].Legitimate = false

	loaded, found, err := store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(3), loaded.Revision)
	require.True(t, loaded.Calls[0].Votes[0].Legitimate)
}

func TestStoreOutboxLifecycle(t *testing.T) {
	store := NewStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	second := ports.EventEnvelope{EventID: "evt-2", EventType: "call.vote.added", OccurredAt: base.Add(time.Second)}
	first := ports.EventEnvelope{EventID: "evt-1", EventType: "call.vote.added", OccurredAt: base}
	require.NoError(t, store.AppendOutbox(context.Background(), second))
	require.NoError(t, store.AppendOutbox(context.Background(), first))
	// Same id and payload is idempotent.
	require.NoError(t, store.AppendOutbox(context.Background(), first))

	changed := first
	changed.EventType = "register.cleared"
	require.ErrorIs(t, store.AppendOutbox(context.Background(), changed), domainerrors.ErrConflict)

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "evt-1", pending[0].OutboxID)
	require.Equal(t, "evt-2", pending[1].OutboxID)

	require.NoError(t, store.MarkOutboxPublished(context.Background(), "evt-1", base))
	require.ErrorIs(t, store.MarkOutboxPublished(context.Background(), "evt-1", base), domainerrors.ErrConflict)

	pending, err = store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "evt-2", pending[0].OutboxID)
}

func TestStoreReserveEvent(t *testing.T) {
	store := NewStore()
	expires := time.Now().Add(time.Hour)

	replayed, err := store.ReserveEvent(context.Background(), "evt-1", "hash-a", expires)
	require.NoError(t, err)
	require.False(t, replayed)

	replayed, err = store.ReserveEvent(context.Background(), "evt-1", "hash-a", expires)
	require.NoError(t, err)
	require.True(t, replayed)

	_, err = store.ReserveEvent(context.Background(), "evt-1", "hash-b", expires)
	require.ErrorIs(t, err, domainerrors.ErrConflict)

	// Expired reservations are replaced.
	_, err = store.ReserveEvent(context.Background(), "evt-2", "hash-a", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	replayed, err = store.ReserveEvent(context.Background(), "evt-2", "hash-b", expires)
	require.NoError(t, err)
	require.False(t, replayed)
}

func TestStoreReleaseEvent(t *testing.T) {
	store := NewStore()
	expires := time.Now().Add(time.Hour)

	_, err := store.ReserveEvent(context.Background(), "evt-1", "hash-a", expires)
	require.NoError(t, err)
	require.NoError(t, store.ReleaseEvent(context.Background(), " evt-1 "))

	replayed, err := store.ReserveEvent(context.Background(), "evt-1", "hash-b", expires)
	require.NoError(t, err)
	require.False(t, replayed)

	require.NoError(t, store.ReleaseEvent(context.Background(), "never-reserved"))
}
