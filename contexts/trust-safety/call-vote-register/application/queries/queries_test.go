package queries

import (
	"context"
	"testing"

	"istruecaller/contexts/trust-safety/call-vote-register/adapters/memory"
	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"

	"github.com/stretchr/testify/require"
)

func seededRegister(t *testing.T) *memory.Register {
	t.Helper()
	register := memory.NewRegister(memory.RegisterConfig{Seed: entities.RegisterSnapshot{
		Calls: []entities.CallRecord{
			{CallID: "C1", Votes: []entities.Vote{{Legitimate: true}, {Legitimate: true}, {Fraudulent: true}}},
			{CallID: "C2", Votes: []entities.Vote{{Fraudulent: true}, {Legitimate: true}}},
		},
	}})
	t.Cleanup(func() { _ = register.Close() })
	return register
}

func TestCheckVoteResult(t *testing.T) {
	uc := VerdictUseCase{Register: seededRegister(t)}

	result, err := uc.CheckVoteResult(context.Background(), "C1")
	require.NoError(t, err)
	require.Equal(t, entities.VerdictLegitimate, result.Verdict)
	require.Equal(t, "Call C1 is legitimate (2 legitimate vs 1 fraudulent)", result.Message)

	result, err = uc.CheckVoteResult(context.Background(), "C2")
	require.NoError(t, err)
	require.Equal(t, entities.VerdictInconclusive, result.Verdict)

	result, err = uc.CheckVoteResult(context.Background(), "C9")
	require.NoError(t, err)
	require.Equal(t, entities.VerdictNoVotes, result.Verdict)
	require.Equal(t, "No votes recorded for call C9", result.Message)
}

func TestGetVotes(t *testing.T) {
	uc := VoteQueryUseCase{Register: seededRegister(t)}

	result, err := uc.GetVotes(context.Background(), "C2")
	require.NoError(t, err)
	require.True(t, result.Found)
	require.Equal(t, []entities.Vote{{Fraudulent: true}, {Legitimate: true}}, result.Votes)

	result, err = uc.GetVotes(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, result.Found)
	require.Nil(t, result.Votes)
}

func TestGetAllCallIDs(t *testing.T) {
	uc := VoteQueryUseCase{Register: seededRegister(t)}
	ids, err := uc.GetAllCallIDs(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"C1", "C2"}, ids)

	empty := memory.NewRegister(memory.RegisterConfig{})
	t.Cleanup(func() { _ = empty.Close() })
	ids, err = VoteQueryUseCase{Register: empty}.GetAllCallIDs(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ids)
	require.Empty(t, ids)
}
