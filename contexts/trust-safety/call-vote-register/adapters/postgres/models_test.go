package postgresadapter

import (
	"testing"

	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"

	"github.com/stretchr/testify/require"
)

func TestVoteRecordRowsRoundTripKeepsOrder(t *testing.T) {
	snapshot := entities.RegisterSnapshot{
		Calls: []entities.CallRecord{
			{CallID: "call-a", Votes: []entities.Vote{
				{Legitimate: true},
				{Fraudulent: true},
				{Legitimate: true, Fraudulent: true},
			}},
			{CallID: "call-b", Votes: []entities.Vote{{}}},
		},
	}

	rows := voteRecordModelsFromSnapshot(snapshot)
	require.Len(t, rows, 4)
	require.Equal(t, 2, rows[2].Seq)
	require.Equal(t, "call-b", rows[3].CallID)
	require.Equal(t, 0, rows[3].Seq)

	require.Equal(t, snapshot.Calls, callRecordsFromModels(rows))
}

func TestCallRecordsFromModelsEmpty(t *testing.T) {
	require.Empty(t, callRecordsFromModels(nil))
}

func TestTableNames(t *testing.T) {
	require.Equal(t, "call_vote_checkpoints", checkpointModel{}.TableName())
	require.Equal(t, "call_vote_records", voteRecordModel{}.TableName())
}
