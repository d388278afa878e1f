package postgresadapter

import (
	"time"

	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
)

type checkpointModel struct {
	CheckpointID string    `gorm:"column:checkpoint_id;primaryKey"`
	TakenAt      time.Time `gorm:"column:taken_at;index"`
	Revision     int64     `gorm:"column:revision"`
	CallCount    int       `gorm:"column:call_count"`
	VoteCount    int       `gorm:"column:vote_count"`
}

func (checkpointModel) TableName() string {
	return "call_vote_checkpoints"
}

// voteRecordModel is one ballot. Seq preserves submission order within a call.
type voteRecordModel struct {
	CallID     string `gorm:"column:call_id;primaryKey"`
	Seq        int    `gorm:"column:seq;primaryKey;autoIncrement:false"`
	Legitimate bool   `gorm:"column:legitimate"`
	Fraudulent bool   `gorm:"column:fraudulent"`
}

func (voteRecordModel) TableName() string {
	return "call_vote_records"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "call_vote_outbox"
}

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string {
	return "call_vote_event_dedup"
}

func voteRecordModelsFromSnapshot(snapshot entities.RegisterSnapshot) []voteRecordModel {
	rows := make([]voteRecordModel, 0, snapshot.VoteCount())
	for _, call := range snapshot.Calls {
		for seq, vote := range call.Votes {
			rows = append(rows, voteRecordModel{
				CallID:     call.CallID,
				Seq:        seq,
				Legitimate: vote.Legitimate,
				Fraudulent: vote.Fraudulent,
			})
		}
	}
	return rows
}

// callRecordsFromModels expects rows ordered by call_id then seq.
func callRecordsFromModels(rows []voteRecordModel) []entities.CallRecord {
	calls := make([]entities.CallRecord, 0)
	for _, row := range rows {
		if len(calls) == 0 || calls[len(calls)-1].CallID != row.CallID {
			calls = append(calls, entities.CallRecord{CallID: row.CallID})
		}
		last := &calls[len(calls)-1]
		last.Votes = append(last.Votes, entities.Vote{
			Legitimate: row.Legitimate,
			Fraudulent: row.Fraudulent,
		})
	}
	return calls
}
