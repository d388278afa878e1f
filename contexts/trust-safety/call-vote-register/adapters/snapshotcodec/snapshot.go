// Package snapshotcodec defines the versioned CBOR layout of a register
// checkpoint shared by the file and redis snapshot stores.
package snapshotcodec

import (
	"fmt"
	"time"

	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
	domainerrors "istruecaller/contexts/trust-safety/call-vote-register/domain/errors"
	"istruecaller/internal/platform/codec"
)

const FormatVersion = 1

type snapshotDoc struct {
	Version      int       `cbor:"1,keyasint"`
	CheckpointID string    `cbor:"2,keyasint"`
	TakenAt      time.Time `cbor:"3,keyasint"`
	Revision     uint64    `cbor:"4,keyasint"`
	Calls        []callDoc `cbor:"5,keyasint"`
}

type callDoc struct {
	CallID string    `cbor:"1,keyasint"`
	Votes  []voteDoc `cbor:"2,keyasint"`
}

// voteDoc is encoded as a two element array [legitimate, fraudulent].
type voteDoc struct {
	_          struct{} `cbor:",toarray"`
	Legitimate bool
	Fraudulent bool
}

func Encode(snapshot entities.RegisterSnapshot) ([]byte, error) {
	doc := snapshotDoc{
		Version:      FormatVersion,
		CheckpointID: snapshot.CheckpointID,
		TakenAt:      snapshot.TakenAt.UTC(),
		Revision:     snapshot.Revision,
		Calls:        make([]callDoc, 0, len(snapshot.Calls)),
	}
	for _, call := range snapshot.Calls {
		votes := make([]voteDoc, 0, len(call.Votes))
		for _, vote := range call.Votes {
			votes = append(votes, voteDoc{Legitimate: vote.Legitimate, Fraudulent: vote.Fraudulent})
		}
		doc.Calls = append(doc.Calls, callDoc{CallID: call.CallID, Votes: votes})
	}
	return codec.Marshal(doc)
}

// Decode rejects blobs that are not a register snapshot or carry a format
// version this binary does not know, wrapping ErrSnapshotCorrupt.
func Decode(data []byte) (entities.RegisterSnapshot, error) {
	var doc snapshotDoc
	if err := codec.Unmarshal(data, &doc); err != nil {
		return entities.RegisterSnapshot{}, fmt.Errorf("%w: %v", domainerrors.ErrSnapshotCorrupt, err)
	}
	if doc.Version != FormatVersion {
		return entities.RegisterSnapshot{}, fmt.Errorf("%w: unsupported format version %d", domainerrors.ErrSnapshotCorrupt, doc.Version)
	}
	snapshot := entities.RegisterSnapshot{
		CheckpointID: doc.CheckpointID,
		TakenAt:      doc.TakenAt.UTC(),
		Revision:     doc.Revision,
		Calls:        make([]entities.CallRecord, 0, len(doc.Calls)),
	}
	for _, call := range doc.Calls {
		votes := make([]entities.Vote, 0, len(call.Votes))
		for _, vote := range call.Votes {
			votes = append(votes, entities.Vote{Legitimate: vote.Legitimate, Fraudulent: vote.Fraudulent})
		}
		snapshot.Calls = append(snapshot.Calls, entities.CallRecord{CallID: call.CallID, Votes: votes})
	}
	return snapshot, nil
}
