package entities

import (
	"fmt"
	"time"
)

// Vote is a single ballot. The two flags are independent: a ballot may assert
// both, or neither, and is tallied as submitted.
type Vote struct {
	Legitimate bool
	Fraudulent bool
}

type BallotShape string

const (
	BallotLegitOnly BallotShape = "legit_only"
	BallotFraudOnly BallotShape = "fraud_only"
	BallotBoth      BallotShape = "both"
	BallotNeither   BallotShape = "neither"
)

func (v Vote) Shape() BallotShape {
	switch {
	case v.Legitimate && v.Fraudulent:
		return BallotBoth
	case v.Legitimate:
		return BallotLegitOnly
	case v.Fraudulent:
		return BallotFraudOnly
	default:
		return BallotNeither
	}
}

// CallRecord is the ordered vote history of one call id.
type CallRecord struct {
	CallID string
	Votes  []Vote
}

// Tally is the flag count of one call id. Revision is the register revision
// the tally was observed at; it orders tallies of the same call id and is zero
// when the tally was not read from a register.
type Tally struct {
	CallID          string
	LegitimateCount int
	FraudulentCount int
	TotalVotes      int
	Revision        uint64
}

// TallyVotes counts flags over votes. The result depends only on the
// multiset of votes, never on their order.
func TallyVotes(callID string, votes []Vote) Tally {
	tally := Tally{CallID: callID, TotalVotes: len(votes)}
	for _, vote := range votes {
		if vote.Legitimate {
			tally.LegitimateCount++
		}
		if vote.Fraudulent {
			tally.FraudulentCount++
		}
	}
	return tally
}

type Verdict string

const (
	VerdictNoVotes      Verdict = "no_votes"
	VerdictLegitimate   Verdict = "legitimate"
	VerdictFraudulent   Verdict = "fraudulent"
	VerdictInconclusive Verdict = "inconclusive"
)

// Decide applies the majority rule. A tally with zero votes is treated as
// "no votes recorded" even if both counts are zero by coincidence of flags.
func (t Tally) Decide() Verdict {
	switch {
	case t.TotalVotes == 0:
		return VerdictNoVotes
	case t.LegitimateCount > t.FraudulentCount:
		return VerdictLegitimate
	case t.FraudulentCount > t.LegitimateCount:
		return VerdictFraudulent
	default:
		return VerdictInconclusive
	}
}

// Message renders the human-readable verdict returned by checkVoteResult.
func (t Tally) Message() string {
	switch t.Decide() {
	case VerdictNoVotes:
		return fmt.Sprintf("No votes recorded for call %s", t.CallID)
	case VerdictLegitimate:
		return fmt.Sprintf("Call %s is legitimate (%d legitimate vs %d fraudulent)",
			t.CallID, t.LegitimateCount, t.FraudulentCount)
	case VerdictFraudulent:
		return fmt.Sprintf("Call %s is fraudulent (%d fraudulent vs %d legitimate)",
			t.CallID, t.FraudulentCount, t.LegitimateCount)
	default:
		return fmt.Sprintf("Call %s is inconclusive: tie (%d legitimate vs %d fraudulent)",
			t.CallID, t.LegitimateCount, t.FraudulentCount)
	}
}

// RegisterSnapshot is a consistent cut of the register used for checkpoint
// and restore. Calls are sorted by id; votes keep submission order.
type RegisterSnapshot struct {
	CheckpointID string
	TakenAt      time.Time
	Revision     uint64
	Calls        []CallRecord
}

func (s RegisterSnapshot) VoteCount() int {
	total := 0
	for _, call := range s.Calls {
		total += len(call.Votes)
	}
	return total
}

type VerdictUpdate struct {
	CallID          string
	Verdict         Verdict
	LegitimateCount int
	FraudulentCount int
	TotalVotes      int
	Revision        uint64
	OccurredAt      time.Time
}

func NewVerdictUpdate(tally Tally, occurredAt time.Time) VerdictUpdate {
	return VerdictUpdate{
		CallID:          tally.CallID,
		Verdict:         tally.Decide(),
		LegitimateCount: tally.LegitimateCount,
		FraudulentCount: tally.FraudulentCount,
		TotalVotes:      tally.TotalVotes,
		Revision:        tally.Revision,
		OccurredAt:      occurredAt.UTC(),
	}
}
