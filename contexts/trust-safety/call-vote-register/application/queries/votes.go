package queries

import (
	"context"

	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
	"istruecaller/contexts/trust-safety/call-vote-register/ports"
)

// VotesResult distinguishes a call id that was never voted on (Found=false,
// Votes=nil) from one that has votes.
type VotesResult struct {
	CallID string
	Votes  []entities.Vote
	Found  bool
}

type VoteQueryUseCase struct {
	Register ports.VoteRegister
}

func (uc VoteQueryUseCase) GetVotes(ctx context.Context, callID string) (VotesResult, error) {
	votes, found, err := uc.Register.Votes(ctx, callID)
	if err != nil {
		return VotesResult{}, err
	}
	if !found {
		return VotesResult{CallID: callID}, nil
	}
	return VotesResult{CallID: callID, Votes: votes, Found: true}, nil
}

func (uc VoteQueryUseCase) GetAllCallIDs(ctx context.Context) ([]string, error) {
	ids, err := uc.Register.CallIDs(ctx)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
