package httpadapter

import (
	"context"
	"log/slog"
	"strings"

	"istruecaller/contexts/trust-safety/call-vote-register/application/commands"
	"istruecaller/contexts/trust-safety/call-vote-register/application/queries"
	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
	domainerrors "istruecaller/contexts/trust-safety/call-vote-register/domain/errors"
	httptransport "istruecaller/contexts/trust-safety/call-vote-register/transport/http"
)

type Handler struct {
	Votes    commands.VoteUseCase
	Verdicts queries.VerdictUseCase
	Queries  queries.VoteQueryUseCase
	Logger   *slog.Logger
}

// AddVoteHandler godoc
// @Summary Record a vote for a call
// @Description Appends one ballot to the call's vote list. Both flags are accepted as submitted.
// @Tags call-vote-register
// @Accept json
// @Produce json
// @Param call_id path string true "Call id"
// @Param request body httptransport.AddVoteRequest true "Ballot"
// @Success 200 {object} httptransport.AddVoteResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 503 {object} httptransport.ErrorResponse
// @Router /v1/calls/{call_id}/votes [post]
func (h Handler) AddVoteHandler(
	ctx context.Context,
	callID string,
	req httptransport.AddVoteRequest,
) (httptransport.AddVoteResponse, error) {
	if err := validateCallID(callID); err != nil {
		return httptransport.AddVoteResponse{}, err
	}
	result, err := h.Votes.AddVote(ctx, commands.AddVoteCommand{
		CallID:     callID,
		Legitimate: req.Legitimate,
		Fraudulent: req.Fraudulent,
	})
	if err != nil {
		return httptransport.AddVoteResponse{}, err
	}
	return httptransport.AddVoteResponse{
		CallID:          callID,
		Message:         result.Message,
		Verdict:         string(result.Verdict),
		LegitimateCount: result.Tally.LegitimateCount,
		FraudulentCount: result.Tally.FraudulentCount,
		TotalVotes:      result.Tally.TotalVotes,
	}, nil
}

// CheckVoteResultHandler godoc
// @Summary Get the verdict for a call
// @Description Majority of legitimate vs fraudulent flags. Ties are inconclusive.
// @Tags call-vote-register
// @Produce json
// @Param call_id path string true "Call id"
// @Success 200 {object} httptransport.VerdictResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 503 {object} httptransport.ErrorResponse
// @Router /v1/calls/{call_id}/verdict [get]
func (h Handler) CheckVoteResultHandler(ctx context.Context, callID string) (httptransport.VerdictResponse, error) {
	if err := validateCallID(callID); err != nil {
		return httptransport.VerdictResponse{}, err
	}
	result, err := h.Verdicts.CheckVoteResult(ctx, callID)
	if err != nil {
		return httptransport.VerdictResponse{}, err
	}
	return httptransport.VerdictResponse{
		CallID:          callID,
		Verdict:         string(result.Verdict),
		Message:         result.Message,
		LegitimateCount: result.Tally.LegitimateCount,
		FraudulentCount: result.Tally.FraudulentCount,
		TotalVotes:      result.Tally.TotalVotes,
	}, nil
}

// ClearCallVotesHandler godoc
// @Summary Clear the votes of one call
// @Tags call-vote-register
// @Produce json
// @Param call_id path string true "Call id"
// @Success 200 {object} httptransport.ClearResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Router /v1/calls/{call_id}/votes [delete]
func (h Handler) ClearCallVotesHandler(ctx context.Context, callID string) (httptransport.ClearResponse, error) {
	if err := validateCallID(callID); err != nil {
		return httptransport.ClearResponse{}, err
	}
	result, err := h.Votes.ClearCallVotes(ctx, callID)
	if err != nil {
		return httptransport.ClearResponse{}, err
	}
	return httptransport.ClearResponse{Message: result.Message, Existed: result.Existed}, nil
}

// ClearAllVotesHandler godoc
// @Summary Clear every call's votes
// @Tags call-vote-register
// @Produce json
// @Success 200 {object} httptransport.ClearResponse
// @Router /v1/calls [delete]
func (h Handler) ClearAllVotesHandler(ctx context.Context) (httptransport.ClearResponse, error) {
	result, err := h.Votes.ClearAllVotes(ctx)
	if err != nil {
		return httptransport.ClearResponse{}, err
	}
	return httptransport.ClearResponse{
		Message:      result.Message,
		Existed:      result.Existed,
		RemovedCalls: result.RemovedCalls,
	}, nil
}

// ListCallIDsHandler godoc
// @Summary List call ids with votes
// @Description Sorted ascending. Empty register yields an empty list.
// @Tags call-vote-register
// @Produce json
// @Success 200 {object} httptransport.CallIDsResponse
// @Router /v1/calls [get]
func (h Handler) ListCallIDsHandler(ctx context.Context) (httptransport.CallIDsResponse, error) {
	ids, err := h.Queries.GetAllCallIDs(ctx)
	if err != nil {
		return httptransport.CallIDsResponse{}, err
	}
	return httptransport.CallIDsResponse{CallIDs: ids, Count: len(ids)}, nil
}

// GetVotesHandler godoc
// @Summary Get the recorded votes of a call
// @Description votes is null when the call was never voted on, and in submission order otherwise.
// @Tags call-vote-register
// @Produce json
// @Param call_id path string true "Call id"
// @Success 200 {object} httptransport.VotesResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Router /v1/calls/{call_id}/votes [get]
func (h Handler) GetVotesHandler(ctx context.Context, callID string) (httptransport.VotesResponse, error) {
	if err := validateCallID(callID); err != nil {
		return httptransport.VotesResponse{}, err
	}
	result, err := h.Queries.GetVotes(ctx, callID)
	if err != nil {
		return httptransport.VotesResponse{}, err
	}
	return httptransport.VotesResponse{
		CallID: callID,
		Found:  result.Found,
		Votes:  mapVotes(result.Votes, result.Found),
	}, nil
}

// CurrentVerdictUpdate returns the verdict a new watcher should see first.
func (h Handler) CurrentVerdictUpdate(ctx context.Context, callID string) (entities.VerdictUpdate, error) {
	if err := validateCallID(callID); err != nil {
		return entities.VerdictUpdate{}, err
	}
	result, err := h.Verdicts.CheckVoteResult(ctx, callID)
	if err != nil {
		return entities.VerdictUpdate{}, err
	}
	return entities.NewVerdictUpdate(result.Tally, h.Votes.Now()), nil
}

func validateCallID(callID string) error {
	if strings.TrimSpace(callID) == "" {
		return domainerrors.ErrInvalidCallID
	}
	return nil
}

func mapVotes(votes []entities.Vote, found bool) []httptransport.VoteItem {
	if !found {
		return nil
	}
	items := make([]httptransport.VoteItem, 0, len(votes))
	for _, vote := range votes {
		items = append(items, httptransport.VoteItem{
			Legitimate: vote.Legitimate,
			Fraudulent: vote.Fraudulent,
		})
	}
	return items
}
