package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	application "istruecaller/contexts/trust-safety/call-vote-register/application"
	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
	"istruecaller/contexts/trust-safety/call-vote-register/ports"
)

const (
	EventVoteAdded        = "call.vote.added"
	EventCallVotesCleared = "call.votes.cleared"
	EventRegisterCleared  = "register.cleared"

	ClearScopeCall = "call"
	ClearScopeAll  = "all"
)

// AddVoteCommand is the write-model input for addVote. Both flags are taken
// as submitted; no combination is rejected.
type AddVoteCommand struct {
	CallID     string
	Legitimate bool
	Fraudulent bool
}

type AddVoteResult struct {
	Message string
	Tally   entities.Tally
	Verdict entities.Verdict
}

type ClearResult struct {
	Message      string
	Existed      bool
	RemovedCalls int
}

// VoteUseCase runs the register's mutating operations and fans the committed
// result out to the outbox, live verdict subscribers and metrics. Side
// channels are best effort: a committed vote is never reported as failed.
type VoteUseCase struct {
	Register ports.VoteRegister
	Outbox   ports.OutboxWriter
	Notifier ports.VerdictNotifier
	Metrics  ports.RegisterMetrics
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Logger   *slog.Logger
}

func (uc VoteUseCase) AddVote(ctx context.Context, cmd AddVoteCommand) (AddVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	started := time.Now()
	vote := entities.Vote{Legitimate: cmd.Legitimate, Fraudulent: cmd.Fraudulent}

	tally, err := uc.Register.AppendVote(ctx, cmd.CallID, vote)
	uc.observe("add_vote", started)
	if err != nil {
		logger.Error("vote append failed",
			"event", "register_vote_append_failed",
			"module", "trust-safety/call-vote-register",
			"layer", "application",
			"call_id", cmd.CallID,
			"error", err.Error(),
		)
		return AddVoteResult{}, err
	}

	now := uc.Now()
	verdict := tally.Decide()
	if uc.Metrics != nil {
		uc.Metrics.VoteRecorded(vote.Shape())
	}
	uc.appendEvent(ctx, logger, EventVoteAdded, cmd.CallID, now, map[string]any{
		"call_id":          cmd.CallID,
		"legitimate":       cmd.Legitimate,
		"fraudulent":       cmd.Fraudulent,
		"legitimate_count": tally.LegitimateCount,
		"fraudulent_count": tally.FraudulentCount,
		"total_votes":      tally.TotalVotes,
		"verdict":          string(verdict),
	})
	uc.notify(ctx, entities.NewVerdictUpdate(tally, now))

	logger.Info("vote recorded",
		"event", "register_vote_recorded",
		"module", "trust-safety/call-vote-register",
		"layer", "application",
		"call_id", cmd.CallID,
		"ballot", string(vote.Shape()),
		"total_votes", tally.TotalVotes,
		"verdict", string(verdict),
	)
	return AddVoteResult{
		Message: fmt.Sprintf("Vote recorded for call %s", cmd.CallID),
		Tally:   tally,
		Verdict: verdict,
	}, nil
}

// ClearCallVotes removes one call id. Clearing an id that was never voted on
// succeeds with the same message.
func (uc VoteUseCase) ClearCallVotes(ctx context.Context, callID string) (ClearResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	started := time.Now()

	tally, existed, err := uc.Register.ClearCall(ctx, callID)
	uc.observe("clear_call_votes", started)
	if err != nil {
		logger.Error("call votes clear failed",
			"event", "register_call_clear_failed",
			"module", "trust-safety/call-vote-register",
			"layer", "application",
			"call_id", callID,
			"error", err.Error(),
		)
		return ClearResult{}, err
	}

	if existed {
		now := uc.Now()
		if uc.Metrics != nil {
			uc.Metrics.RegisterCleared(ClearScopeCall)
		}
		uc.appendEvent(ctx, logger, EventCallVotesCleared, callID, now, map[string]any{
			"call_id": callID,
		})
		uc.notify(ctx, entities.NewVerdictUpdate(tally, now))
	}

	logger.Info("call votes cleared",
		"event", "register_call_cleared",
		"module", "trust-safety/call-vote-register",
		"layer", "application",
		"call_id", callID,
		"existed", existed,
	)
	return ClearResult{
		Message: fmt.Sprintf("Votes cleared for call %s", callID),
		Existed: existed,
	}, nil
}

func (uc VoteUseCase) ClearAllVotes(ctx context.Context) (ClearResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	started := time.Now()

	removed, revision, err := uc.Register.ClearAll(ctx)
	uc.observe("clear_all_votes", started)
	if err != nil {
		logger.Error("register clear failed",
			"event", "register_clear_all_failed",
			"module", "trust-safety/call-vote-register",
			"layer", "application",
			"error", err.Error(),
		)
		return ClearResult{}, err
	}

	if uc.Metrics != nil {
		uc.Metrics.RegisterCleared(ClearScopeAll)
	}
	if removed > 0 {
		now := uc.Now()
		uc.appendEvent(ctx, logger, EventRegisterCleared, "", now, map[string]any{
			"removed_calls": removed,
		})
		if uc.Notifier != nil {
			uc.Notifier.NotifyReset(ctx, revision, now)
		}
	}

	logger.Info("register cleared",
		"event", "register_cleared",
		"module", "trust-safety/call-vote-register",
		"layer", "application",
		"removed_calls", removed,
	)
	return ClearResult{
		Message:      "All votes cleared",
		Existed:      removed > 0,
		RemovedCalls: removed,
	}, nil
}

// Now is the timestamp stamped on events and verdict updates.
func (uc VoteUseCase) Now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (uc VoteUseCase) observe(operation string, started time.Time) {
	if uc.Metrics != nil {
		uc.Metrics.ObserveCommand(operation, time.Since(started))
	}
}

func (uc VoteUseCase) notify(ctx context.Context, update entities.VerdictUpdate) {
	if uc.Notifier != nil {
		uc.Notifier.NotifyVerdict(ctx, update)
	}
}

func (uc VoteUseCase) appendEvent(
	ctx context.Context,
	logger *slog.Logger,
	eventType string,
	callID string,
	occurredAt time.Time,
	data map[string]any,
) {
	// Outbox is optional for pure in-memory wiring, so nil is treated as no-op.
	if uc.Outbox == nil || uc.IDGen == nil {
		return
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err == nil {
		var envelope ports.EventEnvelope
		envelope, err = newRegisterEnvelope(eventID, eventType, callID, occurredAt, data)
		if err == nil {
			err = uc.Outbox.AppendOutbox(ctx, envelope)
		}
	}
	if err != nil {
		logger.Warn("register event not written to outbox",
			"event", "register_outbox_append_failed",
			"module", "trust-safety/call-vote-register",
			"layer", "application",
			"event_type", eventType,
			"call_id", callID,
			"error", err.Error(),
		)
	}
}
