package queries

import (
	"context"
	"log/slog"
	"time"

	application "istruecaller/contexts/trust-safety/call-vote-register/application"
	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
	"istruecaller/contexts/trust-safety/call-vote-register/ports"
)

type VerdictResult struct {
	Verdict entities.Verdict
	Tally   entities.Tally
	Message string
}

// VerdictUseCase serves checkVoteResult. The tally is taken on the register's
// serialized path, not from a snapshot.
type VerdictUseCase struct {
	Register ports.VoteRegister
	Metrics  ports.RegisterMetrics
	Logger   *slog.Logger
}

func (uc VerdictUseCase) CheckVoteResult(ctx context.Context, callID string) (VerdictResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	started := time.Now()

	tally, _, err := uc.Register.Tally(ctx, callID)
	if uc.Metrics != nil {
		uc.Metrics.ObserveCommand("check_vote_result", time.Since(started))
	}
	if err != nil {
		logger.Error("verdict tally failed",
			"event", "register_verdict_failed",
			"module", "trust-safety/call-vote-register",
			"layer", "application",
			"call_id", callID,
			"error", err.Error(),
		)
		return VerdictResult{}, err
	}

	verdict := tally.Decide()
	if uc.Metrics != nil {
		uc.Metrics.VerdictIssued(verdict)
	}
	logger.Debug("verdict computed",
		"event", "register_verdict_computed",
		"module", "trust-safety/call-vote-register",
		"layer", "application",
		"call_id", callID,
		"verdict", string(verdict),
		"legitimate_count", tally.LegitimateCount,
		"fraudulent_count", tally.FraudulentCount,
	)
	return VerdictResult{
		Verdict: verdict,
		Tally:   tally,
		Message: tally.Message(),
	}, nil
}
