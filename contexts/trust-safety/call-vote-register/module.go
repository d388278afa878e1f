package callvoteregister

import (
	"log/slog"

	httpadapter "istruecaller/contexts/trust-safety/call-vote-register/adapters/http"
	"istruecaller/contexts/trust-safety/call-vote-register/adapters/memory"
	"istruecaller/contexts/trust-safety/call-vote-register/application/commands"
	"istruecaller/contexts/trust-safety/call-vote-register/application/queries"
	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
	"istruecaller/contexts/trust-safety/call-vote-register/ports"
)

type Module struct {
	Handler  httpadapter.Handler
	Votes    commands.VoteUseCase
	Register *memory.Register
	Store    *memory.Store
}

type Dependencies struct {
	Register ports.VoteRegister
	Outbox   ports.OutboxWriter
	Notifier ports.VerdictNotifier
	Metrics  ports.RegisterMetrics
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Logger   *slog.Logger
}

func NewModule(deps Dependencies) Module {
	voteUseCase := commands.VoteUseCase{
		Register: deps.Register,
		Outbox:   deps.Outbox,
		Notifier: deps.Notifier,
		Metrics:  deps.Metrics,
		Clock:    deps.Clock,
		IDGen:    deps.IDGen,
		Logger:   deps.Logger,
	}
	verdictUseCase := queries.VerdictUseCase{
		Register: deps.Register,
		Metrics:  deps.Metrics,
		Logger:   deps.Logger,
	}
	queryUseCase := queries.VoteQueryUseCase{
		Register: deps.Register,
	}
	return Module{
		Handler: httpadapter.Handler{
			Votes:    voteUseCase,
			Verdicts: verdictUseCase,
			Queries:  queryUseCase,
			Logger:   deps.Logger,
		},
		Votes: voteUseCase,
	}
}

// NewInMemoryModule wires a register seeded from seed with an in-process
// outbox and no live notifier. Callers own Register and must Close it.
func NewInMemoryModule(seed entities.RegisterSnapshot, logger *slog.Logger) Module {
	register := memory.NewRegister(memory.RegisterConfig{
		Seed:   seed,
		Logger: logger,
	})
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Register: register,
		Outbox:   store,
		Clock:    store,
		IDGen:    store,
		Logger:   logger,
	})
	module.Register = register
	module.Store = store
	return module
}
