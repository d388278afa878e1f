package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	callvoteregister "istruecaller/contexts/trust-safety/call-vote-register"
	fileadapter "istruecaller/contexts/trust-safety/call-vote-register/adapters/file"
	"istruecaller/contexts/trust-safety/call-vote-register/adapters/memory"
	metricsadapter "istruecaller/contexts/trust-safety/call-vote-register/adapters/metrics"
	postgresadapter "istruecaller/contexts/trust-safety/call-vote-register/adapters/postgres"
	redisadapter "istruecaller/contexts/trust-safety/call-vote-register/adapters/redis"
	websocketadapter "istruecaller/contexts/trust-safety/call-vote-register/adapters/websocket"
	workerapp "istruecaller/contexts/trust-safety/call-vote-register/application/workers"
	"istruecaller/contexts/trust-safety/call-vote-register/ports"
	"istruecaller/internal/platform/config"
	"istruecaller/internal/platform/db"
	"istruecaller/internal/platform/httpserver"
	"istruecaller/internal/platform/messaging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const shutdownTimeout = 10 * time.Second

type bus interface {
	ports.EventPublisher
	ports.EventSubscriber
	StopConsumers() error
	Close() error
}

type dedupPurger interface {
	PurgeExpiredDedup(ctx context.Context, now time.Time) (int64, error)
}

type APIApp struct {
	cfg          config.Config
	server       *httpserver.Server
	module       callvoteregister.Module
	hub          *websocketadapter.Hub
	checkpointer *workerapp.Checkpointer
	relay        *workerapp.OutboxRelay
	ingest       *workerapp.SubmittedVoteConsumer
	purger       dedupPurger
	clock        ports.Clock
	bus          bus
	closers      []func() error
	logger       *slog.Logger
}

func BuildAPI(ctx context.Context, cfg config.Config, logger *slog.Logger) (*APIApp, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("service", cfg.ServiceName, "process", "api")
	app := &APIApp{cfg: cfg, logger: logger}

	store := memory.NewStore()
	var (
		snapshots  ports.SnapshotStore    = store
		outbox     ports.OutboxWriter     = store
		outboxRepo ports.OutboxRepository = store
		dedup      ports.EventDedupStore  = store
		clock      ports.Clock            = postgresadapter.SystemClock{}
		idGen      ports.IDGenerator      = postgresadapter.UUIDGenerator{}
	)

	switch cfg.SnapshotBackend {
	case config.SnapshotBackendFile:
		snapshots = fileadapter.NewSnapshotStore(cfg.SnapshotPath, logger)
	case config.SnapshotBackendPostgres:
		pg, err := db.Connect(ctx, cfg.PostgresDSN, db.DefaultOptions())
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, pg.Close)
		repo := postgresadapter.NewRepository(pg.DB, logger)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = app.Close()
			return nil, err
		}
		snapshots, outbox, outboxRepo, dedup = repo, repo, repo, repo
		app.purger = repo
	case config.SnapshotBackendRedis:
		client, err := redisadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, client.Close)
		snapshots = redisadapter.NewSnapshotStore(client, cfg.SnapshotRedisKey, logger)
	}

	switch cfg.MessagingDriver {
	case config.MessagingDriverKafka:
		kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.bus = kafka
	default:
		app.bus = messaging.NewInProcessBus(logger)
	}

	app.clock = clock

	seed, restored, err := workerapp.LoadSeed(ctx, snapshots, logger)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("restore register: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := metricsadapter.NewRegisterMetrics(registry)

	register := memory.NewRegister(memory.RegisterConfig{
		Shards:     cfg.RegisterShards,
		QueueDepth: cfg.RegisterQueueDepth,
		Seed:       seed,
		Logger:     logger,
	})
	app.hub = websocketadapter.NewHub(websocketadapter.HubConfig{Logger: logger})

	module := callvoteregister.NewModule(callvoteregister.Dependencies{
		Register: register,
		Outbox:   outbox,
		Notifier: app.hub,
		Metrics:  metrics,
		Clock:    clock,
		IDGen:    idGen,
		Logger:   logger,
	})
	module.Register = register
	module.Store = store
	app.module = module

	app.checkpointer = &workerapp.Checkpointer{
		Register:  register,
		Snapshots: snapshots,
		Clock:     clock,
		IDGen:     idGen,
		Metrics:   metrics,
		Logger:    logger,
	}
	if restored {
		app.checkpointer.MarkRestored()
	}

	if cfg.EnableOutboxRelay {
		app.relay = &workerapp.OutboxRelay{
			Outbox:    outboxRepo,
			Publisher: app.bus,
			Clock:     clock,
			Topic:     cfg.KafkaEventsTopic,
			BatchSize: 100,
			Logger:    logger,
		}
	}
	if cfg.EnableVoteIngest {
		app.ingest = &workerapp.SubmittedVoteConsumer{
			Subscriber:    app.bus,
			Dedup:         dedup,
			Votes:         module.Votes,
			Clock:         clock,
			Topic:         cfg.KafkaVotesTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
			DedupTTL:      24 * time.Hour,
			Logger:        logger,
		}
	}

	app.server = httpserver.New(module, app.hub, registry, logger, normalizeAddr(cfg.HTTPPort))
	return app, nil
}

// Run serves until ctx is cancelled or the HTTP server fails. On the way out
// it drains HTTP, waits for the bus consumers and background loops to stop,
// relays the remaining outbox rows and takes a final checkpoint. Nothing can
// write to the register after that checkpoint.
func (a *APIApp) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.hub.Run(runCtx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.checkpointer.Run(runCtx, a.cfg.CheckpointInterval)
	}()
	if a.relay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.runRelay(runCtx)
		}()
	}
	if a.purger != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.runDedupPurge(runCtx)
		}()
	}
	if a.ingest != nil {
		if err := a.ingest.Start(runCtx); err != nil {
			cancel()
			wg.Wait()
			return err
		}
	}

	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"snapshot_backend", a.cfg.SnapshotBackend,
		"messaging_driver", a.cfg.MessagingDriver,
		"outbox_relay", a.relay != nil,
		"vote_ingest", a.ingest != nil,
	)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.server.Start()
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	cancel()
	if a.bus != nil {
		if err := a.bus.StopConsumers(); err != nil {
			a.logger.Warn("bus consumers did not stop cleanly",
				"event", "bootstrap_consumers_stop_failed",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"error", err.Error(),
			)
		}
	}
	wg.Wait()

	if a.relay != nil {
		if _, err := a.relay.RunOnce(shutdownCtx); err != nil {
			a.logger.Warn("final outbox relay cycle failed",
				"event", "bootstrap_final_relay_failed",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"error", err.Error(),
			)
		}
	}
	if _, err := a.checkpointer.RunOnce(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("final checkpoint: %w", err))
	}

	a.logger.Info("api app stopped",
		"event", "bootstrap_api_stopped",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)
	return runErr
}

func (a *APIApp) runRelay(ctx context.Context) {
	interval := a.cfg.OutboxPollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		// Failures are logged by the relay; the next tick retries.
		_, _ = a.relay.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *APIApp) runDedupPurge(ctx context.Context) {
	interval := a.cfg.DedupPurgeInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		// Failures are logged by the repository; the next tick retries.
		purged, err := a.purger.PurgeExpiredDedup(ctx, a.clock.Now())
		if err == nil && purged > 0 {
			a.logger.Info("expired dedup reservations purged",
				"event", "bootstrap_dedup_purged",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"purged", purged,
			)
		}
	}
}

// Close releases the bus and every infrastructure client, then the register.
// It is safe to call after a failed build.
func (a *APIApp) Close() error {
	var errs []error
	if a.bus != nil {
		errs = append(errs, a.bus.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if a.module.Register != nil {
		errs = append(errs, a.module.Register.Close())
	}
	return errors.Join(errs...)
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
