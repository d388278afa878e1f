package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	application "istruecaller/contexts/trust-safety/call-vote-register/application"
	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
	"istruecaller/contexts/trust-safety/call-vote-register/ports"
)

const (
	CheckpointSaved     = "saved"
	CheckpointUnchanged = "unchanged"
	CheckpointFailed    = "failed"
)

// Checkpointer copies consistent register cuts into a SnapshotStore. A cut is
// only written when the register revision moved since the last save.
type Checkpointer struct {
	Register  ports.Checkpointable
	Snapshots ports.SnapshotStore
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Metrics   ports.RegisterMetrics
	Logger    *slog.Logger

	mu        sync.Mutex
	lastSaved uint64
	saved     bool
}

// LoadSeed reads the most recent snapshot, if any. It runs before the register
// exists so the register can be built from it.
func LoadSeed(ctx context.Context, store ports.SnapshotStore, logger *slog.Logger) (entities.RegisterSnapshot, bool, error) {
	logger = application.ResolveLogger(logger)
	if store == nil {
		return entities.RegisterSnapshot{}, false, nil
	}
	snapshot, found, err := store.LoadSnapshot(ctx)
	if err != nil {
		logger.Error("register snapshot load failed",
			"event", "register_snapshot_load_failed",
			"module", "trust-safety/call-vote-register",
			"layer", "worker",
			"error", err.Error(),
		)
		return entities.RegisterSnapshot{}, false, err
	}
	if !found {
		logger.Info("no register snapshot found, starting empty",
			"event", "register_snapshot_absent",
			"module", "trust-safety/call-vote-register",
			"layer", "worker",
		)
		return entities.RegisterSnapshot{}, false, nil
	}
	logger.Info("register snapshot loaded",
		"event", "register_snapshot_loaded",
		"module", "trust-safety/call-vote-register",
		"layer", "worker",
		"checkpoint_id", snapshot.CheckpointID,
		"taken_at", snapshot.TakenAt,
		"call_count", len(snapshot.Calls),
		"vote_count", snapshot.VoteCount(),
	)
	return snapshot, true, nil
}

// MarkRestored records that the register currently matches the store, so the
// first cycle after a restore does not rewrite the same state.
func (c *Checkpointer) MarkRestored() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSaved = c.Register.Revision()
	c.saved = true
}

// RunOnce writes a checkpoint if the register changed. It reports whether a
// snapshot was written.
func (c *Checkpointer) RunOnce(ctx context.Context) (bool, error) {
	logger := application.ResolveLogger(c.Logger)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.saved && c.Register.Revision() == c.lastSaved {
		c.finished(CheckpointUnchanged)
		return false, nil
	}

	started := time.Now()
	snapshot, err := c.Register.Checkpoint(ctx)
	if err != nil {
		c.finished(CheckpointFailed)
		logger.Error("register checkpoint cut failed",
			"event", "register_checkpoint_cut_failed",
			"module", "trust-safety/call-vote-register",
			"layer", "worker",
			"error", err.Error(),
		)
		return false, err
	}
	revision := snapshot.Revision
	snapshot.TakenAt = c.now()
	if c.IDGen != nil {
		if id, idErr := c.IDGen.NewID(ctx); idErr == nil {
			snapshot.CheckpointID = id
		}
	}
	if snapshot.CheckpointID == "" {
		snapshot.CheckpointID = fmt.Sprintf("rev-%d", revision)
	}

	if err := c.Snapshots.SaveSnapshot(ctx, snapshot); err != nil {
		c.finished(CheckpointFailed)
		logger.Error("register checkpoint save failed",
			"event", "register_checkpoint_save_failed",
			"module", "trust-safety/call-vote-register",
			"layer", "worker",
			"checkpoint_id", snapshot.CheckpointID,
			"error", err.Error(),
		)
		return false, err
	}

	c.lastSaved = revision
	c.saved = true
	c.finished(CheckpointSaved)
	if c.Metrics != nil {
		c.Metrics.ObserveCommand("checkpoint", time.Since(started))
	}
	logger.Info("register checkpoint saved",
		"event", "register_checkpoint_saved",
		"module", "trust-safety/call-vote-register",
		"layer", "worker",
		"checkpoint_id", snapshot.CheckpointID,
		"call_count", len(snapshot.Calls),
		"vote_count", snapshot.VoteCount(),
		"revision", revision,
	)
	return true, nil
}

// Run checkpoints every interval until ctx is done. The final checkpoint on
// shutdown is left to the caller, which must take it after writers stopped.
func (c *Checkpointer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = c.RunOnce(ctx)
		}
	}
}

func (c *Checkpointer) now() time.Time {
	if c.Clock != nil {
		return c.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *Checkpointer) finished(outcome string) {
	if c.Metrics != nil {
		c.Metrics.CheckpointFinished(outcome)
	}
}
