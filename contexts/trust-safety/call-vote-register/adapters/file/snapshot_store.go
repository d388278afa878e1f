package fileadapter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"istruecaller/contexts/trust-safety/call-vote-register/adapters/snapshotcodec"
	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
	"istruecaller/contexts/trust-safety/call-vote-register/ports"
)

// SnapshotStore writes register checkpoints to a single CBOR file. A save goes
// to a temp file in the same directory and is renamed over the target, so a
// crash mid-write leaves the previous checkpoint intact.
type SnapshotStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

func NewSnapshotStore(path string, logger *slog.Logger) *SnapshotStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStore{path: filepath.Clean(path), logger: logger}
}

func (s *SnapshotStore) Path() string {
	return s.path
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snapshot entities.RegisterSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	blob, err := snapshotcodec.Encode(snapshot)
	if err != nil {
		return s.logError("register_file_snapshot_encode_failed", err, "checkpoint_id", snapshot.CheckpointID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return s.logError("register_file_snapshot_mkdir_failed", err, "dir", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return s.logError("register_file_snapshot_temp_failed", err, "dir", dir)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(blob); err != nil {
		cleanup()
		return s.logError("register_file_snapshot_write_failed", err, "path", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return s.logError("register_file_snapshot_sync_failed", err, "path", tmpName)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return s.logError("register_file_snapshot_close_failed", err, "path", tmpName)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return s.logError("register_file_snapshot_rename_failed", err, "path", s.path)
	}
	return nil
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context) (entities.RegisterSnapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return entities.RegisterSnapshot{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return entities.RegisterSnapshot{}, false, nil
		}
		return entities.RegisterSnapshot{}, false, s.logError("register_file_snapshot_read_failed", err, "path", s.path)
	}
	snapshot, err := snapshotcodec.Decode(blob)
	if err != nil {
		return entities.RegisterSnapshot{}, false, s.logError("register_file_snapshot_decode_failed",
			fmt.Errorf("%s: %w", s.path, err), "path", s.path)
	}
	return snapshot, true, nil
}

func (s *SnapshotStore) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "trust-safety/call-vote-register",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	s.logger.Error("register file snapshot operation failed", fields...)
	return err
}

var _ ports.SnapshotStore = (*SnapshotStore)(nil)
