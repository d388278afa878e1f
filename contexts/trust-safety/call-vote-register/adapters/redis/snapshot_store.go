package redisadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"istruecaller/contexts/trust-safety/call-vote-register/adapters/snapshotcodec"
	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
	"istruecaller/contexts/trust-safety/call-vote-register/ports"

	"github.com/redis/go-redis/v9"
)

const DefaultSnapshotKey = "istruecaller:register:snapshot"

// SnapshotStore keeps the latest register checkpoint as a CBOR blob under one
// key, with a small metadata hash beside it for operators.
type SnapshotStore struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func NewSnapshotStore(client *redis.Client, key string, logger *slog.Logger) *SnapshotStore {
	if logger == nil {
		logger = slog.Default()
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &SnapshotStore{client: client, key: key, logger: logger}
}

func (s *SnapshotStore) metaKey() string {
	return s.key + ":meta"
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snapshot entities.RegisterSnapshot) error {
	blob, err := snapshotcodec.Encode(snapshot)
	if err != nil {
		return s.logError("register_redis_snapshot_encode_failed", err, "checkpoint_id", snapshot.CheckpointID)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key, blob, 0)
	pipe.HSet(ctx, s.metaKey(), map[string]any{
		"checkpoint_id": snapshot.CheckpointID,
		"taken_at":      snapshot.TakenAt.UTC().Format(time.RFC3339Nano),
		"revision":      strconv.FormatUint(snapshot.Revision, 10),
		"call_count":    len(snapshot.Calls),
		"vote_count":    snapshot.VoteCount(),
		"bytes":         len(blob),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return s.logError("register_redis_snapshot_save_failed", err,
			"checkpoint_id", snapshot.CheckpointID,
			"key", s.key,
		)
	}
	return nil
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context) (entities.RegisterSnapshot, bool, error) {
	blob, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return entities.RegisterSnapshot{}, false, nil
		}
		return entities.RegisterSnapshot{}, false, s.logError("register_redis_snapshot_load_failed", err, "key", s.key)
	}
	snapshot, err := snapshotcodec.Decode(blob)
	if err != nil {
		return entities.RegisterSnapshot{}, false, s.logError("register_redis_snapshot_decode_failed", err, "key", s.key)
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
	s.logger.Error("register redis operation failed", fields...)
	return err
}

var _ ports.SnapshotStore = (*SnapshotStore)(nil)
