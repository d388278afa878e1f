package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
	domainerrors "istruecaller/contexts/trust-safety/call-vote-register/domain/errors"
	"istruecaller/contexts/trust-safety/call-vote-register/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"

	recordInsertBatch = 500
)

// Repository persists register checkpoints, the event outbox and consumer
// dedup reservations in Postgres.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the register tables when they do not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(
		&checkpointModel{},
		&voteRecordModel{},
		&outboxModel{},
		&eventDedupModel{},
	); err != nil {
		return r.logError("register_repo_migrate_failed", err)
	}
	return nil
}

// SaveSnapshot replaces the stored register contents with snapshot in a single
// transaction. Only the latest checkpoint's rows are kept.
func (r *Repository) SaveSnapshot(ctx context.Context, snapshot entities.RegisterSnapshot) error {
	rows := voteRecordModelsFromSnapshot(snapshot)
	checkpoint := checkpointModel{
		CheckpointID: strings.TrimSpace(snapshot.CheckpointID),
		TakenAt:      snapshot.TakenAt.UTC(),
		Revision:     int64(snapshot.Revision),
		CallCount:    len(snapshot.Calls),
		VoteCount:    len(rows),
	}
	if checkpoint.CheckpointID == "" {
		checkpoint.CheckpointID = uuid.NewString()
	}
	if checkpoint.TakenAt.IsZero() {
		checkpoint.TakenAt = time.Now().UTC()
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&voteRecordModel{}).Error; err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, recordInsertBatch).Error; err != nil {
				return err
			}
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&checkpointModel{}).Error; err != nil {
			return err
		}
		return tx.Create(&checkpoint).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return r.logError("register_repo_save_snapshot_failed", err,
			"checkpoint_id", checkpoint.CheckpointID,
			"call_count", checkpoint.CallCount,
			"vote_count", checkpoint.VoteCount,
		)
	}
	return nil
}

func (r *Repository) LoadSnapshot(ctx context.Context) (entities.RegisterSnapshot, bool, error) {
	var checkpoint checkpointModel
	err := r.db.WithContext(ctx).
		Order("taken_at DESC").
		First(&checkpoint).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.RegisterSnapshot{}, false, nil
		}
		if isUndefinedTable(err) {
			r.logger.Warn("register checkpoint tables missing, starting empty",
				"event", "register_repo_checkpoint_table_missing",
				"module", "trust-safety/call-vote-register",
				"layer", "adapter",
			)
			return entities.RegisterSnapshot{}, false, nil
		}
		return entities.RegisterSnapshot{}, false, r.logError("register_repo_load_checkpoint_failed", err)
	}

	var rows []voteRecordModel
	if err := r.db.WithContext(ctx).
		Order("call_id ASC").
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return entities.RegisterSnapshot{}, false, r.logError("register_repo_load_records_failed", err,
			"checkpoint_id", checkpoint.CheckpointID,
		)
	}
	if len(rows) != checkpoint.VoteCount {
		return entities.RegisterSnapshot{}, false, r.logError("register_repo_snapshot_count_mismatch",
			domainerrors.ErrSnapshotCorrupt,
			"checkpoint_id", checkpoint.CheckpointID,
			"expected_votes", checkpoint.VoteCount,
			"loaded_votes", len(rows),
		)
	}

	return entities.RegisterSnapshot{
		CheckpointID: checkpoint.CheckpointID,
		TakenAt:      checkpoint.TakenAt.UTC(),
		Revision:     uint64(checkpoint.Revision),
		Calls:        callRecordsFromModels(rows),
	}, true, nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("register_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("register_repo_append_outbox_insert_failed", create.Error,
			"outbox_id", row.OutboxID,
		)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("register_repo_append_outbox_load_existing_failed", err,
			"outbox_id", row.OutboxID,
		)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Order("outbox_id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("register_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("register_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ReserveEvent(
	ctx context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	row := eventDedupModel{
		EventID:     strings.TrimSpace(eventID),
		PayloadHash: strings.TrimSpace(payloadHash),
		ExpiresAt:   expiresAt.UTC(),
		ProcessedAt: time.Now().UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return false, r.logError("register_repo_reserve_event_failed", create.Error,
			"event_id", strings.TrimSpace(eventID),
		)
	}
	if create.RowsAffected > 0 {
		return false, nil
	}

	var existing eventDedupModel
	if err := r.db.WithContext(ctx).
		Select("payload_hash").
		Where("event_id = ?", row.EventID).
		First(&existing).Error; err != nil {
		return false, r.logError("register_repo_reserve_event_load_existing_failed", err,
			"event_id", strings.TrimSpace(eventID),
		)
	}
	if existing.PayloadHash != row.PayloadHash {
		return false, domainerrors.ErrConflict
	}
	return true, nil
}

func (r *Repository) ReleaseEvent(ctx context.Context, eventID string) error {
	id := strings.TrimSpace(eventID)
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", id).
		Delete(&eventDedupModel{}).Error; err != nil {
		return r.logError("register_repo_release_event_failed", err,
			"event_id", id,
		)
	}
	return nil
}

// PurgeExpiredDedup removes dedup reservations whose window has passed.
func (r *Repository) PurgeExpiredDedup(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", now.UTC()).
		Delete(&eventDedupModel{})
	if result.Error != nil {
		return 0, r.logError("register_repo_purge_dedup_failed", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "trust-safety/call-vote-register",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("register repository operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

var _ ports.SnapshotStore = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
var _ ports.EventDedupStore = (*Repository)(nil)
