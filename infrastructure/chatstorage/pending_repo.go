package chatstorage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/govconnect/channel-gateway/domains/chat"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PendingGormRepository struct {
	db *gorm.DB
}

func NewPendingGormRepository(db *gorm.DB) *PendingGormRepository {
	return &PendingGormRepository{db: db}
}

func (r *PendingGormRepository) Create(ctx context.Context, pm *chat.PendingMessage) error {
	if pm.ID == "" {
		pm.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if pm.Status == "" {
		pm.Status = chat.PendingStatusPending
	}
	m := pendingModel{
		ID:                pm.ID,
		VillageID:         pm.VillageID,
		WaUserID:          pm.WaUserID,
		Channel:           string(pm.Channel),
		ChannelIdentifier: pm.ChannelIdentifier,
		MessageID:         pm.MessageID,
		MessageText:       pm.MessageText,
		Status:            string(pm.Status),
		RetryCount:        pm.RetryCount,
		ErrorMsg:          pm.ErrorMsg,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	// Re-ingest of a known message_id keeps the original row.
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}},
		DoNothing: true,
	}).Create(&m).Error
}

func (r *PendingGormRepository) Get(ctx context.Context, messageID string) (*chat.PendingMessage, error) {
	var m pendingModel
	err := r.db.WithContext(ctx).Where("message_id = ?", messageID).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	pm := m.toDomain()
	return &pm, nil
}

func (r *PendingGormRepository) Latest(ctx context.Context, key chat.ConversationKey) (*chat.PendingMessage, error) {
	var m pendingModel
	err := r.db.WithContext(ctx).
		Where("village_id = ? AND channel = ? AND channel_identifier = ?",
			key.VillageID, string(key.Channel), key.ChannelIdentifier).
		Order("created_at desc").
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	pm := m.toDomain()
	return &pm, nil
}

func (r *PendingGormRepository) MarkProcessing(ctx context.Context, messageID string) error {
	return r.db.WithContext(ctx).Model(&pendingModel{}).
		Where("message_id = ?", messageID).
		Updates(map[string]interface{}{
			"status":     string(chat.PendingStatusProcessing),
			"updated_at": time.Now().UTC(),
		}).Error
}

// MarkCompleted deletes the rows: a finished turn leaves no queue residue.
func (r *PendingGormRepository) MarkCompleted(ctx context.Context, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Delete(&pendingModel{}).Error
}

// MarkFailed increments retry_count; the row returns to pending until the
// cap is hit, then sticks as failed.
func (r *PendingGormRepository) MarkFailed(ctx context.Context, messageID, errMsg string) error {
	var m pendingModel
	err := r.db.WithContext(ctx).Where("message_id = ?", messageID).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}

	retries := m.RetryCount + 1
	status := chat.PendingStatusPending
	if retries >= chat.MaxPendingRetries {
		retries = chat.MaxPendingRetries
		status = chat.PendingStatusFailed
	}

	return r.db.WithContext(ctx).Model(&pendingModel{}).
		Where("message_id = ?", messageID).
		Updates(map[string]interface{}{
			"status":      string(status),
			"retry_count": retries,
			"error_msg":   errMsg,
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (r *PendingGormRepository) List(ctx context.Context, villageID string, limit int) ([]chat.PendingMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var models []pendingModel
	q := r.db.WithContext(ctx).Model(&pendingModel{})
	if villageID != "" {
		q = q.Where("village_id = ?", villageID)
	}
	if err := q.Order("created_at desc").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]chat.PendingMessage, len(models))
	for i := range models {
		out[i] = models[i].toDomain()
	}
	return out, nil
}

// SweepOlderThan removes terminal rows older than the cutoff. The janitor
// calls this every hour with now-24h.
func (r *PendingGormRepository) SweepOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]string{string(chat.PendingStatusCompleted), string(chat.PendingStatusFailed)}, cutoff).
		Delete(&pendingModel{})
	return res.RowsAffected, res.Error
}
