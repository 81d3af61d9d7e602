package chatstorage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/govconnect/channel-gateway/domains/chat"
	"gorm.io/gorm"
)

type TakeoverGormRepository struct {
	db *gorm.DB
}

func NewTakeoverGormRepository(db *gorm.DB) *TakeoverGormRepository {
	return &TakeoverGormRepository{db: db}
}

func (r *TakeoverGormRepository) Active(ctx context.Context, key chat.ConversationKey) (*chat.TakeoverSession, error) {
	var m takeoverModel
	err := r.db.WithContext(ctx).
		Where("village_id = ? AND channel = ? AND channel_identifier = ? AND ended_at IS NULL",
			key.VillageID, string(key.Channel), key.ChannelIdentifier).
		Order("started_at desc").
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	t := m.toDomain()
	return &t, nil
}

func (r *TakeoverGormRepository) Start(ctx context.Context, session *chat.TakeoverSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}
	m := takeoverModel{
		ID:                session.ID,
		VillageID:         session.VillageID,
		Channel:           string(session.Channel),
		ChannelIdentifier: session.ChannelIdentifier,
		AdminID:           session.AdminID,
		AdminName:         session.AdminName,
		Reason:            session.Reason,
		StartedAt:         session.StartedAt,
		EndedAt:           session.EndedAt,
	}
	return r.db.WithContext(ctx).Create(&m).Error
}

// End closes every active takeover row for the conversation and returns how
// many were closed.
func (r *TakeoverGormRepository) End(ctx context.Context, key chat.ConversationKey, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&takeoverModel{}).
		Where("village_id = ? AND channel = ? AND channel_identifier = ? AND ended_at IS NULL",
			key.VillageID, string(key.Channel), key.ChannelIdentifier).
		Update("ended_at", at)
	return res.RowsAffected, res.Error
}

func (r *TakeoverGormRepository) DeleteByConversation(ctx context.Context, key chat.ConversationKey) error {
	return r.db.WithContext(ctx).
		Where("village_id = ? AND channel = ? AND channel_identifier = ?",
			key.VillageID, string(key.Channel), key.ChannelIdentifier).
		Delete(&takeoverModel{}).Error
}
