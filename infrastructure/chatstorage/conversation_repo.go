package chatstorage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/govconnect/channel-gateway/domains/chat"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationGormRepository struct {
	db *gorm.DB
}

func NewConversationGormRepository(db *gorm.DB) *ConversationGormRepository {
	return &ConversationGormRepository{db: db}
}

func (r *ConversationGormRepository) keyScope(ctx context.Context, key chat.ConversationKey) *gorm.DB {
	return r.db.WithContext(ctx).Model(&conversationModel{}).
		Where("village_id = ? AND channel = ? AND channel_identifier = ?",
			key.VillageID, string(key.Channel), key.ChannelIdentifier)
}

func (r *ConversationGormRepository) Upsert(ctx context.Context, conv *chat.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	m := conversationModel{
		ID:                conv.ID,
		VillageID:         conv.VillageID,
		Channel:           string(conv.Channel),
		ChannelIdentifier: conv.ChannelIdentifier,
		WaUserID:          conv.WaUserID,
		UserName:          conv.UserName,
		UserPhone:         conv.UserPhone,
		LastMessage:       conv.LastMessage,
		LastMessageAt:     conv.LastMessageAt,
		UnreadCount:       conv.UnreadCount,
		IsTakeover:        conv.IsTakeover,
		AIStatus:          string(conv.AIStatus),
		AIErrorMessage:    conv.AIErrorMessage,
		PendingMessageID:  conv.PendingMessageID,
		UpdatedAt:         time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "village_id"}, {Name: "channel"}, {Name: "channel_identifier"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"wa_user_id":      m.WaUserID,
			"last_message":    m.LastMessage,
			"last_message_at": m.LastMessageAt,
			"updated_at":      m.UpdatedAt,
		}),
	}).Create(&m).Error
}

func (r *ConversationGormRepository) Get(ctx context.Context, key chat.ConversationKey) (*chat.Conversation, error) {
	var m conversationModel
	err := r.keyScope(ctx, key).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	conv := m.toDomain()
	return &conv, nil
}

func (r *ConversationGormRepository) GetByID(ctx context.Context, villageID, id string) (*chat.Conversation, error) {
	var m conversationModel
	err := r.db.WithContext(ctx).
		Where("village_id = ? AND id = ?", villageID, id).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	conv := m.toDomain()
	return &conv, nil
}

func (r *ConversationGormRepository) List(ctx context.Context, villageID string, takeoverOnly *bool, limit, offset int) ([]chat.Conversation, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := r.db.WithContext(ctx).Model(&conversationModel{}).Where("village_id = ?", villageID)
	if takeoverOnly != nil {
		q = q.Where("is_takeover = ?", *takeoverOnly)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []conversationModel
	if err := q.Order("last_message_at desc").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return nil, 0, err
	}

	out := make([]chat.Conversation, len(models))
	for i := range models {
		out[i] = models[i].toDomain()
	}
	return out, total, nil
}

// TouchInbound ensures the row exists, bumps last_message and unread_count.
func (r *ConversationGormRepository) TouchInbound(ctx context.Context, key chat.ConversationKey, lastMessage string, at time.Time) error {
	m := conversationModel{
		ID:                uuid.NewString(),
		VillageID:         key.VillageID,
		Channel:           string(key.Channel),
		ChannelIdentifier: key.ChannelIdentifier,
		WaUserID:          key.ChannelIdentifier,
		LastMessage:       lastMessage,
		LastMessageAt:     at,
		UnreadCount:       1,
		UpdatedAt:         time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "village_id"}, {Name: "channel"}, {Name: "channel_identifier"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_message":    lastMessage,
			"last_message_at": at,
			"unread_count":    gorm.Expr("unread_count + 1"),
			"updated_at":      time.Now().UTC(),
		}),
	}).Create(&m).Error
}

// TouchOutbound ensures the row exists and resets unread_count.
func (r *ConversationGormRepository) TouchOutbound(ctx context.Context, key chat.ConversationKey, lastMessage string, at time.Time) error {
	m := conversationModel{
		ID:                uuid.NewString(),
		VillageID:         key.VillageID,
		Channel:           string(key.Channel),
		ChannelIdentifier: key.ChannelIdentifier,
		WaUserID:          key.ChannelIdentifier,
		LastMessage:       lastMessage,
		LastMessageAt:     at,
		UnreadCount:       0,
		UpdatedAt:         time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "village_id"}, {Name: "channel"}, {Name: "channel_identifier"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_message":    lastMessage,
			"last_message_at": at,
			"unread_count":    0,
			"updated_at":      time.Now().UTC(),
		}),
	}).Create(&m).Error
}

func (r *ConversationGormRepository) SetAIStatus(ctx context.Context, key chat.ConversationKey, status chat.AIStatus, errMsg string) error {
	return r.keyScope(ctx, key).Updates(map[string]interface{}{
		"ai_status":        string(status),
		"ai_error_message": errMsg,
		"updated_at":       time.Now().UTC(),
	}).Error
}

func (r *ConversationGormRepository) ClearAIStatus(ctx context.Context, key chat.ConversationKey) error {
	return r.keyScope(ctx, key).Updates(map[string]interface{}{
		"ai_status":        "",
		"ai_error_message": "",
		"updated_at":       time.Now().UTC(),
	}).Error
}

func (r *ConversationGormRepository) SetTakeover(ctx context.Context, key chat.ConversationKey, takeover bool) error {
	return r.keyScope(ctx, key).Updates(map[string]interface{}{
		"is_takeover": takeover,
		"updated_at":  time.Now().UTC(),
	}).Error
}

func (r *ConversationGormRepository) SetUserProfile(ctx context.Context, key chat.ConversationKey, name, phone string) error {
	updates := map[string]interface{}{"updated_at": time.Now().UTC()}
	if name != "" {
		updates["user_name"] = name
	}
	if phone != "" {
		updates["user_phone"] = phone
	}
	return r.keyScope(ctx, key).Updates(updates).Error
}

func (r *ConversationGormRepository) MarkRead(ctx context.Context, key chat.ConversationKey) error {
	return r.keyScope(ctx, key).Updates(map[string]interface{}{
		"unread_count": 0,
		"updated_at":   time.Now().UTC(),
	}).Error
}

func (r *ConversationGormRepository) Delete(ctx context.Context, key chat.ConversationKey) error {
	return r.db.WithContext(ctx).
		Where("village_id = ? AND channel = ? AND channel_identifier = ?",
			key.VillageID, string(key.Channel), key.ChannelIdentifier).
		Delete(&conversationModel{}).Error
}
