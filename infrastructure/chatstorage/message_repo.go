package chatstorage

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/govconnect/channel-gateway/domains/chat"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// fifoCheckEvery amortizes the truncation sweep: the count query runs only
// every Nth insert per conversation, so a conversation can briefly hold up
// to MaxMessagesPerConversation+fifoCheckEvery-1 rows.
const fifoCheckEvery = 5

type MessageGormRepository struct {
	db *gorm.DB

	insertsMu sync.Mutex
	inserts   map[string]int // conversation key -> inserts since last sweep
}

func NewMessageGormRepository(db *gorm.DB) *MessageGormRepository {
	return &MessageGormRepository{
		db:      db,
		inserts: make(map[string]int),
	}
}

// Insert stores a message, reporting Duplicate when the message_id already
// exists. Duplicates are a result variant, not an error.
func (r *MessageGormRepository) Insert(ctx context.Context, msg *chat.Message) (chat.InsertResult, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	m := messageModel{
		ID:                msg.ID,
		VillageID:         msg.VillageID,
		WaUserID:          msg.WaUserID,
		Channel:           string(msg.Channel),
		ChannelIdentifier: msg.ChannelIdentifier,
		MessageID:         msg.MessageID,
		MessageText:       msg.MessageText,
		Direction:         string(msg.Direction),
		Source:            string(msg.Source),
		HasMedia:          msg.HasMedia,
		MediaType:         msg.MediaType,
		MediaURL:          msg.MediaURL,
		MediaPublicURL:    msg.MediaPublicURL,
		Timestamp:         msg.Timestamp,
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}},
		DoNothing: true,
	}).Create(&m)
	if res.Error != nil {
		return chat.Duplicate, res.Error
	}
	if res.RowsAffected == 0 {
		return chat.Duplicate, nil
	}

	key := chat.ConversationKey{
		VillageID:         msg.VillageID,
		Channel:           msg.Channel,
		ChannelIdentifier: msg.ChannelIdentifier,
	}
	if r.shouldSweep(key) {
		if err := r.truncateFIFO(ctx, key); err != nil {
			logrus.WithError(err).Warnf("[STORE] FIFO truncation failed for %s", key)
		}
	}

	return chat.Inserted, nil
}

func (r *MessageGormRepository) shouldSweep(key chat.ConversationKey) bool {
	r.insertsMu.Lock()
	defer r.insertsMu.Unlock()
	k := key.String()
	r.inserts[k]++
	if r.inserts[k] >= fifoCheckEvery {
		r.inserts[k] = 0
		return true
	}
	return false
}

// truncateFIFO deletes the oldest rows above the per-conversation bound in a
// single statement scoped to the conversation key.
func (r *MessageGormRepository) truncateFIFO(ctx context.Context, key chat.ConversationKey) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("village_id = ? AND channel = ? AND channel_identifier = ?",
			key.VillageID, string(key.Channel), key.ChannelIdentifier).
		Count(&count).Error; err != nil {
		return err
	}

	excess := count - chat.MaxMessagesPerConversation
	if excess <= 0 {
		return nil
	}

	sub := r.db.Model(&messageModel{}).
		Select("id").
		Where("village_id = ? AND channel = ? AND channel_identifier = ?",
			key.VillageID, string(key.Channel), key.ChannelIdentifier).
		Order("timestamp asc").
		Limit(int(excess))

	return r.db.WithContext(ctx).
		Where("id IN (?)", sub).
		Delete(&messageModel{}).Error
}

// UpdateMedia fills in the media URLs once an asynchronous fetch finishes.
func (r *MessageGormRepository) UpdateMedia(ctx context.Context, messageID, mediaType, mediaURL, mediaPublicURL string) error {
	return r.db.WithContext(ctx).Model(&messageModel{}).
		Where("message_id = ?", messageID).
		Updates(map[string]interface{}{
			"media_type":       mediaType,
			"media_url":        mediaURL,
			"media_public_url": mediaPublicURL,
		}).Error
}

func (r *MessageGormRepository) Delete(ctx context.Context, messageID string) error {
	return r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Delete(&messageModel{}).Error
}

func (r *MessageGormRepository) Exists(ctx context.Context, messageID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("message_id = ?", messageID).
		Count(&count).Error
	return count > 0, err
}

func (r *MessageGormRepository) ListByConversation(ctx context.Context, key chat.ConversationKey, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []messageModel
	err := r.db.WithContext(ctx).
		Where("village_id = ? AND channel = ? AND channel_identifier = ?",
			key.VillageID, string(key.Channel), key.ChannelIdentifier).
		Order("timestamp desc").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	// Callers expect oldest first.
	out := make([]chat.Message, len(models))
	for i := range models {
		out[len(models)-1-i] = models[i].toDomain()
	}
	return out, nil
}

func (r *MessageGormRepository) DeleteByConversation(ctx context.Context, key chat.ConversationKey) error {
	return r.db.WithContext(ctx).
		Where("village_id = ? AND channel = ? AND channel_identifier = ?",
			key.VillageID, string(key.Channel), key.ChannelIdentifier).
		Delete(&messageModel{}).Error
}

func (r *MessageGormRepository) CountByConversation(ctx context.Context, key chat.ConversationKey) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("village_id = ? AND channel = ? AND channel_identifier = ?",
			key.VillageID, string(key.Channel), key.ChannelIdentifier).
		Count(&count).Error
	return count, err
}
