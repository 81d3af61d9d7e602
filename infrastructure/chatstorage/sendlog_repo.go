package chatstorage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/govconnect/channel-gateway/domains/chat"
	"gorm.io/gorm"
)

type SendLogGormRepository struct {
	db *gorm.DB
}

func NewSendLogGormRepository(db *gorm.DB) *SendLogGormRepository {
	return &SendLogGormRepository{db: db}
}

func (r *SendLogGormRepository) Append(ctx context.Context, log *chat.SendLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	m := sendLogModel{
		ID:        log.ID,
		VillageID: log.VillageID,
		Channel:   string(log.Channel),
		Target:    log.Target,
		Status:    log.Status,
		Error:     log.Error,
		CreatedAt: log.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(&m).Error
}
