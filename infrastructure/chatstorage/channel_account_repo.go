package chatstorage

import (
	"context"
	"time"

	"github.com/govconnect/channel-gateway/domains/session"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChannelAccountGormRepository struct {
	db *gorm.DB
}

func NewChannelAccountGormRepository(db *gorm.DB) *ChannelAccountGormRepository {
	return &ChannelAccountGormRepository{db: db}
}

func (r *ChannelAccountGormRepository) Upsert(ctx context.Context, a *session.ChannelAccount) error {
	now := time.Now().UTC()
	m := channelAccountModel{
		VillageID:      a.VillageID,
		WaNumber:       a.WaNumber,
		WaToken:        a.WaToken,
		WebhookURL:     a.WebhookURL,
		EnabledWa:      a.EnabledWa,
		EnabledWebchat: a.EnabledWebchat,
		UpdatedAt:      now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "village_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"wa_number":       m.WaNumber,
			"wa_token":        m.WaToken,
			"webhook_url":     m.WebhookURL,
			"enabled_wa":      m.EnabledWa,
			"enabled_webchat": m.EnabledWebchat,
			"updated_at":      now,
		}),
	}).Create(&m).Error
}

func (r *ChannelAccountGormRepository) Get(ctx context.Context, villageID string) (*session.ChannelAccount, error) {
	var m channelAccountModel
	err := r.db.WithContext(ctx).Where("village_id = ?", villageID).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	a := m.toDomain()
	return &a, nil
}

func (r *ChannelAccountGormRepository) List(ctx context.Context) ([]session.ChannelAccount, error) {
	var models []channelAccountModel
	if err := r.db.WithContext(ctx).Order("village_id asc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]session.ChannelAccount, len(models))
	for i := range models {
		out[i] = models[i].toDomain()
	}
	return out, nil
}

func (r *ChannelAccountGormRepository) SetEnabled(ctx context.Context, villageID string, wa, webchat bool) error {
	return r.db.WithContext(ctx).Model(&channelAccountModel{}).
		Where("village_id = ?", villageID).
		Updates(map[string]interface{}{
			"enabled_wa":      wa,
			"enabled_webchat": webchat,
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *ChannelAccountGormRepository) UpdateNumber(ctx context.Context, villageID, waNumber string) error {
	return r.db.WithContext(ctx).Model(&channelAccountModel{}).
		Where("village_id = ?", villageID).
		Updates(map[string]interface{}{
			"wa_number":  waNumber,
			"updated_at": time.Now().UTC(),
		}).Error
}
