package infrastructure

import (
	"context"

	"github.com/govconnect/channel-gateway/core/settings/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingsModel struct {
	ID               string `gorm:"primaryKey;column:id"`
	AutoReadMessages bool   `gorm:"column:auto_read_messages"`
	TypingIndicator  bool   `gorm:"column:typing_indicator"`
}

func (SettingsModel) TableName() string {
	return "settings"
}

const defaultRowID = "default"

type SettingsGormRepository struct {
	db *gorm.DB
}

func NewSettingsGormRepository(db *gorm.DB) *SettingsGormRepository {
	return &SettingsGormRepository{db: db}
}

func (r *SettingsGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&SettingsModel{})
}

func (r *SettingsGormRepository) Get(ctx context.Context) (domain.Settings, error) {
	var m SettingsModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", defaultRowID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Settings{AutoReadMessages: true, TypingIndicator: true}, nil
		}
		return domain.Settings{}, err
	}
	return domain.Settings{
		AutoReadMessages: m.AutoReadMessages,
		TypingIndicator:  m.TypingIndicator,
	}, nil
}

func (r *SettingsGormRepository) Set(ctx context.Context, s domain.Settings) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"auto_read_messages": s.AutoReadMessages,
			"typing_indicator":   s.TypingIndicator,
		}),
	}).Create(&SettingsModel{
		ID:               defaultRowID,
		AutoReadMessages: s.AutoReadMessages,
		TypingIndicator:  s.TypingIndicator,
	}).Error
}
