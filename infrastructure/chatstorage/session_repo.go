package chatstorage

import (
	"context"
	"time"

	"github.com/govconnect/channel-gateway/domains/session"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SessionGormRepository struct {
	db *gorm.DB
}

func NewSessionGormRepository(db *gorm.DB) *SessionGormRepository {
	return &SessionGormRepository{db: db}
}

func (r *SessionGormRepository) Upsert(ctx context.Context, s *session.Session) error {
	now := time.Now().UTC()
	var instanceName *string
	if s.InstanceName != "" {
		instanceName = &s.InstanceName
	}
	m := sessionModel{
		VillageID:        s.VillageID,
		InstanceName:     instanceName,
		AdminID:          s.AdminID,
		ProviderToken:    s.ProviderToken,
		Status:           s.Status,
		WaNumber:         s.WaNumber,
		SupportUserID:    s.SupportUserID,
		SupportAPIKey:    s.SupportAPIKey,
		SupportSessionID: s.SupportSessionID,
		LastConnectedAt:  s.LastConnectedAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "village_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"instance_name":      m.InstanceName,
			"admin_id":           m.AdminID,
			"provider_token":     m.ProviderToken,
			"status":             m.Status,
			"wa_number":          m.WaNumber,
			"support_user_id":    m.SupportUserID,
			"support_api_key":    m.SupportAPIKey,
			"support_session_id": m.SupportSessionID,
			"updated_at":         now,
		}),
	}).Create(&m).Error
}

func (r *SessionGormRepository) Get(ctx context.Context, villageID string) (*session.Session, error) {
	var m sessionModel
	err := r.db.WithContext(ctx).Where("village_id = ?", villageID).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	s := m.toDomain()
	return &s, nil
}

func (r *SessionGormRepository) GetByInstanceName(ctx context.Context, instanceName string) (*session.Session, error) {
	if instanceName == "" {
		return nil, nil
	}
	var m sessionModel
	err := r.db.WithContext(ctx).Where("instance_name = ?", instanceName).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	s := m.toDomain()
	return &s, nil
}

// FindConnectedByNumber is the cross-tenant duplicate-number probe. It is
// one of the two intentional cross-tenant reads in the whole store.
func (r *SessionGormRepository) FindConnectedByNumber(ctx context.Context, waNumber, excludeVillageID string) (*session.Session, error) {
	if waNumber == "" {
		return nil, nil
	}
	var m sessionModel
	err := r.db.WithContext(ctx).
		Where("wa_number = ? AND status = ? AND village_id <> ?",
			waNumber, session.StatusConnected, excludeVillageID).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	s := m.toDomain()
	return &s, nil
}

func (r *SessionGormRepository) UpdateStatus(ctx context.Context, villageID, status string, at time.Time) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if status == session.StatusConnected {
		updates["last_connected_at"] = at
	}
	return r.db.WithContext(ctx).Model(&sessionModel{}).
		Where("village_id = ?", villageID).
		Updates(updates).Error
}

func (r *SessionGormRepository) UpdateNumber(ctx context.Context, villageID, waNumber string) error {
	return r.db.WithContext(ctx).Model(&sessionModel{}).
		Where("village_id = ?", villageID).
		Updates(map[string]interface{}{
			"wa_number":  waNumber,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *SessionGormRepository) Delete(ctx context.Context, villageID string) error {
	return r.db.WithContext(ctx).
		Where("village_id = ?", villageID).
		Delete(&sessionModel{}).Error
}
