package application

import (
	"context"
	"sync/atomic"

	"github.com/govconnect/channel-gateway/core/settings/domain"
	"github.com/govconnect/channel-gateway/core/settings/infrastructure"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SettingsService caches the settings row. Most call sites read the cached
// copy; Reload re-reads the row so markAsRead observes dashboard toggles
// without a restart.
type SettingsService struct {
	repo   domain.ISettingsRepository
	cached atomic.Value // domain.Settings
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	s := &SettingsService{
		repo: infrastructure.NewSettingsGormRepository(db),
	}
	s.cached.Store(domain.Settings{AutoReadMessages: true, TypingIndicator: true})
	return s
}

func (s *SettingsService) InitSchema(ctx context.Context) error {
	if err := s.repo.InitSchema(ctx); err != nil {
		return err
	}
	_, err := s.Reload(ctx)
	return err
}

// Current returns the cached settings without touching the database.
func (s *SettingsService) Current() domain.Settings {
	return s.cached.Load().(domain.Settings)
}

// Reload re-reads the settings row and atomically replaces the cache.
func (s *SettingsService) Reload(ctx context.Context) (domain.Settings, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		logrus.WithError(err).Warn("[SETTINGS] Reload failed, keeping cached values")
		return s.Current(), err
	}
	s.cached.Store(settings)
	return settings, nil
}

func (s *SettingsService) Update(ctx context.Context, settings domain.Settings) error {
	if err := s.repo.Set(ctx, settings); err != nil {
		return err
	}
	s.cached.Store(settings)
	return nil
}
