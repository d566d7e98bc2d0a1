// Package services – SettingsService
//
// Per-shop behavior toggles, created lazily with defaults on first read.

package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/restocklab/go-restock-backend/internal/domain"
	"github.com/restocklab/go-restock-backend/internal/repo"
)

// SettingsService reads and mutates per-shop settings.
type SettingsService struct {
	DB *gorm.DB
}

// GetOrCreate returns the shop's settings, creating the default row
// (auto-notify off) on first access.
func (s *SettingsService) GetOrCreate(ctx context.Context, shopID string) (*domain.ShopSettings, error) {
	settings, err := repo.GetSettings(ctx, s.DB, shopID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repo.CreateSettings(ctx, s.DB, shopID, false)
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// SetAutoNotify flips the restock auto-notification toggle. The settings row
// is created first when missing so the update always lands.
func (s *SettingsService) SetAutoNotify(ctx context.Context, shopID string, enabled bool) (*domain.ShopSettings, error) {
	settings, err := s.GetOrCreate(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if settings.AutoNotifyOnRestock == enabled {
		return settings, nil
	}
	if err := repo.UpdateSettingsAutoNotify(ctx, s.DB, shopID, enabled); err != nil {
		return nil, err
	}
	settings.AutoNotifyOnRestock = enabled
	return settings, nil
}
