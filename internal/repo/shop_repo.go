// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Shop and
// ShopSettings rows.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a row is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/restocklab/go-restock-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetShopByDomain fetches a shop by its normalized domain, or ErrNotFound.
func GetShopByDomain(ctx context.Context, db *gorm.DB, domainName string) (*domain.Shop, error) {
	var s domain.Shop
	err := db.WithContext(ctx).
		Where("domain = ?", domainName).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetShop fetches a shop by primary key, or ErrNotFound.
func GetShop(ctx context.Context, db *gorm.DB, id string) (*domain.Shop, error) {
	var s domain.Shop
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateShop inserts a new shop row with a UUID primary key.
func CreateShop(ctx context.Context, db *gorm.DB, domainName, accessToken string, installedAt time.Time) (*domain.Shop, error) {
	s := &domain.Shop{
		ID:          uuid.NewString(),
		Domain:      domainName,
		AccessToken: accessToken,
		IsActive:    true,
		InstalledAt: &installedAt,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// SaveShop persists mutated fields of an existing shop row.
func SaveShop(ctx context.Context, db *gorm.DB, s *domain.Shop) error {
	return db.WithContext(ctx).Save(s).Error
}

// DeactivateShopByDomain marks a shop inactive (soft delete on uninstall).
// Returns ErrNotFound if no row matched.
func DeactivateShopByDomain(ctx context.Context, db *gorm.DB, domainName string) error {
	res := db.WithContext(ctx).
		Model(&domain.Shop{}).
		Where("domain = ?", domainName).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetSettings fetches the settings row for a shop, or ErrNotFound.
func GetSettings(ctx context.Context, db *gorm.DB, shopID string) (*domain.ShopSettings, error) {
	var s domain.ShopSettings
	err := db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSettings inserts a settings row with defaults for the given shop.
func CreateSettings(ctx context.Context, db *gorm.DB, shopID string, autoNotify bool) (*domain.ShopSettings, error) {
	s := &domain.ShopSettings{
		ID:                  uuid.NewString(),
		ShopID:              shopID,
		AutoNotifyOnRestock: autoNotify,
		CreatedAt:           time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateSettingsAutoNotify flips the auto-notify toggle for a shop.
// Returns ErrNotFound if the settings row does not exist.
func UpdateSettingsAutoNotify(ctx context.Context, db *gorm.DB, shopID string, autoNotify bool) error {
	res := db.WithContext(ctx).
		Model(&domain.ShopSettings{}).
		Where("shop_id = ?", shopID).
		Update("auto_notify_on_restock", autoNotify)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
