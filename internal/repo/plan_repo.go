// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the ShopPlan
// model. Quota semantics (lazy month reset, limit checks) live in the service
// layer; this file only persists.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/restocklab/go-restock-backend/internal/domain"
)

// GetPlan fetches the plan row for a shop, or ErrNotFound.
func GetPlan(ctx context.Context, db *gorm.DB, shopID string) (*domain.ShopPlan, error) {
	var p domain.ShopPlan
	err := db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePlan inserts a plan row for a shop.
func CreatePlan(ctx context.Context, db *gorm.DB, shopID string, tier domain.PlanTier, limit int, resetAt time.Time) (*domain.ShopPlan, error) {
	p := &domain.ShopPlan{
		ID:                         uuid.NewString(),
		ShopID:                     shopID,
		Tier:                       tier,
		MonthlyNotifyLimit:         limit,
		NotificationsUsedThisMonth: 0,
		UsageResetAt:               &resetAt,
		CreatedAt:                  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// SavePlan persists mutated fields of an existing plan row.
func SavePlan(ctx context.Context, db *gorm.DB, p *domain.ShopPlan) error {
	return db.WithContext(ctx).Save(p).Error
}

// ResetPlanUsage zeroes the monthly counter and stamps the new window start.
func ResetPlanUsage(ctx context.Context, db *gorm.DB, shopID string, resetAt time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.ShopPlan{}).
		Where("shop_id = ?", shopID).
		Updates(map[string]any{
			"notifications_used_this_month": 0,
			"usage_reset_at":                resetAt,
		}).Error
}

// IncrementPlanUsage bumps the monthly counter with a relative update, which
// avoids read-modify-write drift between concurrent notifiers. Exact-once
// accounting is not promised for usage counters.
func IncrementPlanUsage(ctx context.Context, db *gorm.DB, shopID string) error {
	res := db.WithContext(ctx).
		Model(&domain.ShopPlan{}).
		Where("shop_id = ?", shopID).
		Update("notifications_used_this_month", gorm.Expr("notifications_used_this_month + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
