// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the
// WebhookDelivery model used to implement safe-retry semantics for webhook
// deliveries and widget subscribe POSTs.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/restocklab/go-restock-backend/internal/domain"
)

// GetWebhookDelivery returns a non-expired record or ErrNotFound.
func GetWebhookDelivery(ctx context.Context, db *gorm.DB, shopDomain, key string, now time.Time) (*domain.WebhookDelivery, error) {
	var rec domain.WebhookDelivery
	err := db.WithContext(ctx).
		Where("shop_domain = ? AND key = ? AND expires_at > ?", shopDomain, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateWebhookDelivery inserts a record and returns ErrDuplicate on unique
// violation (a concurrent replay won the insert race).
func CreateWebhookDelivery(ctx context.Context, db *gorm.DB, shopDomain, key, demandRequestID string, status int, ttl time.Duration) (*domain.WebhookDelivery, error) {
	now := time.Now().UTC()
	rec := &domain.WebhookDelivery{
		ID:              uuid.NewString(),
		ShopDomain:      shopDomain,
		Key:             key,
		DemandRequestID: demandRequestID,
		Status:          status,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}
