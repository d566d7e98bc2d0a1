// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// DemandRequest model, including the conditional status claim that guards the
// notify commit against concurrent callers.
//
// Error semantics:
//   - When a request is not found, functions return gorm.ErrRecordNotFound
//     (aliased as ErrNotFound).
//   - ClaimNotified reports, via its boolean result, whether this caller won
//     the PENDING→NOTIFIED transition; losing is not an error at this layer.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/restocklab/go-restock-backend/internal/domain"
)

// CreateDemandRequest inserts a PENDING wait-list row with a UUID primary key
// and UTC timestamp.
func CreateDemandRequest(ctx context.Context, db *gorm.DB, variantID, contact string, channel domain.Channel) (*domain.DemandRequest, error) {
	r := &domain.DemandRequest{
		ID:        uuid.NewString(),
		VariantID: variantID,
		Contact:   contact,
		Channel:   channel,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// GetDemandRequest fetches a request by primary key, or ErrNotFound.
func GetDemandRequest(ctx context.Context, db *gorm.DB, id string) (*domain.DemandRequest, error) {
	var r domain.DemandRequest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// FindPendingByVariantContact returns the active PENDING request for a
// (variant, contact) pair, or ErrNotFound. At most one such row exists.
func FindPendingByVariantContact(ctx context.Context, db *gorm.DB, variantID, contact string) (*domain.DemandRequest, error) {
	var r domain.DemandRequest
	err := db.WithContext(ctx).
		Where("variant_id = ? AND contact = ? AND status = ?", variantID, contact, domain.StatusPending).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListPendingByVariant returns all PENDING requests awaiting one variant,
// oldest first so long-waiting customers are notified first.
func ListPendingByVariant(ctx context.Context, db *gorm.DB, variantID string) ([]domain.DemandRequest, error) {
	var out []domain.DemandRequest
	err := db.WithContext(ctx).
		Where("variant_id = ? AND status = ?", variantID, domain.StatusPending).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListByVariants returns all requests for a set of variants, newest first.
// Used by the merchant waitlist rollup.
func ListByVariants(ctx context.Context, db *gorm.DB, variantIDs []string) ([]domain.DemandRequest, error) {
	if len(variantIDs) == 0 {
		return []domain.DemandRequest{}, nil
	}
	var out []domain.DemandRequest
	err := db.WithContext(ctx).
		Where("variant_id IN ?", variantIDs).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// CountActiveByVariant counts PENDING plus NOTIFIED requests for a variant
// (the widget's "demand count").
func CountActiveByVariant(ctx context.Context, db *gorm.DB, variantID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.DemandRequest{}).
		Where("variant_id = ? AND status IN ?", variantID, []domain.Status{domain.StatusPending, domain.StatusNotified}).
		Count(&total).Error
	return total, err
}

// ClaimNotified attempts the PENDING→NOTIFIED transition as a single
// conditional update. The WHERE status='PENDING' clause makes the claim a
// compare-and-swap: for any set of concurrent callers on the same id, at most
// one observes claimed=true.
func ClaimNotified(ctx context.Context, db *gorm.DB, id string, notifiedAt time.Time) (claimed bool, err error) {
	res := db.WithContext(ctx).
		Model(&domain.DemandRequest{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"status":      domain.StatusNotified,
			"notified_at": notifiedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkConverted records the external order-attribution transition for a
// NOTIFIED request. The conditional WHERE keeps the lifecycle monotonic: a
// PENDING or already-CONVERTED row is left untouched.
func MarkConverted(ctx context.Context, db *gorm.DB, id string) (converted bool, err error) {
	res := db.WithContext(ctx).
		Model(&domain.DemandRequest{}).
		Where("id = ? AND status = ?", id, domain.StatusNotified).
		Update("status", domain.StatusConverted)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
