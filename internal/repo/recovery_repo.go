// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for RecoveryLink
// and OrderAttribution rows.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/restocklab/go-restock-backend/internal/domain"
)

// ErrDuplicate indicates a unique-constraint conflict (replayed idempotency
// key, re-attributed order id, token collision).
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation detects unique-constraint failures across drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}

// CreateRecoveryLink inserts a link row. The token must be unique; a collision
// surfaces as ErrDuplicate so the issuer can mint a fresh token.
func CreateRecoveryLink(ctx context.Context, db *gorm.DB, demandRequestID, token string, expiresAt time.Time) (*domain.RecoveryLink, error) {
	l := &domain.RecoveryLink{
		ID:              uuid.NewString(),
		DemandRequestID: demandRequestID,
		Token:           token,
		ExpiresAt:       expiresAt,
		CreatedAt:       time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(l).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return l, nil
}

// GetRecoveryLinkByToken fetches a link by its token, or ErrNotFound.
func GetRecoveryLinkByToken(ctx context.Context, db *gorm.DB, token string) (*domain.RecoveryLink, error) {
	var l domain.RecoveryLink
	err := db.WithContext(ctx).
		Where("token = ?", token).
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListRecoveryLinksByRequests returns all links minted for a set of requests.
func ListRecoveryLinksByRequests(ctx context.Context, db *gorm.DB, requestIDs []string) ([]domain.RecoveryLink, error) {
	if len(requestIDs) == 0 {
		return []domain.RecoveryLink{}, nil
	}
	var out []domain.RecoveryLink
	err := db.WithContext(ctx).
		Where("demand_request_id IN ?", requestIDs).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// DeleteExpiredRecoveryLinks removes links whose expiry lies before the given
// cutoff. Links expire passively; this is storage hygiene, not enforcement.
func DeleteExpiredRecoveryLinks(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&domain.RecoveryLink{})
	return res.RowsAffected, res.Error
}

// CreateOrderAttribution records revenue for an order. OrderID uniqueness is
// enforced by the schema; a conflict surfaces as ErrDuplicate.
func CreateOrderAttribution(ctx context.Context, db *gorm.DB, shopID, orderID string, recoveryLinkID *string, revenue decimal.Decimal) (*domain.OrderAttribution, error) {
	a := &domain.OrderAttribution{
		ID:             uuid.NewString(),
		OrderID:        orderID,
		ShopID:         shopID,
		RecoveryLinkID: recoveryLinkID,
		Revenue:        revenue,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return a, nil
}

// ListAttributionsByLinks returns attributions tied to a set of links.
func ListAttributionsByLinks(ctx context.Context, db *gorm.DB, linkIDs []string) ([]domain.OrderAttribution, error) {
	if len(linkIDs) == 0 {
		return []domain.OrderAttribution{}, nil
	}
	var out []domain.OrderAttribution
	err := db.WithContext(ctx).
		Where("recovery_link_id IN ?", linkIDs).
		Find(&out).Error
	return out, err
}
