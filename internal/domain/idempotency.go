// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// WebhookDelivery records a processed webhook or widget delivery, keyed by
// (shop_domain, key). It enables safe retries: when the platform redelivers a
// webhook or a widget client retries a subscribe POST with the same
// Idempotency-Key, the original outcome is acknowledged without re-executing
// side effects. Rows expire after a TTL and are ignored once stale.
type WebhookDelivery struct {
	ID              string    `gorm:"type:char(36);primaryKey"`
	ShopDomain      string    `gorm:"type:varchar(255);not null;uniqueIndex:ux_deliveries_shop_key,priority:1"`
	Key             string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_deliveries_shop_key,priority:2"`
	DemandRequestID string    `gorm:"type:char(36)"`
	Status          int       `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt       time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (WebhookDelivery) TableName() string { return "webhook_deliveries" }
