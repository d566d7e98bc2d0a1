// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries feeding the
// merchant dashboard and waitlist rollups. Demand is stored variant-level;
// these queries aggregate it product-level for display.
package repo

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/restocklab/go-restock-backend/internal/domain"
)

// DemandStatusCounts is a per-status tally of demand requests.
type DemandStatusCounts struct {
	Pending  int64
	Notified int64
}

// CountDemandByProduct tallies PENDING and NOTIFIED requests across all
// variants of a product.
func CountDemandByProduct(ctx context.Context, db *gorm.DB, productID string) (DemandStatusCounts, error) {
	var rows []struct {
		Status domain.Status
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.DemandRequest{}).
		Select("demand_requests.status AS status, COUNT(*) AS n").
		Joins("JOIN variants ON variants.id = demand_requests.variant_id").
		Where("variants.product_id = ? AND demand_requests.status IN ?", productID,
			[]domain.Status{domain.StatusPending, domain.StatusNotified}).
		Group("demand_requests.status").
		Scan(&rows).Error
	if err != nil {
		return DemandStatusCounts{}, err
	}
	var c DemandStatusCounts
	for _, r := range rows {
		switch r.Status {
		case domain.StatusPending:
			c.Pending = r.N
		case domain.StatusNotified:
			c.Notified = r.N
		}
	}
	return c, nil
}

// SumRecoveredRevenueByProduct totals the order revenue attributed to
// recovery links of a product's live (PENDING or NOTIFIED) demand requests.
func SumRecoveredRevenueByProduct(ctx context.Context, db *gorm.DB, productID string) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := db.WithContext(ctx).
		Model(&domain.OrderAttribution{}).
		Select("COALESCE(SUM(order_attributions.revenue), 0) AS total").
		Joins("JOIN recovery_links ON recovery_links.id = order_attributions.recovery_link_id").
		Joins("JOIN demand_requests ON demand_requests.id = recovery_links.demand_request_id").
		Joins("JOIN variants ON variants.id = demand_requests.variant_id").
		Where("variants.product_id = ? AND demand_requests.status IN ?", productID,
			[]domain.Status{domain.StatusPending, domain.StatusNotified}).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

// RevenueTotals splits a shop's recorded order revenue by attribution.
type RevenueTotals struct {
	Attributed   decimal.Decimal
	Unattributed decimal.Decimal
	Orders       int64
}

// SumRevenueByShop tallies order revenue for a shop, split into recovered
// (tied to a recovery link) and unattributed buckets.
func SumRevenueByShop(ctx context.Context, db *gorm.DB, shopID string) (RevenueTotals, error) {
	var rows []struct {
		Attributed bool
		Total      decimal.Decimal
		N          int64
	}
	err := db.WithContext(ctx).
		Model(&domain.OrderAttribution{}).
		Select("recovery_link_id IS NOT NULL AS attributed, COALESCE(SUM(revenue), 0) AS total, COUNT(*) AS n").
		Where("shop_id = ?", shopID).
		Group("recovery_link_id IS NOT NULL").
		Scan(&rows).Error
	if err != nil {
		return RevenueTotals{}, err
	}
	var t RevenueTotals
	for _, r := range rows {
		t.Orders += r.N
		if r.Attributed {
			t.Attributed = t.Attributed.Add(r.Total)
		} else {
			t.Unattributed = t.Unattributed.Add(r.Total)
		}
	}
	return t, nil
}

// ListProductsWithDemand returns the shop's products that currently have at
// least one PENDING or NOTIFIED request on any of their variants.
func ListProductsWithDemand(ctx context.Context, db *gorm.DB, shopID string) ([]domain.Product, error) {
	var out []domain.Product
	err := db.WithContext(ctx).
		Model(&domain.Product{}).
		Distinct("products.*").
		Joins("JOIN variants ON variants.product_id = products.id").
		Joins("JOIN demand_requests ON demand_requests.variant_id = variants.id").
		Where("products.shop_id = ? AND demand_requests.status IN ?", shopID,
			[]domain.Status{domain.StatusPending, domain.StatusNotified}).
		Find(&out).Error
	return out, err
}
