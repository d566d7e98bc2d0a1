// Package services – DashboardService
//
// Merchant dashboard rollup: per-product demand tallies with a restock
// priority hint, plus the shop's recovered-revenue totals. Read-only over the
// aggregate queries in repo.

package services

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/restocklab/go-restock-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Restock priority labels shown to merchants.
const (
	PriorityASAP = "ASAP"
	PrioritySoon = "SOON"
)

// Priority escalates to ASAP once enough customers wait on a product or the
// estimated revenue at stake crosses the opportunity bar.
const (
	asapWaitingThreshold     = 20
	asapOpportunityThreshold = 5000
)

// defaultAvgOrderValue seeds the revenue-opportunity estimate for products
// that have not recovered any revenue yet.
var defaultAvgOrderValue = decimal.NewFromInt(120)

// ProductDemand is one product row of the merchant dashboard.
type ProductDemand struct {
	ProductID          string          `json:"product_id"`
	Title              string          `json:"title"`
	ImageURL           *string         `json:"image_url,omitempty"`
	Pending            int64           `json:"pending"`
	Notified           int64           `json:"notified"`
	RecoveredRevenue   decimal.Decimal `json:"recovered_revenue"`
	RevenueOpportunity decimal.Decimal `json:"revenue_opportunity"`
	Priority           string          `json:"priority"`
}

// DashboardData is the full merchant dashboard payload.
type DashboardData struct {
	Products           []ProductDemand `json:"products"`
	TotalPending       int64           `json:"total_pending"`
	TotalNotified      int64           `json:"total_notified"`
	RecoveredRevenue   decimal.Decimal `json:"recovered_revenue"`
	UnattributedOrders decimal.Decimal `json:"unattributed_revenue"`
	TotalOrders        int64           `json:"total_orders"`
}

// DashboardService aggregates demand and revenue for merchant views.
type DashboardService struct {
	DB *gorm.DB
}

// Overview builds the dashboard: every product with live demand, its
// per-status tallies, recovered revenue, opportunity estimate and restock
// priority, plus the shop's revenue split. ASAP products sort first, then by
// waiting customers.
func (s *DashboardService) Overview(ctx context.Context, shopID string) (*DashboardData, error) {
	tr := otel.Tracer("services/DashboardService")
	ctx, span := tr.Start(ctx, "Overview",
		trace.WithAttributes(attribute.String("shop.id", shopID)),
	)
	defer span.End()

	products, err := repo.ListProductsWithDemand(ctx, s.DB, shopID)
	if err != nil {
		return nil, err
	}

	data := &DashboardData{Products: make([]ProductDemand, 0, len(products))}
	for _, p := range products {
		counts, err := repo.CountDemandByProduct(ctx, s.DB, p.ID)
		if err != nil {
			return nil, err
		}
		recovered, err := repo.SumRecoveredRevenueByProduct(ctx, s.DB, p.ID)
		if err != nil {
			return nil, err
		}

		// Estimate revenue at stake: the product's observed average order
		// value (recovered revenue per notified customer), falling back to a
		// fixed figure before any revenue has come back, times the customers
		// still waiting.
		avgOrderValue := defaultAvgOrderValue
		if recovered.IsPositive() && counts.Notified > 0 {
			avgOrderValue = recovered.Div(decimal.NewFromInt(counts.Notified))
		}
		opportunity := decimal.NewFromInt(counts.Pending).Mul(avgOrderValue)

		priority := PrioritySoon
		if counts.Pending >= asapWaitingThreshold ||
			opportunity.GreaterThanOrEqual(decimal.NewFromInt(asapOpportunityThreshold)) {
			priority = PriorityASAP
		}

		data.Products = append(data.Products, ProductDemand{
			ProductID:          p.ID,
			Title:              p.Title,
			ImageURL:           p.ImageURL,
			Pending:            counts.Pending,
			Notified:           counts.Notified,
			RecoveredRevenue:   recovered.Round(2),
			RevenueOpportunity: opportunity.Round(2),
			Priority:           priority,
		})
		data.TotalPending += counts.Pending
		data.TotalNotified += counts.Notified
	}

	// ASAP rows first, then by waiting customers.
	sort.SliceStable(data.Products, func(i, j int) bool {
		if data.Products[i].Priority != data.Products[j].Priority {
			return data.Products[i].Priority == PriorityASAP
		}
		return data.Products[i].Pending > data.Products[j].Pending
	})

	revenue, err := repo.SumRevenueByShop(ctx, s.DB, shopID)
	if err != nil {
		return nil, err
	}
	data.RecoveredRevenue = revenue.Attributed
	data.UnattributedOrders = revenue.Unattributed
	data.TotalOrders = revenue.Orders

	return data, nil
}
