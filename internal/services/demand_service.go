// Package services – DemandService
//
// This file implements DemandService, the application-level component that
// owns the wait-list lifecycle: customer opt-in (CreateRequest), the
// notify-then-commit protocol (Notify), and the merchant/widget read views.
//
// Notify ordering is the heart of the component. The sequence is fixed:
// status gate, quota gate, recovery link, delivery, and only then the
// PENDING→NOTIFIED commit plus the usage increment. A delivery failure
// therefore leaves the request PENDING and the quota untouched, and the
// commit itself is a conditional update so concurrent callers on the same
// request produce at most one notification state transition.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// shop/variant/request identifiers but never raw contacts.

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/restocklab/go-restock-backend/internal/domain"
	"github.com/restocklab/go-restock-backend/internal/notify"
	"github.com/restocklab/go-restock-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DemandService coordinates wait-list capture and notification.
type DemandService struct {
	DB         *gorm.DB
	Plans      *PlanService
	Recovery   *RecoveryService
	Dispatcher *notify.Dispatcher

	// RecoveryBaseURL is the public origin recovery links are minted under,
	// e.g. "https://app.example.com".
	RecoveryBaseURL string
}

// CreateRequestResult reports the outcome of a widget opt-in.
type CreateRequestResult struct {
	Request *domain.DemandRequest
	// AlreadySubscribed is true when the contact already held a PENDING
	// request for the variant and that existing row was returned.
	AlreadySubscribed bool
}

// NotifyResult reports a successful notification commit.
type NotifyResult struct {
	Request        *domain.DemandRequest
	RecoveryLinkID string
}

// CreateRequest records a customer's wait-list opt-in for a variant.
//
// The contact/channel pair is validated first, then the variant is resolved
// shop-scoped (by row id or storefront id). Opt-in is idempotent per
// (variant, contact): an existing PENDING row is returned with
// AlreadySubscribed set instead of creating a duplicate.
func (s *DemandService) CreateRequest(ctx context.Context, shopDomain, variantID, contact, channel string) (*CreateRequestResult, error) {
	tr := otel.Tracer("services/DemandService")
	ctx, span := tr.Start(ctx, "CreateRequest",
		trace.WithAttributes(
			attribute.String("shop.domain", shopDomain),
			attribute.String("variant.id", variantID),
		),
	)
	defer span.End()

	ch, err := NormalizeChannel(channel)
	if err != nil {
		return nil, err
	}
	contact = strings.TrimSpace(contact)
	if ch == domain.ChannelEmail {
		contact = strings.ToLower(contact)
	}
	if err := ValidateContact(contact, ch); err != nil {
		return nil, err
	}

	shop, err := repo.GetShopByDomain(ctx, s.DB, NormalizeShopDomain(shopDomain))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShopNotFound
		}
		return nil, err
	}

	variant, err := repo.GetVariantForShop(ctx, s.DB, shop.ID, variantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVariantNotFound
		}
		return nil, err
	}

	// Idempotent per (variant, contact): return the live PENDING row if one
	// exists.
	existing, err := repo.FindPendingByVariantContact(ctx, s.DB, variant.ID, contact)
	if err == nil {
		return &CreateRequestResult{Request: existing, AlreadySubscribed: true}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	r, err := repo.CreateDemandRequest(ctx, s.DB, variant.ID, contact, ch)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("shop_id", shop.ID).
		Str("variant_id", variant.ID).
		Str("request_id", r.ID).
		Str("channel", string(ch)).
		Msg("wait-list request created")
	return &CreateRequestResult{Request: r}, nil
}

// Notify runs the notify-then-commit protocol for one demand request.
//
// Sequence: fetch and classify terminal states, re-check PENDING, resolve the
// owning shop, check the plan quota (before any side effect), mint a recovery
// link, deliver the notification, then commit PENDING→NOTIFIED with a
// conditional update and bump the usage counter. A delivery failure
// propagates with no state written; losing the commit race surfaces as
// ErrAlreadyNotified.
func (s *DemandService) Notify(ctx context.Context, requestID string) (*NotifyResult, error) {
	tr := otel.Tracer("services/DemandService")
	ctx, span := tr.Start(ctx, "Notify",
		trace.WithAttributes(attribute.String("request.id", requestID)),
	)
	defer span.End()

	req, err := repo.GetDemandRequest(ctx, s.DB, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if err := classifyStatus(req.Status); err != nil {
		return nil, err
	}

	variant, err := repo.GetVariant(ctx, s.DB, req.VariantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVariantNotFound
		}
		return nil, err
	}
	product, err := repo.GetProduct(ctx, s.DB, variant.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	shop, err := repo.GetShop(ctx, s.DB, product.ShopID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShopNotFound
		}
		return nil, err
	}

	// Re-fetch and re-check immediately before acting: the authoritative
	// status gate. A stale PENDING read above must not survive this point.
	req, err = repo.GetDemandRequest(ctx, s.DB, requestID)
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(req.Status); err != nil {
		return nil, err
	}

	// Quota gate runs before every side effect: no link, no send, no write
	// when the month's budget is spent.
	if err := s.Plans.CheckLimit(ctx, shop.ID); err != nil {
		return nil, err
	}

	link, err := s.Recovery.Issue(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	err = s.Dispatcher.Send(ctx, req.Channel, req.Contact, notify.TemplateRestockAvailable, notify.TemplateData{
		ProductName:  product.Title,
		RecoveryURL:  s.recoveryURL(link.Token),
		CustomerName: notify.CustomerNameFromContact(req.Contact),
	})
	if err != nil {
		log.Error().Err(err).
			Str("request_id", req.ID).
			Str("channel", string(req.Channel)).
			Msg("notification delivery failed; request stays PENDING")
		return nil, err
	}

	now := time.Now().UTC()
	claimed, err := repo.ClaimNotified(ctx, s.DB, req.ID, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// A concurrent caller committed first. The customer may have received
		// two messages, but state and quota advance exactly once.
		return nil, ErrAlreadyNotified
	}
	req.Status = domain.StatusNotified
	req.NotifiedAt = &now

	if err := s.Plans.Increment(ctx, shop.ID); err != nil {
		// The notification is committed; a failed counter bump is logged and
		// absorbed rather than un-sending anything.
		log.Error().Err(err).Str("shop_id", shop.ID).Msg("usage increment failed after notify commit")
	}

	log.Info().
		Str("request_id", req.ID).
		Str("shop_id", shop.ID).
		Str("recovery_link_id", link.ID).
		Msg("customer notified")
	return &NotifyResult{Request: req, RecoveryLinkID: link.ID}, nil
}

// classifyStatus maps terminal request states to their business errors.
func classifyStatus(st domain.Status) error {
	switch st {
	case domain.StatusPending:
		return nil
	case domain.StatusNotified:
		return ErrAlreadyNotified
	case domain.StatusConverted:
		return ErrAlreadyConverted
	default:
		return fmt.Errorf("unknown demand status %q", st)
	}
}

func (s *DemandService) recoveryURL(token string) string {
	return strings.TrimSuffix(s.RecoveryBaseURL, "/") + "/recover/" + token
}

// WidgetData is the public storefront view of one variant's demand.
type WidgetData struct {
	VariantID   string `json:"variant_id"`
	ProductName string `json:"product_name"`
	InStock     bool   `json:"in_stock"`
	DemandCount int64  `json:"demand_count"`
}

// Widget returns the storefront widget payload for a variant: product name,
// stock flag, and the count of customers currently waiting (PENDING plus
// NOTIFIED).
func (s *DemandService) Widget(ctx context.Context, shopDomain, variantID string) (*WidgetData, error) {
	tr := otel.Tracer("services/DemandService")
	ctx, span := tr.Start(ctx, "Widget",
		trace.WithAttributes(
			attribute.String("shop.domain", shopDomain),
			attribute.String("variant.id", variantID),
		),
	)
	defer span.End()

	shop, err := repo.GetShopByDomain(ctx, s.DB, NormalizeShopDomain(shopDomain))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShopNotFound
		}
		return nil, err
	}
	variant, err := repo.GetVariantForShop(ctx, s.DB, shop.ID, variantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVariantNotFound
		}
		return nil, err
	}
	product, err := repo.GetProduct(ctx, s.DB, variant.ProductID)
	if err != nil {
		return nil, err
	}
	count, err := repo.CountActiveByVariant(ctx, s.DB, variant.ID)
	if err != nil {
		return nil, err
	}
	return &WidgetData{
		VariantID:   variant.ID,
		ProductName: product.Title,
		InStock:     variant.InventoryQuantity > 0,
		DemandCount: count,
	}, nil
}

// WaitlistEntry is one masked row of a product's merchant-facing waitlist.
// RecoveredRevenue is nil until an order has been attributed to the entry's
// active recovery link.
type WaitlistEntry struct {
	RequestID        string           `json:"request_id"`
	VariantID        string           `json:"variant_id"`
	MaskedContact    string           `json:"masked_contact"`
	Channel          string           `json:"channel"`
	Status           string           `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	NotifiedAt       *time.Time       `json:"notified_at,omitempty"`
	RecoveredRevenue *decimal.Decimal `json:"recovered_revenue"`
}

// ProductWaitlistData is the full merchant waitlist payload: every entry plus
// summary totals across them.
type ProductWaitlistData struct {
	Entries               []WaitlistEntry `json:"entries"`
	TotalWaiting          int64           `json:"total_waiting"`
	TotalNotified         int64           `json:"total_notified"`
	TotalRecoveredRevenue decimal.Decimal `json:"total_recovered_revenue"`
}

// ProductWaitlist returns the merchant view of everyone waiting on a product,
// newest first, with contacts masked and per-entry recovered revenue joined
// in from order attributions. The product must belong to the shop.
func (s *DemandService) ProductWaitlist(ctx context.Context, shopID, productID string) (*ProductWaitlistData, error) {
	tr := otel.Tracer("services/DemandService")
	ctx, span := tr.Start(ctx, "ProductWaitlist",
		trace.WithAttributes(
			attribute.String("shop.id", shopID),
			attribute.String("product.id", productID),
		),
	)
	defer span.End()

	product, err := repo.GetProduct(ctx, s.DB, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	if product.ShopID != shopID {
		return nil, ErrProductNotFound
	}

	variants, err := repo.ListVariantsByProduct(ctx, s.DB, productID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(variants))
	for _, v := range variants {
		ids = append(ids, v.ID)
	}
	requests, err := repo.ListByVariants(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}

	// Join each request to its most recent recovery link, then each link to
	// the revenue attributed against it. Links come back oldest first, so the
	// last write per request leaves the active link in the map.
	requestIDs := make([]string, 0, len(requests))
	for _, r := range requests {
		requestIDs = append(requestIDs, r.ID)
	}
	links, err := repo.ListRecoveryLinksByRequests(ctx, s.DB, requestIDs)
	if err != nil {
		return nil, err
	}
	activeLink := make(map[string]string, len(links))
	linkIDs := make([]string, 0, len(links))
	for _, l := range links {
		activeLink[l.DemandRequestID] = l.ID
		linkIDs = append(linkIDs, l.ID)
	}
	attrs, err := repo.ListAttributionsByLinks(ctx, s.DB, linkIDs)
	if err != nil {
		return nil, err
	}
	revenueByLink := make(map[string]decimal.Decimal, len(attrs))
	for _, a := range attrs {
		if a.RecoveryLinkID != nil {
			revenueByLink[*a.RecoveryLinkID] = revenueByLink[*a.RecoveryLinkID].Add(a.Revenue)
		}
	}

	data := &ProductWaitlistData{Entries: make([]WaitlistEntry, 0, len(requests))}
	for _, r := range requests {
		entry := WaitlistEntry{
			RequestID:     r.ID,
			VariantID:     r.VariantID,
			MaskedContact: MaskContact(r.Contact, r.Channel),
			Channel:       string(r.Channel),
			Status:        string(r.Status),
			CreatedAt:     r.CreatedAt,
			NotifiedAt:    r.NotifiedAt,
		}
		if linkID, hasLink := activeLink[r.ID]; hasLink {
			if revenue, attributed := revenueByLink[linkID]; attributed {
				rounded := revenue.Round(2)
				entry.RecoveredRevenue = &rounded
				data.TotalRecoveredRevenue = data.TotalRecoveredRevenue.Add(rounded)
			}
		}
		switch r.Status {
		case domain.StatusPending:
			data.TotalWaiting++
		case domain.StatusNotified:
			data.TotalNotified++
		}
		data.Entries = append(data.Entries, entry)
	}
	return data, nil
}
