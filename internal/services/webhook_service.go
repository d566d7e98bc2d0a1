// Package services – WebhookService
//
// This file implements the restock webhook boundary: topic routing, the
// inventory-update fan-out, and the uninstall handler. The boundary contract
// is strict: webhook processing never surfaces an error to the platform.
// Every failure is logged and absorbed so the sender never retries a batch we
// already partially processed.
//
// Auto-notification is triple-gated (active shop, PRO plan, merchant toggle)
// and fires only on the 0→positive inventory edge. Fan-out runs in fixed-size
// waves with a pause between them, and one customer's failure never blocks
// the rest of the waitlist.

package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/restocklab/go-restock-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Fan-out pacing defaults, overridable per service instance.
const (
	DefaultNotifyBatchSize  = 10
	DefaultNotifyBatchDelay = 100 * time.Millisecond
)

// Webhook topics accepted by HandleWebhook.
const (
	TopicInventoryUpdate = "inventory_levels/update"
	TopicAppUninstalled  = "app/uninstalled"
)

// ErrUnknownTopic is returned by HandleWebhook for unrecognized topics.
var ErrUnknownTopic = errors.New("unknown webhook topic")

var restockNotifyOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "restock_auto_notify_total",
		Help: "Auto-notification attempts during restock fan-out, by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(restockNotifyOutcomes)
}

// InventoryUpdatePayload is the parsed inventory webhook body.
type InventoryUpdatePayload struct {
	VariantID string `json:"variant_id" binding:"required"`
	Quantity  int    `json:"quantity"`
}

// WebhookService processes platform webhooks for restocks and uninstalls.
type WebhookService struct {
	DB     *gorm.DB
	Demand *DemandService
	Plans  *PlanService

	// Fan-out pacing; zero values fall back to the defaults.
	BatchSize  int
	BatchDelay time.Duration
}

func (s *WebhookService) batchSize() int {
	if s.BatchSize > 0 {
		return s.BatchSize
	}
	return DefaultNotifyBatchSize
}

func (s *WebhookService) batchDelay() time.Duration {
	if s.BatchDelay > 0 {
		return s.BatchDelay
	}
	return DefaultNotifyBatchDelay
}

// HandleWebhook routes a webhook by topic. Unknown topics are the only error
// this method returns; processing failures inside a known topic are absorbed.
func (s *WebhookService) HandleWebhook(ctx context.Context, topic, shopDomain string, inv *InventoryUpdatePayload) error {
	switch topic {
	case TopicInventoryUpdate:
		if inv == nil {
			return ErrUnknownTopic
		}
		s.HandleInventoryUpdate(ctx, shopDomain, *inv)
		return nil
	case TopicAppUninstalled:
		s.HandleAppUninstalled(ctx, shopDomain)
		return nil
	default:
		return ErrUnknownTopic
	}
}

// HandleInventoryUpdate applies an inventory level report and, when the
// update is a genuine restock edge (previous quantity 0, new quantity
// positive) and every gate passes, fans notifications out to the variant's
// PENDING waitlist.
//
// The inventory write always happens, even when notification is gated off:
// stock truth and notification policy are independent concerns.
func (s *WebhookService) HandleInventoryUpdate(ctx context.Context, shopDomain string, payload InventoryUpdatePayload) {
	tr := otel.Tracer("services/WebhookService")
	ctx, span := tr.Start(ctx, "HandleInventoryUpdate",
		trace.WithAttributes(
			attribute.String("shop.domain", shopDomain),
			attribute.String("variant.id", payload.VariantID),
			attribute.Int("quantity", payload.Quantity),
		),
	)
	defer span.End()

	shop, err := repo.GetShopByDomain(ctx, s.DB, NormalizeShopDomain(shopDomain))
	if err != nil {
		log.Debug().Err(err).Str("shop_domain", shopDomain).Msg("inventory webhook for unknown shop; dropped")
		return
	}
	if !shop.IsActive {
		log.Warn().Str("shop_id", shop.ID).Msg("inventory webhook for inactive shop; dropped")
		return
	}

	variant, err := repo.GetVariantForShop(ctx, s.DB, shop.ID, payload.VariantID)
	if err != nil {
		log.Debug().Err(err).
			Str("shop_id", shop.ID).
			Str("variant_id", payload.VariantID).
			Msg("inventory webhook for unknown variant; dropped")
		return
	}

	previous := variant.InventoryQuantity
	if err := repo.UpdateVariantInventory(ctx, s.DB, variant.ID, payload.Quantity); err != nil {
		log.Error().Err(err).Str("variant_id", variant.ID).Msg("inventory update failed")
		return
	}

	// Only the 0→positive edge is a restock. Replenishing non-zero stock or
	// draining to zero never triggers notification.
	if previous != 0 || payload.Quantity <= 0 {
		return
	}
	log.Info().
		Str("shop_id", shop.ID).
		Str("variant_id", variant.ID).
		Int("quantity", payload.Quantity).
		Msg("restock edge detected")

	allowed, err := s.Plans.CanAutoNotify(ctx, shop.ID)
	if err != nil {
		log.Error().Err(err).Str("shop_id", shop.ID).Msg("plan check failed; auto-notify skipped")
		return
	}
	if !allowed {
		log.Info().Str("shop_id", shop.ID).Msg("auto-notify requires PRO plan; skipped")
		return
	}

	settings, err := repo.GetSettings(ctx, s.DB, shop.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Info().Str("shop_id", shop.ID).Msg("no settings row; auto-notify defaults off")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("shop_id", shop.ID).Msg("settings lookup failed; auto-notify skipped")
		return
	}
	if !settings.AutoNotifyOnRestock {
		log.Info().Str("shop_id", shop.ID).Msg("auto-notify disabled by merchant; skipped")
		return
	}

	s.fanOut(ctx, shop.ID, variant.ID)
}

// fanOut notifies the variant's PENDING waitlist in waves of batchSize with a
// pause between waves. Each request is notified independently: a quota hit,
// terminal state, or delivery failure on one entry is counted and the rest
// continue.
func (s *WebhookService) fanOut(ctx context.Context, shopID, variantID string) {
	pending, err := repo.ListPendingByVariant(ctx, s.DB, variantID)
	if err != nil {
		log.Error().Err(err).Str("variant_id", variantID).Msg("waitlist listing failed; fan-out aborted")
		return
	}
	if len(pending) == 0 {
		return
	}

	size := s.batchSize()
	var notified, failed int

	for start := 0; start < len(pending); start += size {
		end := start + size
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, req := range batch {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := s.Demand.Notify(ctx, id)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					notified++
					restockNotifyOutcomes.WithLabelValues("sent").Inc()
				case errors.Is(err, ErrQuotaExceeded):
					failed++
					restockNotifyOutcomes.WithLabelValues("quota").Inc()
				case errors.Is(err, ErrAlreadyNotified), errors.Is(err, ErrAlreadyConverted):
					restockNotifyOutcomes.WithLabelValues("stale").Inc()
				default:
					failed++
					restockNotifyOutcomes.WithLabelValues("failed").Inc()
					log.Error().Err(err).Str("request_id", id).Msg("auto-notify failed for waitlist entry")
				}
			}(req.ID)
		}
		wg.Wait()

		if end < len(pending) {
			select {
			case <-ctx.Done():
				log.Warn().Str("variant_id", variantID).Msg("fan-out interrupted by shutdown")
				return
			case <-time.After(s.batchDelay()):
			}
		}
	}

	log.Info().
		Str("shop_id", shopID).
		Str("variant_id", variantID).
		Int("waitlist", len(pending)).
		Int("notified", notified).
		Int("failed", failed).
		Msg("restock fan-out complete")
}

// HandleAppUninstalled soft-deactivates the shop. Demand, link, and
// attribution rows are retained for reinstall and revenue audit.
func (s *WebhookService) HandleAppUninstalled(ctx context.Context, shopDomain string) {
	tr := otel.Tracer("services/WebhookService")
	ctx, span := tr.Start(ctx, "HandleAppUninstalled",
		trace.WithAttributes(attribute.String("shop.domain", shopDomain)),
	)
	defer span.End()

	err := repo.DeactivateShopByDomain(ctx, s.DB, NormalizeShopDomain(shopDomain))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn().Str("shop_domain", shopDomain).Msg("uninstall webhook for unknown shop; dropped")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("shop_domain", shopDomain).Msg("shop deactivation failed")
		return
	}
	log.Info().Str("shop_domain", shopDomain).Msg("shop deactivated on uninstall")
}
