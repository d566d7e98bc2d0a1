package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/restocklab/go-restock-backend/internal/domain"
	"github.com/restocklab/go-restock-backend/internal/repo"
)

// newWebhookFixture wires a WebhookService over a PRO shop with auto-notify
// enabled and a variant at zero inventory, the configuration in which a
// restock edge actually fans out.
func newWebhookFixture(t *testing.T, email *recordingSender) (*gorm.DB, *WebhookService, *domain.Shop, *domain.Variant) {
	t.Helper()
	db := newTestDB(t)
	shop, _, variant := seedCatalog(t, db, 0)
	ctx := context.Background()

	demand := newDemandService(db, newTestDispatcher(t, email, &recordingSender{}))
	svc := &WebhookService{
		DB:         db,
		Demand:     demand,
		Plans:      demand.Plans,
		BatchSize:  2,
		BatchDelay: time.Millisecond,
	}

	if _, err := demand.Plans.UpdateTier(ctx, shop.ID, domain.TierPro); err != nil {
		t.Fatalf("upgrade to PRO: %v", err)
	}
	if _, err := repo.CreateSettings(ctx, db, shop.ID, true); err != nil {
		t.Fatalf("seed settings: %v", err)
	}
	return db, svc, shop, variant
}

func seedWaitlist(t *testing.T, db *gorm.DB, variantID string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		r, err := repo.CreateDemandRequest(context.Background(), db, variantID, fmt.Sprintf("w%d@example.com", i), domain.ChannelEmail)
		if err != nil {
			t.Fatalf("seed request %d: %v", i, err)
		}
		ids = append(ids, r.ID)
	}
	return ids
}

// Unresolvable shops and variants are routine noise under at-least-once
// delivery; the drop is recorded at debug, not warn.
func TestWebhook_UnknownShopAndVariant_LogAtDebug(t *testing.T) {
	_, svc, shop, _ := newWebhookFixture(t, &recordingSender{})
	ctx := context.Background()

	var buf bytes.Buffer
	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	svc.HandleInventoryUpdate(ctx, "ghost-store.myshopify.com", InventoryUpdatePayload{VariantID: "ext-var-1", Quantity: 3})
	svc.HandleInventoryUpdate(ctx, shop.Domain, InventoryUpdatePayload{VariantID: "no-such-variant", Quantity: 3})

	out := buf.String()
	if !strings.Contains(out, "inventory webhook for unknown shop; dropped") ||
		!strings.Contains(out, "inventory webhook for unknown variant; dropped") {
		t.Fatalf("expected both drop messages, got: %s", out)
	}
	if strings.Contains(out, `"level":"warn"`) || strings.Contains(out, `"level":"error"`) {
		t.Fatalf("unresolvable webhook target escalated above debug: %s", out)
	}
}

func TestWebhook_RestockEdge_NotifiesWaitlist(t *testing.T) {
	email := &recordingSender{}
	db, svc, _, variant := newWebhookFixture(t, email)
	ids := seedWaitlist(t, db, variant.ID, 5)
	ctx := context.Background()

	svc.HandleInventoryUpdate(ctx, "demo-store", InventoryUpdatePayload{VariantID: variant.ID, Quantity: 7})

	// Inventory applied.
	v, err := repo.GetVariant(ctx, db, variant.ID)
	if err != nil {
		t.Fatalf("reload variant: %v", err)
	}
	if v.InventoryQuantity != 7 {
		t.Fatalf("inventory not applied: %d", v.InventoryQuantity)
	}

	// Everyone on the waitlist is NOTIFIED.
	for _, id := range ids {
		req, err := repo.GetDemandRequest(ctx, db, id)
		if err != nil {
			t.Fatalf("reload request: %v", err)
		}
		if req.Status != domain.StatusNotified {
			t.Fatalf("request %s not notified: %s", id, req.Status)
		}
	}
	if email.count() != 5 {
		t.Fatalf("expected 5 deliveries, got %d", email.count())
	}
}

func TestWebhook_NoEdge_NoFanOut(t *testing.T) {
	email := &recordingSender{}
	db, svc, _, variant := newWebhookFixture(t, email)
	ids := seedWaitlist(t, db, variant.ID, 2)
	ctx := context.Background()

	// Drain to zero first, then replenish non-zero stock: neither is an edge.
	svc.HandleInventoryUpdate(ctx, "demo-store", InventoryUpdatePayload{VariantID: variant.ID, Quantity: 0})
	svc.HandleInventoryUpdate(ctx, "demo-store", InventoryUpdatePayload{VariantID: variant.ID, Quantity: 4})
	svc.HandleInventoryUpdate(ctx, "demo-store", InventoryUpdatePayload{VariantID: variant.ID, Quantity: 9})

	// First update was 0→0 (no edge), second 0→4 IS an edge. Reset the
	// fixture expectation: after 0→4 the waitlist drains, so re-seed and
	// verify 4→9 does nothing.
	for _, id := range ids {
		req, _ := repo.GetDemandRequest(ctx, db, id)
		if req.Status != domain.StatusNotified {
			t.Fatalf("0→4 edge should have notified %s", id)
		}
	}
	fresh := seedWaitlist(t, db, variant.ID, 1)
	svc.HandleInventoryUpdate(ctx, "demo-store", InventoryUpdatePayload{VariantID: variant.ID, Quantity: 20})
	req, _ := repo.GetDemandRequest(ctx, db, fresh[0])
	if req.Status != domain.StatusPending {
		t.Fatalf("non-zero replenish triggered notification")
	}
}

func TestWebhook_InventoryAppliedEvenWhenGatedOff(t *testing.T) {
	db := newTestDB(t)
	shop, _, variant := seedCatalog(t, db, 0)
	email := &recordingSender{}
	demand := newDemandService(db, newTestDispatcher(t, email, &recordingSender{}))
	svc := &WebhookService{DB: db, Demand: demand, Plans: demand.Plans}
	ctx := context.Background()

	// FREE plan, no settings row: fully gated off.
	ids := seedWaitlist(t, db, variant.ID, 1)
	svc.HandleInventoryUpdate(ctx, "demo-store", InventoryUpdatePayload{VariantID: variant.ID, Quantity: 5})

	v, _ := repo.GetVariant(ctx, db, variant.ID)
	if v.InventoryQuantity != 5 {
		t.Fatalf("inventory write gated off with notification: %d", v.InventoryQuantity)
	}
	req, _ := repo.GetDemandRequest(ctx, db, ids[0])
	if req.Status != domain.StatusPending {
		t.Fatalf("FREE shop fan-out fired")
	}
	if email.count() != 0 {
		t.Fatalf("FREE shop delivered %d messages", email.count())
	}

	// PRO but merchant toggle off: still no fan-out.
	if _, err := demand.Plans.UpdateTier(ctx, shop.ID, domain.TierPro); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if _, err := repo.CreateSettings(ctx, db, shop.ID, false); err != nil {
		t.Fatalf("settings: %v", err)
	}
	svc.HandleInventoryUpdate(ctx, "demo-store", InventoryUpdatePayload{VariantID: variant.ID, Quantity: 0})
	svc.HandleInventoryUpdate(ctx, "demo-store", InventoryUpdatePayload{VariantID: variant.ID, Quantity: 5})
	req, _ = repo.GetDemandRequest(ctx, db, ids[0])
	if req.Status != domain.StatusPending {
		t.Fatalf("toggle-off shop fan-out fired")
	}
}

func TestWebhook_InactiveShopDropped(t *testing.T) {
	email := &recordingSender{}
	db, svc, shop, variant := newWebhookFixture(t, email)
	ids := seedWaitlist(t, db, variant.ID, 1)
	ctx := context.Background()

	if err := repo.DeactivateShopByDomain(ctx, db, shop.Domain); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	svc.HandleInventoryUpdate(ctx, "demo-store", InventoryUpdatePayload{VariantID: variant.ID, Quantity: 5})

	// Inactive shops are dropped before the inventory write.
	v, _ := repo.GetVariant(ctx, db, variant.ID)
	if v.InventoryQuantity != 0 {
		t.Fatalf("inactive shop inventory applied: %d", v.InventoryQuantity)
	}
	req, _ := repo.GetDemandRequest(ctx, db, ids[0])
	if req.Status != domain.StatusPending {
		t.Fatalf("inactive shop fan-out fired")
	}
}

func TestWebhook_FanOut_PerEntryIsolation(t *testing.T) {
	email := &recordingSender{failFor: map[string]error{
		"w1@example.com": errors.New("mailbox full"),
	}}
	db, svc, _, variant := newWebhookFixture(t, email)
	ids := seedWaitlist(t, db, variant.ID, 4)
	ctx := context.Background()

	svc.HandleInventoryUpdate(ctx, "demo-store", InventoryUpdatePayload{VariantID: variant.ID, Quantity: 3})

	var pending, notified int
	for _, id := range ids {
		req, _ := repo.GetDemandRequest(ctx, db, id)
		switch req.Status {
		case domain.StatusPending:
			pending++
		case domain.StatusNotified:
			notified++
		}
	}
	if notified != 3 || pending != 1 {
		t.Fatalf("expected 3 notified / 1 pending, got %d / %d", notified, pending)
	}
}

func TestWebhook_HandleAppUninstalled(t *testing.T) {
	db := newTestDB(t)
	shop, _, _ := seedCatalog(t, db, 0)
	demand := newDemandService(db, newTestDispatcher(t, &recordingSender{}, &recordingSender{}))
	svc := &WebhookService{DB: db, Demand: demand, Plans: demand.Plans}
	ctx := context.Background()

	svc.HandleAppUninstalled(ctx, "demo-store")

	got, err := repo.GetShop(ctx, db, shop.ID)
	if err != nil {
		t.Fatalf("reload shop: %v", err)
	}
	if got.IsActive {
		t.Fatalf("shop still active after uninstall")
	}

	// Unknown shop is absorbed, not an error path that panics.
	svc.HandleAppUninstalled(ctx, "ghost-store")
}

func TestWebhook_HandleWebhook_Routing(t *testing.T) {
	db := newTestDB(t)
	seedCatalog(t, db, 0)
	demand := newDemandService(db, newTestDispatcher(t, &recordingSender{}, &recordingSender{}))
	svc := &WebhookService{DB: db, Demand: demand, Plans: demand.Plans}
	ctx := context.Background()

	if err := svc.HandleWebhook(ctx, "orders/create", "demo-store", nil); !errors.Is(err, ErrUnknownTopic) {
		t.Fatalf("expected ErrUnknownTopic, got %v", err)
	}
	if err := svc.HandleWebhook(ctx, TopicInventoryUpdate, "demo-store", nil); !errors.Is(err, ErrUnknownTopic) {
		t.Fatalf("inventory topic without payload should be ErrUnknownTopic, got %v", err)
	}
	if err := svc.HandleWebhook(ctx, TopicAppUninstalled, "demo-store", nil); err != nil {
		t.Fatalf("uninstall routing failed: %v", err)
	}
	if err := svc.HandleWebhook(ctx, TopicInventoryUpdate, "demo-store", &InventoryUpdatePayload{VariantID: "x", Quantity: 1}); err != nil {
		t.Fatalf("inventory routing failed: %v", err)
	}
}
